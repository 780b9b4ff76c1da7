package deconv

import (
	"math"
	"testing"
)

func TestNelderMeadQuadratic(t *testing.T) {
	f := func(b, g float64) float64 {
		return (b-0.5)*(b-0.5) + (g-0.7)*(g-0.7)
	}

	b, g := NelderMead{}.Minimize(f, 2, 0.2, Bounds{BMin: -10, BMax: 10, GMax: 1})

	if math.Abs(b-0.5) > 1e-2 {
		t.Errorf("b = %v, want close to 0.5", b)
	}

	if math.Abs(g-0.7) > 1e-2 {
		t.Errorf("g = %v, want close to 0.7", g)
	}
}

func TestNelderMeadBounds(t *testing.T) {
	// The unconstrained minimum sits outside the box; the result must be
	// clamped onto it.
	f := func(b, g float64) float64 {
		return (b-5)*(b-5) + (g-2)*(g-2)
	}

	b, g := NelderMead{MaxEvals: 200}.Minimize(f, 0, 0.5, Bounds{BMin: -1, BMax: 1, GMax: 1})

	if b < -1 || b > 1 {
		t.Errorf("b = %v, outside [-1, 1]", b)
	}

	if g < 0 || g > 1 {
		t.Errorf("g = %v, outside [0, 1]", g)
	}

	if math.Abs(b-1) > 1e-2 || math.Abs(g-1) > 1e-2 {
		t.Errorf("minimum (%v, %v), want the box corner (1, 1)", b, g)
	}
}
