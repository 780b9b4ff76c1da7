package deconv

import (
	"math"

	"gonum.org/v1/gonum/optimize"
)

// boundPenalty scales the squared out-of-box distance added to the
// surrogate objective. Inside the box it contributes nothing, so any
// positive value leaves the constrained minimum unchanged.
const boundPenalty = 1e6

// Objective evaluates a candidate (baseline, decay) pair and returns the
// squared reconstruction error to be minimized.
type Objective func(b, g float64) float64

// Bounds is the search box for a [Minimizer]. An infinite bound leaves the
// corresponding side open.
type Bounds struct {
	BMin, BMax float64
	GMin, GMax float64
}

// Minimizer jointly refines a (baseline, decay) pair within bounds, starting
// from the given seed. Implementations are treated as black boxes: only the
// returned point is inspected, never the search trajectory. The evaluation
// budget should be small, since refinement runs inside an outer loop.
type Minimizer interface {
	Minimize(f Objective, b0, g0 float64, bounds Bounds) (b, g float64)
}

// NelderMead is the default [Minimizer]: a downhill-simplex search with
// bounds enforced by clamping candidate points into the box and penalizing
// the squared distance outside it.
type NelderMead struct {
	// MaxEvals bounds the number of objective evaluations. Zero selects the
	// default of 120.
	MaxEvals int

	// Tol is the absolute function-value convergence tolerance. Zero
	// selects the default of 1e-6.
	Tol float64
}

// Minimize implements [Minimizer]. On solver failure the seed point is
// returned unchanged.
func (m NelderMead) Minimize(f Objective, b0, g0 float64, bounds Bounds) (float64, float64) {
	maxEvals := m.MaxEvals
	if maxEvals <= 0 {
		maxEvals = 120
	}

	tol := m.Tol
	if tol <= 0 {
		tol = 1e-6
	}

	clamp := func(x, lo, hi float64) float64 {
		return math.Min(math.Max(x, lo), hi)
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			b := clamp(x[0], bounds.BMin, bounds.BMax)
			g := clamp(x[1], bounds.GMin, bounds.GMax)

			// Clamping alone leaves the surrogate flat outside the box and
			// the simplex can stall on that plateau; the distance penalty
			// keeps it strictly decreasing back toward the feasible region.
			db := x[0] - b
			dg := x[1] - g

			return f(b, g) + boundPenalty*(db*db+dg*dg)
		},
	}

	settings := &optimize.Settings{
		FuncEvaluations: maxEvals,
		Converger: &optimize.FunctionConverge{
			Absolute:   tol,
			Iterations: 10,
		},
	}

	res, err := optimize.Minimize(problem, []float64{b0, g0}, settings, &optimize.NelderMead{})
	if err != nil || res == nil {
		return b0, g0
	}

	return clamp(res.X[0], bounds.BMin, bounds.BMax), clamp(res.X[1], bounds.GMin, bounds.GMax)
}
