package deconv

import "github.com/cwbudde/algo-vecmath"

// ar1Pool is a maximal run of samples sharing one generator value under the
// AR(1) recursion. The pool's initial amplitude is the ratio v/w; keeping
// numerator and denominator separate lets the constrained solver compare
// pools by cross products without dividing.
type ar1Pool struct {
	v float64 // weighted sum of (corrected) trace samples against the decay kernel
	w float64 // sum of squared decayed weights
	t int     // first time index covered
	l int     // run length, >= 1
}

// ar2Pool is a maximal run of samples under the AR(2) recursion. The values
// at the pool's first and last index are sufficient, together with the two
// decay coefficients, to regenerate every interior sample.
type ar2Pool struct {
	first float64
	last  float64
	t     int
	l     int
}

// decayKernel returns [1, g, g^2, ..., g^(n-1)].
func decayKernel(g float64, n int) []float64 {
	k := make([]float64, n)
	if n == 0 {
		return k
	}

	k[0] = 1
	for i := 1; i < n; i++ {
		k[i] = k[i-1] * g
	}

	return k
}

// writeAR1 reconstructs the dense signal for one pool: the clipped amplitude
// scaled by the decay kernel over the pool's range.
func writeAR1(dst, kern []float64, p ar1Pool) {
	amp := p.v / p.w
	if amp < 0 {
		amp = 0
	}

	vecmath.ScaleBlock(dst[p.t:p.t+p.l], kern[:p.l], amp)
}

// reconstructAR1 writes the full dense signal for an active set.
func reconstructAR1(dst, kern []float64, pools []ar1Pool) {
	for _, p := range pools {
		writeAR1(dst, kern, p)
	}
}

// activityAR1 derives the impulse train s[t] = c[t] - g*c[t-1], with s[0]
// forced to zero.
func activityAR1(c []float64, g float64) []float64 {
	s := make([]float64, len(c))
	for t := 1; t < len(c); t++ {
		s[t] = c[t] - g*c[t-1]
	}

	return s
}

// activityAR2 derives s[t] = c[t] - g1*c[t-1] - g2*c[t-2], with the first two
// entries forced to zero.
func activityAR2(c []float64, g1, g2 float64) []float64 {
	s := make([]float64, len(c))
	for t := 2; t < len(c); t++ {
		s[t] = c[t] - g1*c[t-1] - g2*c[t-2]
	}

	return s
}
