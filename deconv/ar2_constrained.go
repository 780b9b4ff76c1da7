package deconv

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// ConstrainedAR2 solves the noise-constrained AR(2) deconvolution problem by
// dual ascent on the sparsity penalty, the two-pole analogue of
// [ConstrainedAR1] without baseline or decay refinement.
//
// Each iteration propagates a unit penalty perturbation through the pools to
// build the per-sample sensitivity, takes a Newton step on the penalty, folds
// the new penalty into the trace, and re-merges. The loop stops inside the
// residual target band, when the impulse train collapses, or at MaxIter.
// Real characteristic roots (g1^2 + 4*g2 > 0) and sn > 0 are caller
// preconditions.
func ConstrainedAR2(y []float64, g1, g2, sn float64, opts ConstrainedAR2Options) AR2Result {
	t := len(y)
	if t == 0 {
		return AR2Result{C: []float64{}, S: []float64{}}
	}

	if opts.TOverISI < 1 {
		opts.TOverISI = 1
	}

	if opts.MaxIter < 1 {
		opts.MaxIter = 1
	}

	thresh := sn * sn * float64(t)
	k := newAR2Kernel(g1, g2, tableLen(t, opts.TOverISI))
	zeta := penaltyWeightsAR2(t, g1, g2)

	var lambda float64

	yp := append([]float64(nil), y...)
	pools := mergeAR2(yp, k, 0, singletonsAR2(t))

	c := make([]float64, t)
	res := make([]float64, t)
	aa := make([]float64, t)

	reconstructAR2(c, pools, g1, g2)
	floats.SubTo(res, y, c)
	rss := floats.Dot(res, res)

	var iters int
	for rss < thresh*(1-rssTol) && floats.Sum(c) > minSpikeMass && iters < opts.MaxIter {
		// Sensitivity -dc/dlambda, pool by pool: each pool's perturbed
		// amplitude depends on the previous pool's propagated last-value
		// sensitivity, and the first pool has no preceding-pool term.
		var psi float64
		for _, p := range pools {
			li := k.idx(p.l - 1)

			var num float64
			for j := 0; j < p.l; j++ {
				num += k.g11[k.idx(j)] * zeta[p.t+j]
			}

			dv := (-num - k.g11g12[li]*psi) / k.g11g11[li]
			for j := 0; j < p.l; j++ {
				i := k.idx(j)
				aa[p.t+j] = -(dv*k.g11[i] + psi*k.g12[i])
			}

			psi = dv*k.g11[li] + psi*k.g12[li]
		}

		aaaa := floats.Dot(aa, aa)
		if aaaa <= 0 {
			break
		}

		bb := floats.Dot(res, aa)

		disc := bb*bb - aaaa*(rss-thresh)
		if disc < 0 {
			disc = 0
		}

		dl := (-bb + math.Sqrt(disc)) / aaaa
		if dl == 0 {
			break
		}

		lambda += dl
		for i := range yp {
			yp[i] = y[i] - lambda*zeta[i]
		}

		pools = mergeAR2(yp, k, 0, pools)
		reconstructAR2(c, pools, g1, g2)
		floats.SubTo(res, y, c)
		rss = floats.Dot(res, res)
		iters++
	}

	converged := math.Abs(rss-thresh) <= thresh*rssTol || floats.Sum(c) <= minSpikeMass

	return AR2Result{
		C:          c,
		S:          activityAR2(c, g1, g2),
		Lambda:     lambda,
		Iterations: iters,
		Converged:  converged,
	}
}

// penaltyWeightsAR2 returns the coefficient of each sample in the L1 penalty
// term: (1-g1-g2) in the interior, with the final two samples lacking future
// terms to amortize against.
func penaltyWeightsAR2(t int, g1, g2 float64) []float64 {
	zeta := make([]float64, t)
	for i := range zeta {
		zeta[i] = 1 - g1 - g2
	}

	if t >= 2 {
		zeta[t-2] = 1 - g1
	}

	zeta[t-1] = 1

	return zeta
}
