package deconv

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// decimatedConstrainedAR1 runs the constrained solve on a block-averaged
// trace to estimate baseline, decay, and penalty cheaply, then re-derives a
// fine-resolution active set only near the coarse pool boundaries and runs a
// single merge pass at full resolution. Boundaries away from the refinement
// windows are taken as already optimal from the coarse pass.
func decimatedConstrainedAR1(y []float64, g, thresh float64, opts ConstrainedAR1Options) AR1Result {
	d := opts.Decimate

	yd := blockAverage(y, d)

	coarseOpts := opts
	coarseOpts.Decimate = 1

	// Block averaging raises g to the d-th power and scales the noise
	// budget by 1/d^2.
	coarse := newAR1Solver(yd, math.Pow(g, float64(d)), thresh/float64(d*d), coarseOpts)
	coarse.solve()

	gf := math.Pow(coarse.g, 1/float64(d))

	fine := newAR1Solver(y, gf, thresh, coarseOpts)
	fine.b = coarse.b
	// Keep the per-sample penalty correction lambda*(1-g) consistent across
	// resolutions.
	fine.lambda = coarse.lambda * (1 - gf) / (1 - coarse.g)
	fine.iters = coarse.iters
	fine.converged = coarse.converged

	fine.pools = poolsFromBoundaries(fine, refinedBoundaries(coarse.pools, d, len(y)))
	fine.rebuildPools()
	fine.merge()
	fine.reconstruct()

	return fine.result()
}

// blockAverage reduces y by the integer factor d, dropping the tail samples
// of any incomplete final block.
func blockAverage(y []float64, d int) []float64 {
	n := len(y) / d
	out := make([]float64, n)

	for i := range out {
		out[i] = floats.Sum(y[i*d:(i+1)*d]) / float64(d)
	}

	return out
}

// refinedBoundaries expands each coarse pool boundary into the window of
// candidate fine boundaries [-d, 1.5d) around its full-resolution position.
func refinedBoundaries(coarse []ar1Pool, d, t int) []int {
	mark := make([]bool, t)
	mark[0] = true

	for _, p := range coarse {
		if p.t == 0 {
			continue
		}

		center := p.t * d
		for i := center - d; i < center+(3*d)/2; i++ {
			if i >= 1 && i < t {
				mark[i] = true
			}
		}
	}

	starts := make([]int, 0, t)
	for i, m := range mark {
		if m {
			starts = append(starts, i)
		}
	}

	return starts
}

// poolsFromBoundaries builds the coarser warm-start partition whose pools
// span consecutive candidate boundaries. Sufficient statistics are filled in
// by rebuildPools.
func poolsFromBoundaries(s *ar1Solver, starts []int) []ar1Pool {
	pools := s.pools[:0]
	t := len(s.y)

	for i, start := range starts {
		end := t
		if i+1 < len(starts) {
			end = starts[i+1]
		}

		pools = append(pools, ar1Pool{w: 1, t: start, l: end - start})
	}

	return pools
}
