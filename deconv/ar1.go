package deconv

// AR1 solves the penalized sparse deconvolution problem for a first-order
// recursion: it minimizes 0.5*||c-y||^2 + lambda*||s||_1 over signals c whose
// impulse train s[t] = c[t] - g*c[t-1] is everywhere zero or at least SMin,
// with c clipped to be nonnegative.
//
// The decay coefficient g must lie in (0,1); this is a precondition and is
// not checked. The returned slices have the same length as y.
func AR1(y []float64, g float64, opts AR1Options) (c, s []float64) {
	t := len(y)
	c = make([]float64, t)

	if t == 0 {
		return c, make([]float64, 0)
	}

	kern := decayKernel(g, t)
	pools := mergeAR1(y, g, kern, opts.Lambda, opts.SMin)

	reconstructAR1(c, kern, pools)

	return c, activityAR1(c, g)
}

// mergeAR1 runs the backtracking merge over a per-sample singleton partition.
// The last sample's generator is corrected by lambda alone: it has no future
// term to amortize the penalty against.
func mergeAR1(y []float64, g float64, kern []float64, lambda, smin float64) []ar1Pool {
	t := len(y)
	pools := make([]ar1Pool, 0, t)

	for i := 0; i < t; i++ {
		v := y[i] - lambda*(1-g)
		if i == t-1 {
			v = y[i] - lambda
		}

		pools = append(pools, ar1Pool{v: v, w: 1, t: i, l: 1})
		pools = backtrackAR1(pools, kern, smin)
	}

	return pools
}

// backtrackAR1 restores consistency after appending or merging: while the
// newest pool's normalized value undercuts its predecessor's projected value
// plus smin, merge it backward.
func backtrackAR1(pools []ar1Pool, kern []float64, smin float64) []ar1Pool {
	for {
		var merged bool

		pools, merged = mergeTailAR1(pools, kern, smin)
		if !merged {
			return pools
		}
	}
}

// mergeTailAR1 merges the newest pool into its predecessor if the
// no-violation predicate fails between them, using the closed-form weighted
// combination of the two pools.
func mergeTailAR1(pools []ar1Pool, kern []float64, smin float64) ([]ar1Pool, bool) {
	if len(pools) < 2 {
		return pools, false
	}

	p := &pools[len(pools)-2]
	q := pools[len(pools)-1]

	if q.v/q.w >= p.v/p.w*kern[p.l]+smin {
		return pools, false
	}

	d := kern[p.l]
	p.v += q.v * d
	p.w += q.w * d * d
	p.l += q.l

	return pools[:len(pools)-1], true
}
