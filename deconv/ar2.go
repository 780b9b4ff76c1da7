package deconv

import "math"

// AR2 solves the penalized sparse deconvolution problem for a second-order
// recursion c[t] = g1*c[t-1] + g2*c[t-2] + s[t]. The coefficients must have
// real characteristic roots (g1^2 + 4*g2 > 0); this is a precondition and is
// not checked.
//
// Each pool's optimal amplitude is found by a closed-form least-squares
// projection against precomputed impulse-response tables, conditioned on the
// preceding pool's last value. With Jitter set, a local discrete search
// shifts interior pool boundaries by {-2,-1,+1} samples after the merge pass
// converges, correcting the one-sample detection delay of the causal merge
// order.
func AR2(y []float64, g1, g2 float64, opts AR2Options) (c, s []float64) {
	t := len(y)
	c = make([]float64, t)

	if t == 0 {
		return c, make([]float64, 0)
	}

	if opts.TOverISI < 1 {
		opts.TOverISI = 1
	}

	k := newAR2Kernel(g1, g2, tableLen(t, opts.TOverISI))
	yp := penaltyCorrectedAR2(y, opts.Lambda, g1, g2)

	pools := singletonsAR2(t)
	pools = mergeAR2(yp, k, opts.SMin, pools)

	if opts.Jitter {
		jitterAR2(pools, yp, k, opts.SMin)
	}

	reconstructAR2(c, pools, g1, g2)

	return c, activityAR2(c, g1, g2)
}

// ImpulseAR2 returns the first n samples of the impulse response of the
// two-pole recursion with coefficients g1, g2. For real roots d, r in (0,1)
// the response is nonnegative and bounded between the two single-pole step
// responses.
func ImpulseAR2(g1, g2 float64, n int) []float64 {
	if n < 1 {
		return nil
	}

	return newAR2Kernel(g1, g2, n).g11
}

// ar2Kernel holds the impulse-response tables of a two-pole recursion.
//
// g11 is the response to a unit impulse at the pool start, g12 the cross
// term carrying the previous pool's last value, and g11g11/g11g12 their
// cumulative inner products, so each pool's optimal first value is a single
// closed-form projection restricted to the pool's length.
type ar2Kernel struct {
	g1, g2 float64
	g11    []float64
	g12    []float64
	g11g11 []float64
	g11g12 []float64
}

func newAR2Kernel(g1, g2 float64, n int) ar2Kernel {
	root := math.Sqrt(g1*g1 + 4*g2)
	d := (g1 + root) / 2
	r := (g1 - root) / 2

	k := ar2Kernel{
		g1:     g1,
		g2:     g2,
		g11:    make([]float64, n),
		g12:    make([]float64, n),
		g11g11: make([]float64, n),
		g11g12: make([]float64, n),
	}

	dj, rj := d, r // d^(j+1), r^(j+1)
	for j := 0; j < n; j++ {
		k.g11[j] = (dj - rj) / (d - r)
		if j > 0 {
			k.g12[j] = g2 * k.g11[j-1]
		}

		k.g11g11[j] = k.g11[j] * k.g11[j]
		k.g11g12[j] = k.g11[j] * k.g12[j]
		if j > 0 {
			k.g11g11[j] += k.g11g11[j-1]
			k.g11g12[j] += k.g11g12[j-1]
		}

		dj *= d
		rj *= r
	}

	return k
}

// tableLen bounds the materialized projection tables by the expected
// inter-spike interval; pools growing past it use truncated statistics,
// which is harmless once the response has decayed.
func tableLen(t, tOverISI int) int {
	n := t/tOverISI + 1
	if n > t {
		n = t
	}

	if n < 2 {
		n = 2
	}

	return n
}

func (k ar2Kernel) idx(j int) int {
	if j >= len(k.g11) {
		return len(k.g11) - 1
	}

	return j
}

// solvePool computes a pool's optimal first value by least-squares projection
// over [t, t+l), conditioned on the previous pool's last value, and the
// resulting value at the pool's last sample. The first value is clipped at
// zero.
func (k ar2Kernel) solvePool(yp []float64, t, l int, wprev float64) (first, last float64) {
	var num float64
	for j := 0; j < l; j++ {
		num += k.g11[k.idx(j)] * yp[t+j]
	}

	li := k.idx(l - 1)
	num -= k.g11g12[li] * wprev

	first = num / k.g11g11[li]
	if first < 0 {
		first = 0
	}

	last = first*k.g11[li] + wprev*k.g12[li]

	return first, last
}

// penaltyCorrectedAR2 folds the sparsity penalty into the trace. The
// coefficient of c[t] in the L1 term is (1-g1-g2) except at the final two
// samples, which lack future terms to amortize against.
func penaltyCorrectedAR2(y []float64, lambda, g1, g2 float64) []float64 {
	yp := append([]float64(nil), y...)
	if lambda == 0 {
		return yp
	}

	t := len(yp)
	for i := 0; i < t-2; i++ {
		yp[i] -= lambda * (1 - g1 - g2)
	}

	if t >= 2 {
		yp[t-2] -= lambda * (1 - g1)
	}

	yp[t-1] -= lambda

	return yp
}

func singletonsAR2(t int) []ar2Pool {
	pools := make([]ar2Pool, 0, t)
	for i := 0; i < t; i++ {
		pools = append(pools, ar2Pool{t: i, l: 1})
	}

	return pools
}

// mergeAR2 runs the backtracking merge pass over an initial partition. Each
// appended pool is re-solved against its current predecessor before the
// violation check, since earlier merges may have moved the predecessor's
// last value.
func mergeAR2(yp []float64, k ar2Kernel, smin float64, pools []ar2Pool) []ar2Pool {
	out := make([]ar2Pool, 0, len(pools))

	for _, p := range pools {
		var wprev float64
		if len(out) > 0 {
			wprev = out[len(out)-1].last
		}

		p.first, p.last = k.solvePool(yp, p.t, p.l, wprev)
		out = append(out, p)
		out = backtrackAR2(out, yp, k, smin)
	}

	return out
}

// backtrackAR2 merges the newest pool backward while the impulse implied at
// its boundary undercuts smin. The predicate is order-2: it needs both the
// predecessor's last value and its penultimate value, the latter reaching
// into the pool before when the predecessor has length one.
func backtrackAR2(pools []ar2Pool, yp []float64, k ar2Kernel, smin float64) []ar2Pool {
	for {
		var merged bool

		pools, merged = mergeTailAR2(pools, yp, k, smin)
		if !merged {
			return pools
		}
	}
}

// mergeTailAR2 merges the newest pool into its predecessor if the boundary
// impulse between them undercuts smin.
func mergeTailAR2(pools []ar2Pool, yp []float64, k ar2Kernel, smin float64) ([]ar2Pool, bool) {
	if len(pools) < 2 {
		return pools, false
	}

	n := len(pools)
	p := pools[n-2]
	q := pools[n-1]

	var wprev float64
	if n > 2 {
		wprev = pools[n-3].last
	}

	if q.first >= k.g1*p.last+k.g2*penultAR2(k, p, wprev)+smin {
		return pools, false
	}

	m := ar2Pool{t: p.t, l: p.l + q.l}
	m.first, m.last = k.solvePool(yp, m.t, m.l, wprev)
	pools[n-2] = m

	return pools[:n-1], true
}

// penultAR2 returns the reconstructed value at a pool's second-to-last
// sample; for a length-one pool that sample belongs to the preceding pool.
func penultAR2(k ar2Kernel, p ar2Pool, wprev float64) float64 {
	if p.l < 2 {
		return wprev
	}

	i := k.idx(p.l - 2)

	return p.first*k.g11[i] + wprev*k.g12[i]
}

// jitterOffsets reaches further left than right: a boundary placed by the
// causal merge order sits late when it is wrong, never early.
var jitterOffsets = [...]int{-2, -1, 1}

// jitterAR2 tries shifting each interior boundary by a small offset,
// re-solving both affected pools and keeping the best strictly improving
// candidate. The local cost cannot see the nonnegativity constraint, so
// every affected boundary impulse is re-checked against the merge predicate
// and infeasible candidates are rejected outright. It is a local discrete
// descent, not a global refinement.
func jitterAR2(pools []ar2Pool, yp []float64, k ar2Kernel, smin float64) {
	for i := 0; i+1 < len(pools); i++ {
		var wprev, wprev2 float64
		if i > 0 {
			wprev = pools[i-1].last
		}

		if i > 1 {
			wprev2 = pools[i-2].last
		}

		best := jitterCost(yp, k, pools[i], pools[i+1], wprev)
		bestP, bestQ := pools[i], pools[i+1]
		improved := false

		for _, off := range jitterOffsets {
			p := pools[i]
			q := pools[i+1]

			if p.l+off < 1 || q.l-off < 1 {
				continue
			}

			p.l += off
			q.t += off
			q.l -= off

			p.first, p.last = k.solvePool(yp, p.t, p.l, wprev)
			q.first, q.last = k.solvePool(yp, q.t, q.l, p.last)

			if i > 0 && p.first < k.g1*pools[i-1].last+k.g2*penultAR2(k, pools[i-1], wprev2)+smin {
				continue
			}

			if q.first < k.g1*p.last+k.g2*penultAR2(k, p, wprev)+smin {
				continue
			}

			if i+2 < len(pools) {
				nx := pools[i+2]
				nx.first, nx.last = k.solvePool(yp, nx.t, nx.l, q.last)

				if nx.first < k.g1*q.last+k.g2*penultAR2(k, q, p.last)+smin {
					continue
				}
			}

			if cost := jitterCost(yp, k, p, q, wprev); cost < best {
				best = cost
				bestP, bestQ = p, q
				improved = true
			}
		}

		if !improved {
			continue
		}

		pools[i], pools[i+1] = bestP, bestQ

		// The shifted boundary moved pool i+1's last value; re-solve the
		// next pool against it.
		if i+2 < len(pools) {
			n := &pools[i+2]
			n.first, n.last = k.solvePool(yp, n.t, n.l, bestQ.last)
		}
	}
}

// jitterCost is the squared residual of two adjacent pools' closed-form
// reconstructions over their combined span.
func jitterCost(yp []float64, k ar2Kernel, p, q ar2Pool, wprev float64) float64 {
	var cost float64

	for j := 0; j < p.l; j++ {
		i := k.idx(j)
		d := yp[p.t+j] - p.first*k.g11[i] - wprev*k.g12[i]
		cost += d * d
	}

	for j := 0; j < q.l; j++ {
		i := k.idx(j)
		d := yp[q.t+j] - q.first*k.g11[i] - p.last*k.g12[i]
		cost += d * d
	}

	return cost
}

// reconstructAR2 regenerates the dense signal by walking the pools: each
// pool emits its first value, then the recursion runs forward using the
// previous pool's last value as the second initial condition. The result is
// clipped at zero afterwards.
func reconstructAR2(c []float64, pools []ar2Pool, g1, g2 float64) {
	var prev1, prev2 float64

	for _, p := range pools {
		for j := 0; j < p.l; j++ {
			v := p.first
			if j > 0 {
				v = g1*prev1 + g2*prev2
			}

			c[p.t+j] = v
			prev2, prev1 = prev1, v
		}
	}

	for i, v := range c {
		if v < 0 {
			c[i] = 0
		}
	}
}
