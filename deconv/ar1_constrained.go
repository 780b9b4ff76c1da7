package deconv

import (
	"math"
	"sort"

	"github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// rssTol is the relative width of the residual-energy target band.
	rssTol = 1e-4

	// minSpikeMass is the total signal mass below which the solution is
	// considered collapsed and dual ascent stops.
	minSpikeMass = 1e-9

	// plainIterCap bounds the dual ascent when no baseline or decay
	// refinement is active. The Newton step normally lands inside the
	// target band within a handful of iterations; the cap only guards
	// against stalling from numerical drift.
	plainIterCap = 100

	// baselineQuantile seeds the initial baseline estimate.
	baselineQuantile = 0.15

	// decayConvergedTol stops re-invoking the minimizer once successive
	// decay estimates agree this closely.
	decayConvergedTol = 1e-3
)

// ConstrainedAR1 solves the noise-constrained AR(1) deconvolution problem: it
// finds the sparsity penalty whose solution has residual energy sn^2*T, by
// dual ascent on the penalty with a Newton step per iteration.
//
// With OptimizeBaseline set, a constant baseline is estimated jointly; with
// OptimizeDecay > 0 the decay coefficient is additionally refined over the
// largest isolated events using the configured bounded minimizer. Decimate
// enables the block-averaged warm start for long traces.
//
// The loop stops once the residual energy lies within a relative 1e-4 band of
// the target, the impulse train collapses to zero, or the iteration budget is
// exhausted; non-convergence is reported through Converged, never as an
// error. g in (0,1) and sn > 0 are caller preconditions.
func ConstrainedAR1(y []float64, g, sn float64, opts ConstrainedAR1Options) AR1Result {
	if len(y) == 0 {
		return AR1Result{C: []float64{}, S: []float64{}, Decay: g}
	}

	if opts.Decimate < 1 {
		opts.Decimate = 1
	}

	if opts.MaxIter < 1 {
		opts.MaxIter = 1
	}

	if opts.Minimizer == nil {
		opts.Minimizer = NelderMead{}
	}

	thresh := sn * sn * float64(len(y))

	if opts.Decimate > 1 && len(y) >= 2*opts.Decimate {
		return decimatedConstrainedAR1(y, g, thresh, opts)
	}

	s := newAR1Solver(y, g, thresh, opts)
	s.solve()

	return s.result()
}

// ar1Solver carries the mutable state of one constrained solve. It is owned
// exclusively by a single call.
type ar1Solver struct {
	y      []float64
	g      float64
	thresh float64
	opts   ConstrainedAR1Options

	kern    []float64 // g^0 .. g^T
	pools   []ar1Pool
	scratch []ar1Pool
	lambda  float64
	b       float64

	c   []float64
	res []float64
	aa  []float64 // per-sample penalty sensitivity -dc/dlambda

	iters      int
	converged  bool
	gConverged bool
}

func newAR1Solver(y []float64, g, thresh float64, opts ConstrainedAR1Options) *ar1Solver {
	t := len(y)

	return &ar1Solver{
		y:       y,
		g:       g,
		thresh:  thresh,
		opts:    opts,
		kern:    decayKernel(g, t+1),
		pools:   make([]ar1Pool, 0, t),
		scratch: make([]ar1Pool, 0, t),
		c:       make([]float64, t),
		res:     make([]float64, t),
		aa:      make([]float64, t),
	}
}

// initPools builds the per-sample singleton partition. Dual ascent starts at
// lambda = 0, so pool values carry only the baseline correction.
func (s *ar1Solver) initPools() {
	if s.opts.OptimizeBaseline {
		s.b = percentile(s.y, baselineQuantile)
	}

	s.pools = s.pools[:0]
	for i := range s.y {
		s.pools = append(s.pools, ar1Pool{v: s.y[i] - s.b, w: 1, t: i, l: 1})
	}
}

// merge re-runs the backtracking merge pass over the current partition.
// The violation predicate compares cross products v_p*w_q*g^l vs w_p*v_q to
// avoid divisions in the hot loop.
func (s *ar1Solver) merge() {
	out := s.scratch[:0]
	for _, p := range s.pools {
		out = append(out, p)
		out = s.backtrack(out)
	}

	s.pools, s.scratch = out, s.pools
}

func (s *ar1Solver) backtrack(pools []ar1Pool) []ar1Pool {
	for len(pools) > 1 {
		p := &pools[len(pools)-2]
		q := pools[len(pools)-1]

		if q.v*p.w >= p.v*q.w*s.kern[p.l] {
			break
		}

		d := s.kern[p.l]
		p.v += q.v * d
		p.w += q.w * d * d
		p.l += q.l
		pools = pools[:len(pools)-1]
	}

	return pools
}

// reconstruct writes the dense signal and residual and returns the residual
// energy ||y - b - c||^2.
func (s *ar1Solver) reconstruct() float64 {
	reconstructAR1(s.c, s.kern, s.pools)
	floats.SubTo(s.res, s.y, s.c)

	if s.b != 0 {
		floats.AddConst(-s.b, s.res)
	}

	return floats.Dot(s.res, s.res)
}

// closeBaseline absorbs the mean residual into the baseline. The penalty is
// shifted by -db/(1-g) so that every interior pool's value stays consistent;
// the terminal pool's correction coefficient is 1 rather than (1-g^l), so it
// takes an explicit fix-up.
func (s *ar1Solver) closeBaseline() {
	db := stat.Mean(s.res, nil)
	s.b += db
	s.lambda -= db / (1 - s.g)

	last := &s.pools[len(s.pools)-1]
	last.v += db * s.kern[last.l] / (1 - s.g)
}

// dualStep takes one Newton step on the penalty: it assembles the per-sample
// sensitivity, solves the scalar quadratic ||res + dl*aa||^2 = thresh for the
// +sqrt root, and shifts every pool's value accordingly. Returns false when
// no step is possible.
func (s *ar1Solver) dualStep(rss float64) bool {
	n := len(s.pools)
	for k, p := range s.pools {
		sens := (1 - s.kern[p.l]) / p.w
		if k == n-1 {
			// The terminal pool's penalty is not amortized by a future term.
			sens = 1 / p.w
		}

		vecmath.ScaleBlock(s.aa[p.t:p.t+p.l], s.kern[:p.l], sens)
	}

	if s.opts.OptimizeBaseline {
		// The baseline will re-close to the residual mean, so the effective
		// sensitivity is centered by its mean contribution.
		var zz float64
		for _, p := range s.pools {
			d := 1 - s.kern[p.l]
			zz += d * d / p.w
		}

		floats.AddConst(-zz/(float64(len(s.y))*(1-s.g)), s.aa)
	}

	aaaa := floats.Dot(s.aa, s.aa)
	if aaaa <= 0 {
		return false
	}

	bb := floats.Dot(s.res, s.aa)

	disc := bb*bb - aaaa*(rss-s.thresh)
	if disc < 0 {
		// Numerical drift pushed the discriminant negative; clamp to the
		// vertex step instead of failing.
		disc = 0
	}

	dl := (-bb + math.Sqrt(disc)) / aaaa
	if dl == 0 {
		return false
	}

	s.lambda += dl

	for k := range s.pools {
		p := &s.pools[k]
		if k == n-1 {
			p.v -= dl
		} else {
			p.v -= dl * (1 - s.kern[p.l])
		}
	}

	return true
}

// refineDecay delegates the joint (baseline, decay) search to the bounded
// minimizer over the largest isolated events, then rebuilds every pool from
// the raw trace under the refreshed kernel.
func (s *ar1Solver) refineDecay() {
	events := make([]ar1Pool, 0, len(s.pools))
	for _, p := range s.pools {
		// Pools spanning fewer than three samples carry no decay information.
		if p.l >= 3 && p.v > 0 {
			events = append(events, p)
		}
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].v/events[i].w > events[j].v/events[j].w
	})

	if len(events) > s.opts.OptimizeDecay {
		events = events[:s.opts.OptimizeDecay]
	}

	if len(events) == 0 {
		s.gConverged = true
		return
	}

	obj := decayObjective{y: s.y, events: events}
	bounds := Bounds{BMax: math.Inf(1), GMax: 1}

	b, g := s.opts.Minimizer.Minimize(obj.eval, s.b, s.g, bounds)
	if math.Abs(g-s.g) < decayConvergedTol {
		s.gConverged = true
	}

	s.b = b
	s.g = g
	s.kern = decayKernel(g, len(s.y)+1)
	s.rebuildPools()
}

// rebuildPools re-derives every pool's sufficient statistics from the raw
// trace, the current baseline, and the current penalty, keeping the pool
// boundaries fixed.
func (s *ar1Solver) rebuildPools() {
	n := len(s.pools)
	for k := range s.pools {
		p := &s.pools[k]

		var v float64
		for j := 0; j < p.l; j++ {
			v += s.kern[j] * (s.y[p.t+j] - s.b)
		}

		kl := s.kern[p.l]
		if k == n-1 {
			v -= s.lambda
		} else {
			v -= s.lambda * (1 - kl)
		}

		p.v = v
		p.w = (1 - kl*kl) / (1 - s.g*s.g)
	}
}

func (s *ar1Solver) inBand(rss float64) bool {
	return math.Abs(rss-s.thresh) <= s.thresh*rssTol
}

func (s *ar1Solver) solve() {
	s.initPools()
	s.merge()
	rss := s.reconstruct()

	if !s.opts.OptimizeBaseline {
		for rss < s.thresh*(1-rssTol) && floats.Sum(s.c) > minSpikeMass && s.iters < plainIterCap {
			if !s.dualStep(rss) {
				break
			}

			s.merge()
			rss = s.reconstruct()
			s.iters++
		}

		s.converged = s.inBand(rss) || floats.Sum(s.c) <= minSpikeMass
		return
	}

	for iter := 0; iter < s.opts.MaxIter; iter++ {
		if s.inBand(rss) || floats.Sum(s.c) <= minSpikeMass {
			break
		}

		if s.opts.OptimizeDecay > 0 && !s.gConverged && iter < s.opts.MaxIter-2 {
			s.refineDecay()
			s.merge()
			rss = s.reconstruct()
		}

		s.closeBaseline()
		rss = s.reconstruct()

		if !s.dualStep(rss) {
			s.iters++
			break
		}

		s.merge()
		rss = s.reconstruct()
		s.iters++
	}

	s.converged = s.inBand(rss) || floats.Sum(s.c) <= minSpikeMass
}

func (s *ar1Solver) result() AR1Result {
	return AR1Result{
		C:          s.c,
		S:          activityAR1(s.c, s.g),
		Baseline:   s.b,
		Decay:      s.g,
		Lambda:     s.lambda,
		Iterations: s.iters,
		Converged:  s.converged,
	}
}

// decayObjective scores a (baseline, decay) candidate over a fixed window
// set. It is an explicit context rather than a closure so the minimizer
// interface stays self-contained.
type decayObjective struct {
	y      []float64
	events []ar1Pool
}

// eval fits each event's amplitude in closed form under the candidate
// parameters and returns the total squared residual over the event windows.
func (o decayObjective) eval(b, g float64) float64 {
	var rss float64

	for _, p := range o.events {
		var num, den float64

		gj := 1.0
		for j := 0; j < p.l; j++ {
			num += gj * (o.y[p.t+j] - b)
			den += gj * gj
			gj *= g
		}

		h := num / den
		if h < 0 {
			h = 0
		}

		gj = 1.0
		for j := 0; j < p.l; j++ {
			d := o.y[p.t+j] - b - h*gj
			rss += d * d
			gj *= g
		}
	}

	return rss
}

// percentile returns the p-quantile of y without mutating it.
func percentile(y []float64, p float64) float64 {
	tmp := append([]float64(nil), y...)
	sort.Float64s(tmp)

	return stat.Quantile(p, stat.Empirical, tmp, nil)
}
