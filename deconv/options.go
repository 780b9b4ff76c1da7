package deconv

// AR1Options configures the unconstrained AR(1) solver.
type AR1Options struct {
	// Lambda is the sparsity penalty on the L1 norm of the impulse train.
	// Must be >= 0. Zero disables the penalty entirely.
	Lambda float64

	// SMin is the minimum accepted impulse size: every returned impulse is
	// either zero or at least SMin. Must be >= 0.
	SMin float64
}

// DefaultAR1Options returns the unpenalized, unthresholded configuration.
func DefaultAR1Options() AR1Options {
	return AR1Options{}
}

// ConstrainedAR1Options configures the noise-constrained AR(1) solver.
type ConstrainedAR1Options struct {
	// OptimizeBaseline jointly estimates a constant baseline, seeded from
	// the 15th percentile of the trace and closed exactly after each merge.
	OptimizeBaseline bool

	// OptimizeDecay is the number of largest isolated events used to refine
	// the decay coefficient via the bounded minimizer. Zero disables decay
	// refinement. Only honored when OptimizeBaseline is set.
	OptimizeDecay int

	// Decimate > 1 enables the warm start: the full solve runs first on a
	// block-averaged trace and the fine solve only re-derives pools near
	// the coarse boundaries. 1 disables decimation.
	Decimate int

	// MaxIter bounds the outer dual-ascent loop when baseline or decay
	// optimization is active.
	MaxIter int

	// Minimizer performs the joint (baseline, decay) refinement. Nil
	// selects the package default ([NelderMead]).
	Minimizer Minimizer
}

// DefaultConstrainedAR1Options returns the plain noise-constrained
// configuration without baseline or decay refinement.
func DefaultConstrainedAR1Options() ConstrainedAR1Options {
	return ConstrainedAR1Options{
		Decimate: 1,
		MaxIter:  5,
	}
}

// AR1Result holds the output of [ConstrainedAR1].
type AR1Result struct {
	C        []float64 // denoised signal
	S        []float64 // impulse train
	Baseline float64   // estimated baseline (zero unless OptimizeBaseline)
	Decay    float64   // decay coefficient, possibly refined
	Lambda   float64   // penalty achieving the returned residual

	// Iterations counts outer dual-ascent passes; Converged reports whether
	// the residual energy ended inside the target band.
	Iterations int
	Converged  bool
}

// AR2Options configures the unconstrained AR(2) solver.
type AR2Options struct {
	// Lambda is the sparsity penalty. Must be >= 0.
	Lambda float64

	// SMin is the minimum accepted impulse size. Must be >= 0.
	SMin float64

	// TOverISI is the ratio of trace length to expected inter-spike
	// interval; it bounds the pool length for which the closed-form
	// projection tables are materialized. Must be >= 1.
	TOverISI int

	// Jitter enables the local boundary-shift refinement after the merge
	// pass converges.
	Jitter bool
}

// DefaultAR2Options returns the unpenalized configuration with jitter
// refinement enabled.
func DefaultAR2Options() AR2Options {
	return AR2Options{
		TOverISI: 1,
		Jitter:   true,
	}
}

// ConstrainedAR2Options configures the noise-constrained AR(2) solver.
type ConstrainedAR2Options struct {
	// TOverISI bounds the projection table length, as in [AR2Options].
	TOverISI int

	// MaxIter bounds the outer dual-ascent loop; numerical drift could
	// otherwise keep the residual hovering just outside the target band.
	MaxIter int
}

// DefaultConstrainedAR2Options returns the default constrained AR(2)
// configuration.
func DefaultConstrainedAR2Options() ConstrainedAR2Options {
	return ConstrainedAR2Options{
		TOverISI: 1,
		MaxIter:  50,
	}
}

// AR2Result holds the output of [ConstrainedAR2].
type AR2Result struct {
	C      []float64
	S      []float64
	Lambda float64

	Iterations int
	Converged  bool
}
