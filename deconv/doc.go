// Package deconv provides sparse nonnegative deconvolution of one-dimensional
// traces generated by first- or second-order autoregressive impulse responses.
//
// The input model is a trace y produced by driving a known exponential decay
// kernel with a sparse train of nonnegative impulses and adding noise:
//
//	AR(1): c[t] = g*c[t-1] + s[t]
//	AR(2): c[t] = g1*c[t-1] + g2*c[t-2] + s[t]
//
// with s[t] >= 0 and s sparse. The solvers recover the denoised signal c and
// the impulse train s from y using an active-set merge algorithm: the timeline
// starts as one pool per sample and adjacent pools are merged whenever the
// nonnegativity (or minimum-impulse-size) constraint is violated between them,
// backtracking leftward after each merge. This is the pool-adjacent-violators
// idea specialized to exponentially decaying generators, and runs in O(T).
//
// # Solver selection
//
// Four entry points cover the order/mode matrix:
//
//   - [AR1]: penalized AR(1) problem with fixed sparsity penalty lambda and
//     optional minimum impulse size.
//   - [ConstrainedAR1]: AR(1) problem constrained to a target residual energy
//     sn^2*T; the penalty is found by dual ascent. Optionally also estimates
//     the baseline and the decay coefficient, and supports a decimated warm
//     start for long traces.
//   - [AR2]: penalized AR(2) problem for a two-pole kernel, with an optional
//     boundary "jitter" refinement correcting the one-sample detection delay
//     of the causal merge order.
//   - [ConstrainedAR2]: dual-ascent analogue of [ConstrainedAR1] for the
//     two-pole kernel.
//
// # Usage
//
//	c, s := deconv.AR1(y, 0.95, deconv.AR1Options{Lambda: 1})
//
//	res := deconv.ConstrainedAR1(y, 0.95, sn, deconv.DefaultConstrainedAR1Options())
//	// res.C, res.S, res.Baseline, res.Decay, res.Lambda
//
// The constrained solvers adjust the penalty until the residual energy lies
// within a relative 1e-4 band of sn^2*T, the impulse train collapses to zero,
// or the iteration budget runs out; non-convergence is not an error and the
// best solution found is returned.
//
// All solvers are purely sequential and allocation-bounded by the trace
// length; independent traces can be processed concurrently by independent
// calls. Parameter validity (g in (0,1), sn > 0) is a caller precondition and
// is not checked.
package deconv
