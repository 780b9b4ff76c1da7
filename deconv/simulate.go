package deconv

import (
	"math/rand"

	"github.com/cwbudde/algo-vecmath"
)

// Simulator generates deterministic synthetic spike traces: a Bernoulli
// impulse train convolved with the AR kernel plus Gaussian noise. It exists
// for tests, examples, and benchmarks; the solvers never depend on it.
type Simulator struct {
	rate  float64
	amp   float64
	noise float64
	seed  int64
}

// SimOption configures a Simulator.
type SimOption func(*Simulator)

// WithSpikeRate sets the per-sample impulse probability.
func WithSpikeRate(rate float64) SimOption {
	return func(s *Simulator) {
		if rate >= 0 && rate <= 1 {
			s.rate = rate
		}
	}
}

// WithAmplitude sets the impulse amplitude.
func WithAmplitude(amp float64) SimOption {
	return func(s *Simulator) {
		if amp > 0 {
			s.amp = amp
		}
	}
}

// WithNoise sets the additive Gaussian noise standard deviation.
func WithNoise(sigma float64) SimOption {
	return func(s *Simulator) {
		if sigma >= 0 {
			s.noise = sigma
		}
	}
}

// WithSeed sets the deterministic random seed.
func WithSeed(seed int64) SimOption {
	return func(s *Simulator) {
		s.seed = seed
	}
}

// NewSimulator creates a configured trace simulator.
func NewSimulator(opts ...SimOption) *Simulator {
	s := &Simulator{
		rate:  0.01,
		amp:   1,
		noise: 0.1,
		seed:  1,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// AR1 generates a noisy AR(1) trace along with its ground-truth signal and
// impulse train.
func (sim *Simulator) AR1(samples int, g float64) (y, c, s []float64) {
	rng := rand.New(rand.NewSource(sim.seed))

	y = make([]float64, samples)
	c = make([]float64, samples)
	s = make([]float64, samples)

	var prev float64
	for t := 0; t < samples; t++ {
		if rng.Float64() < sim.rate {
			s[t] = sim.amp
		}

		c[t] = g*prev + s[t]
		prev = c[t]
	}

	sim.addNoise(rng, y, c)

	return y, c, s
}

// AR2 generates a noisy AR(2) trace along with its ground-truth signal and
// impulse train.
func (sim *Simulator) AR2(samples int, g1, g2 float64) (y, c, s []float64) {
	rng := rand.New(rand.NewSource(sim.seed))

	y = make([]float64, samples)
	c = make([]float64, samples)
	s = make([]float64, samples)

	var prev1, prev2 float64
	for t := 0; t < samples; t++ {
		if rng.Float64() < sim.rate {
			s[t] = sim.amp
		}

		c[t] = g1*prev1 + g2*prev2 + s[t]
		prev2, prev1 = prev1, c[t]
	}

	sim.addNoise(rng, y, c)

	return y, c, s
}

// addNoise writes y = c + noise.
func (sim *Simulator) addNoise(rng *rand.Rand, y, c []float64) {
	copy(y, c)

	noise := make([]float64, len(y))
	for t := range noise {
		noise[t] = sim.noise * rng.NormFloat64()
	}

	vecmath.AddBlockInPlace(y, noise)
}
