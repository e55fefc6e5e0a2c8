package execution

// latency.go - per-exchange, per-user simulated order latency (spec.md
// §4.4): a Gamma-distributed sleep before pricing, implemented via the
// Marsaglia-Tsang rejection method over golang.org/x/exp/rand, the same
// generator family the rest of the pack reaches for when it needs
// anything beyond crypto/rand's uniform bytes.
//
// The sleep is cooperative: it selects on ctx.Done() so a cancelled order
// (engine shutdown) never blocks behind it.

import (
	"context"
	"math"
	"time"

	"golang.org/x/exp/rand"
)

// LatencyShape bundles the Gamma distribution's shape (k) and scale
// (theta, in milliseconds) parameters for one exchange/user pair.
type LatencyShape struct {
	Shape float64 // k, must be > 0
	Scale float64 // theta, milliseconds
}

// sampler draws Gamma(k, theta) variates via Marsaglia-Tsang.
type sampler struct {
	rng *rand.Rand
}

func newSampler(seed uint64) *sampler {
	return &sampler{rng: rand.New(rand.NewSource(seed))}
}

// gamma draws one sample from Gamma(shape, scale) via Marsaglia & Tsang's
// 2000 method, valid for shape >= 1; for shape < 1 the standard boost
// transform (multiply a Gamma(shape+1) sample by U^(1/shape)) is applied.
func (s *sampler) gamma(shape, scale float64) float64 {
	if shape <= 0 {
		shape = 1
	}
	if scale <= 0 {
		scale = 1
	}

	if shape < 1 {
		u := s.rng.Float64()
		return s.gamma(shape+1, scale) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9*d)

	for {
		var x, v float64
		for {
			x = s.rng.NormFloat64()
			v = 1 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := s.rng.Float64()

		if u < 1-0.0331*x*x*x*x {
			return d * v * scale
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v * scale
		}
	}
}

// LatencyModel draws and sleeps for a simulated per-order processing
// delay.
type LatencyModel struct {
	s *sampler
}

// NewLatencyModel builds a LatencyModel seeded from the process clock;
// determinism across runs is not a requirement here, only a plausible
// distribution shape.
func NewLatencyModel() *LatencyModel {
	return &LatencyModel{s: newSampler(uint64(time.Now().UnixNano()))}
}

// Sleep draws a latency sample from shape and sleeps that many
// milliseconds, cooperatively honoring ctx cancellation. Returns the
// sampled latency.
func (m *LatencyModel) Sleep(ctx context.Context, shape LatencyShape) time.Duration {
	ms := m.s.gamma(shape.Shape, shape.Scale)
	if ms < 0 {
		ms = 0
	}
	d := time.Duration(ms * float64(time.Millisecond))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
	return d
}
