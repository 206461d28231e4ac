package viterbi

import (
	"math"
)

// Channel design point the branch-metric table is built for.
const (
	DefaultAmplitude    = 100  // soft value of a received "1"
	DefaultDesignEbN0dB = 12.0 // Eb/N0 the likelihoods are computed at
	DefaultMetricScale  = 4
	motherRate          = 0.5

	maxCost = 255
)

// BranchMetrics maps a received 8-bit soft value to the cost of each
// expected code bit. Lower is better. The table is immutable once built.
type BranchMetrics struct {
	cost      [2][256]uint8
	amplitude int
	esn0      float64
	scale     int
}

// NewBranchMetrics builds the cost table for BPSK at +/-amp in Gaussian
// noise with the given Es/N0 (linear). Each soft value q stands for the
// quantization interval [q-0.5, q+0.5], with the outermost values open ended.
func NewBranchMetrics(amp int, esn0 float64, scale int) *BranchMetrics {
	bm := &BranchMetrics{amplitude: amp, esn0: esn0, scale: scale}

	sigma := float64(amp) * math.Sqrt(0.5/esn0)
	for idx := 0; idx < 256; idx++ {
		v := float64(int8(uint8(idx)))
		lo, hi := v-0.5, v+0.5
		if v == -128 {
			lo = math.Inf(-1)
		}
		if v == 127 {
			hi = math.Inf(1)
		}

		p0 := intervalProb(lo, hi, -float64(amp), sigma)
		p1 := intervalProb(lo, hi, float64(amp), sigma)
		if p0 == 0 && p1 == 0 {
			p0, p1 = 1, 1
		}

		bm.cost[0][idx] = likelihoodCost(p0, p0+p1, scale)
		bm.cost[1][idx] = likelihoodCost(p1, p0+p1, scale)
	}
	return bm
}

// DefaultBranchMetrics returns the table for the default design point.
func DefaultBranchMetrics() *BranchMetrics {
	return NewBranchMetrics(DefaultAmplitude, DesignEsN0(DefaultDesignEbN0dB), DefaultMetricScale)
}

// DesignEsN0 converts Eb/N0 in dB to a linear Es/N0 for the rate 1/2 mother code.
func DesignEsN0(ebn0dB float64) float64 {
	return motherRate * math.Pow(10, ebn0dB/10)
}

// Cost returns the cost of receiving soft value q when bit was sent.
func (b *BranchMetrics) Cost(bit byte, q int8) uint8 {
	return b.cost[bit&1][uint8(q)]
}

// Amplitude returns the soft value a noiseless "1" is quantized to.
func (b *BranchMetrics) Amplitude() int { return b.amplitude }

// Quantize maps a hard code bit to its noiseless soft value.
func (b *BranchMetrics) Quantize(bit byte) int8 {
	if bit&1 == 1 {
		return int8(b.amplitude)
	}
	return int8(-b.amplitude)
}

func likelihoodCost(p, total float64, scale int) uint8 {
	if p == 0 {
		return maxCost
	}
	metric := math.Log2(2 * p / total)
	c := math.Floor(float64(scale)*(1-metric) + 0.5)
	if c > maxCost {
		return maxCost
	}
	if c < 0 {
		return 0
	}
	return uint8(c)
}

// intervalProb is P(lo < X <= hi) for X ~ N(mu, sigma^2). The tail form of
// erfc is used on the side away from the mean so small probabilities keep
// their precision.
func intervalProb(lo, hi, mu, sigma float64) float64 {
	a := (lo - mu) / (sigma * math.Sqrt2)
	b := (hi - mu) / (sigma * math.Sqrt2)
	if a >= 0 {
		return 0.5 * (math.Erfc(a) - math.Erfc(b))
	}
	if b <= 0 {
		return 0.5 * (math.Erfc(-b) - math.Erfc(-a))
	}
	return 1 - 0.5*math.Erfc(-a) - 0.5*math.Erfc(b)
}
