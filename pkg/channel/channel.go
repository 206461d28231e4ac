package channel

// Channel models used to exercise the decoder: BPSK over additive white
// Gaussian noise producing 8-bit soft values, and a binary symmetric
// channel for hard bits. Both are seeded and fully deterministic.

import (
	"math"
	"math/bits"
	"math/rand/v2"
)

// NewRand returns a deterministic PCG generator for seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// RandomBytes returns n pseudo-random bytes from seed.
func RandomBytes(n int, seed uint64) []byte {
	r := NewRand(seed)
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(r.Uint32())
	}
	return out
}

// AWGN sends code bits as +/-amplitude and adds Gaussian noise. Received
// values are rounded and clipped to int8.
type AWGN struct {
	amplitude float64
	sigma     float64
	rng       *rand.Rand
}

// NewAWGN returns a channel at ebn0dB for a code of the given rate.
func NewAWGN(amplitude int, ebn0dB, rate float64, seed uint64) *AWGN {
	esn0 := rate * math.Pow(10, ebn0dB/10)
	return &AWGN{
		amplitude: float64(amplitude),
		sigma:     float64(amplitude) * math.Sqrt(0.5/esn0),
		rng:       NewRand(seed),
	}
}

// Sigma returns the noise standard deviation in soft value units.
func (c *AWGN) Sigma() float64 { return c.sigma }

// Transmit writes the received soft value of every bit to dst.
func (c *AWGN) Transmit(dst []int8, codeBits []byte) {
	for i, b := range codeBits {
		v := -c.amplitude
		if b&1 == 1 {
			v = c.amplitude
		}
		v = math.Round(v + c.sigma*c.rng.NormFloat64())
		switch {
		case v > math.MaxInt8:
			v = math.MaxInt8
		case v < math.MinInt8:
			v = math.MinInt8
		}
		dst[i] = int8(v)
	}
}

// BSC flips each bit independently with probability p.
type BSC struct {
	p   float64
	rng *rand.Rand
}

// NewBSC returns a binary symmetric channel with crossover probability p.
func NewBSC(p float64, seed uint64) *BSC {
	return &BSC{p: p, rng: NewRand(seed)}
}

// Transmit flips bits in place (one bit per byte) and returns the flip count.
func (c *BSC) Transmit(codeBits []byte) int {
	flips := 0
	for i := range codeBits {
		if c.rng.Float64() < c.p {
			codeBits[i] ^= 1
			flips++
		}
	}
	return flips
}

// TransmitSymbols flips the low m bits of each symbol byte in place.
func (c *BSC) TransmitSymbols(symbols []byte, m int) int {
	flips := 0
	for i := range symbols {
		for j := 0; j < m; j++ {
			if c.rng.Float64() < c.p {
				symbols[i] ^= 1 << uint(j)
				flips++
			}
		}
	}
	return flips
}

// CountBitErrors returns the number of differing bits over the common length.
func CountBitErrors(a, b []byte) int {
	n := min(len(a), len(b))
	errs := 0
	for i := 0; i < n; i++ {
		errs += bits.OnesCount8(a[i] ^ b[i])
	}
	return errs
}
