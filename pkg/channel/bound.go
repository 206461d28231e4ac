package channel

import (
	"math"
)

// distanceSpectrum is the information weight B_d of the (171,133) K=7 code
// for the first free distances.
var distanceSpectrum = []struct {
	d int
	b float64
}{
	{10, 36},
	{12, 211},
	{14, 1404},
	{16, 11633},
	{18, 77433},
}

// Q is the Gaussian tail probability.
func Q(x float64) float64 {
	return 0.5 * math.Erfc(x/math.Sqrt2)
}

// UnionBound is the soft-decision bit error bound of the rate 1/2 mother
// code at ebn0dB, truncated to the first terms of the spectrum.
func UnionBound(ebn0dB float64) float64 {
	ebn0 := math.Pow(10, ebn0dB/10)
	sum := 0.0
	for _, t := range distanceSpectrum {
		sum += t.b * Q(math.Sqrt(2*float64(t.d)*0.5*ebn0))
	}
	return sum
}

// UncodedBER is the bit error rate of uncoded BPSK at ebn0dB.
func UncodedBER(ebn0dB float64) float64 {
	return Q(math.Sqrt(2 * math.Pow(10, ebn0dB/10)))
}
