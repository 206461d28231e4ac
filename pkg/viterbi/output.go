package viterbi

// Output cadence. Within every window of 16 mother-code bits (8 trellis
// steps) the recursion runs at bit counts 3, 7, 11 and 15, and one byte is
// taken after the call at 11. The survivor bits at extractShift..+7 then
// hold the input byte Latency bytes back, MSB in the highest position.
const (
	butterflyPeriod = 4
	extractPeriod   = 16
	extractPhase    = 11
	extractShift    = 38

	// Latency is the fixed decoding delay in output bytes. The first
	// Latency bytes of a stream are zero warm-up bytes.
	Latency = 5
)

// extract emits the byte held by the best survivor and renormalizes the
// metrics so the minimum is zero again.
func (t *trellis) extract() byte {
	g := &t.gen[0]

	best := 0
	minMetric := g.metrics[0]
	for s := 1; s < NumStates; s++ {
		if g.metrics[s] < minMetric {
			minMetric = g.metrics[s]
			best = s
		}
	}

	out := byte(g.paths[best] >> extractShift)

	for s := range g.metrics {
		g.metrics[s] -= minMetric
	}
	return out
}

// decodeBlock runs the recursion over the soft mother-code values of one
// block (2K values) and writes K/8 bytes to out. It returns the byte count.
func (t *trellis) decodeBlock(k kernel, soft []int8, out []byte) int {
	n := 0
	for i := range soft {
		if i%butterflyPeriod == butterflyPeriod-1 {
			k.butterfly2(t, soft[i-3:i+1])
		}
		if i%extractPeriod == extractPhase {
			out[n] = t.extract()
			n++
		}
	}
	return n
}
