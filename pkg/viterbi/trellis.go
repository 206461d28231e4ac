package viterbi

import (
	"fmt"
	"math/bits"
)

// infiniteMetric marks states the decoder cannot be in yet. It is far above
// any metric spread the recursion can build between renormalizations.
const infiniteMetric = 1 << 20

// codeTables describe the K=7 trellis. They are built once and shared
// read-only by every decoder.
type codeTables struct {
	next   [NumStates][2]uint8 // next state for input bit
	output [NumStates][2]uint8 // expected code bits, X<<1 | Y

	// expected output of butterfly i on the branch i -> 2i. The other three
	// branches of the butterfly carry this value or its complement.
	butterfly [numButterflies]uint8
}

var tables = newCodeTables()

func parity(v uint) uint8 {
	return uint8(bits.OnesCount(v) & 1)
}

// EncodeStep returns the code bits (X, Y) and next state for input bit b.
func EncodeStep(state int, b byte) (x, y byte, next int) {
	r := uint(state)<<1 | uint(b&1)
	return parity(r & PolyX), parity(r & PolyY), int(r & (NumStates - 1))
}

func newCodeTables() *codeTables {
	t := &codeTables{}
	for s := 0; s < NumStates; s++ {
		for b := byte(0); b < 2; b++ {
			x, y, next := EncodeStep(s, b)
			t.next[s][b] = uint8(next)
			t.output[s][b] = x<<1 | y
		}
	}

	// Derive the butterfly table from the scalar tables and check the
	// butterfly structure holds for every state pair.
	for i := 0; i < numButterflies; i++ {
		e := t.output[i][0]
		hi := i + numButterflies
		if t.next[i][0] != uint8(2*i) || t.next[hi][0] != uint8(2*i) ||
			t.next[i][1] != uint8(2*i+1) || t.next[hi][1] != uint8(2*i+1) {
			panic(fmt.Sprintf("viterbi: butterfly %d does not map to states %d/%d", i, 2*i, 2*i+1))
		}
		if t.output[hi][0] != e^3 || t.output[i][1] != e^3 || t.output[hi][1] != e {
			panic(fmt.Sprintf("viterbi: butterfly %d outputs are not complementary", i))
		}
		t.butterfly[i] = e
	}
	return t
}

// generation is one set of path metrics and survivor registers.
type generation struct {
	metrics [NumStates]uint32
	paths   [NumStates]uint64
}

// trellis is the decoding state of one stream. gen[0] is current between
// butterfly calls; each call writes gen[1] and then gen[0] again.
type trellis struct {
	gen   [2]generation
	start int
}

func newTrellis(s0 int) *trellis {
	if s0 < 0 || s0 >= NumStates {
		panic(fmt.Sprintf("viterbi: start state %d out of range", s0))
	}
	t := &trellis{start: s0}
	t.reset()
	return t
}

func (t *trellis) reset() {
	for g := range t.gen {
		for s := 0; s < NumStates; s++ {
			t.gen[g].metrics[s] = infiniteMetric
			t.gen[g].paths[s] = 0
		}
	}
	t.gen[0].metrics[t.start] = 0
}
