package viterbi

// DefaultLaneWidth is the number of butterflies processed per vector
// operation: four 32-bit metrics, one 128-bit register.
const DefaultLaneWidth = 4

// kernel advances a trellis by two steps using four soft values
// (X0, Y0, X1, Y1). It always leaves the result in gen[0].
type kernel interface {
	butterfly2(t *trellis, sym []int8)
}

// ValidLaneWidth reports whether w butterflies per vector divide the trellis evenly.
func ValidLaneWidth(w int) bool {
	return w > 0 && w <= numButterflies && numButterflies%w == 0
}

// vectorKernel processes the 32 butterflies in groups of width lanes. Every
// lane runs the same branch-free add-compare-select, so the group maps onto
// a SIMD register of that many 32-bit metrics.
type vectorKernel struct {
	width int
	bm    *BranchMetrics
}

func (k *vectorKernel) butterfly2(t *trellis, sym []int8) {
	k.step(&t.gen[0], &t.gen[1], sym[0], sym[1])
	k.step(&t.gen[1], &t.gen[0], sym[2], sym[3])
}

func (k *vectorKernel) step(old, next *generation, x, y int8) {
	qx, qy := uint8(x), uint8(y)

	// Branch metric for each expected output pair X<<1|Y.
	var branch [4]uint32
	for e := 0; e < 4; e++ {
		branch[e] = uint32(k.bm.cost[e>>1][qx]) + uint32(k.bm.cost[e&1][qy])
	}

	var (
		bm, bmc        [numButterflies]uint32
		lo, hi         [numButterflies]uint32
		m0, m1, m2, m3 [numButterflies]uint32
		sel0, sel1     [numButterflies]uint32
	)

	w := k.width
	for base := 0; base < numButterflies; base += w {
		exp := tables.butterfly[base : base+w]

		for l := 0; l < w; l++ {
			bm[l] = branch[exp[l]]
			bmc[l] = branch[exp[l]^3]
			lo[l] = old.metrics[base+l]
			hi[l] = old.metrics[base+l+numButterflies]
		}

		// add
		for l := 0; l < w; l++ {
			m0[l] = lo[l] + bm[l]
			m1[l] = hi[l] + bmc[l]
			m2[l] = lo[l] + bmc[l]
			m3[l] = hi[l] + bm[l]
		}

		// compare: the upper predecessor wins only when strictly cheaper
		for l := 0; l < w; l++ {
			sel0[l] = lessMask(m1[l], m0[l])
			sel1[l] = lessMask(m3[l], m2[l])
		}

		// select
		for l := 0; l < w; l++ {
			i := base + l
			pLo := old.paths[i]
			pHi := old.paths[i+numButterflies]
			s0, s1 := widen(sel0[l]), widen(sel1[l])

			next.metrics[2*i] = m0[l] ^ ((m0[l] ^ m1[l]) & sel0[l])
			next.metrics[2*i+1] = m2[l] ^ ((m2[l] ^ m3[l]) & sel1[l])
			next.paths[2*i] = (pLo ^ ((pLo ^ pHi) & s0)) << 1
			next.paths[2*i+1] = (pLo^((pLo^pHi)&s1))<<1 | 1
		}
	}
}

// lessMask is all ones when a < b and zero otherwise.
func lessMask(a, b uint32) uint32 {
	return uint32((int64(a) - int64(b)) >> 63)
}

func widen(mask uint32) uint64 {
	return uint64(int64(int32(mask)))
}
