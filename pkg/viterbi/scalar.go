package viterbi

// scalarKernel walks every state through the transition table one branch at
// a time. It is slow and obvious, and serves as the reference the vector
// kernel is checked against.
type scalarKernel struct {
	bm *BranchMetrics
}

func (k *scalarKernel) butterfly2(t *trellis, sym []int8) {
	k.step(&t.gen[0], &t.gen[1], sym[0], sym[1])
	k.step(&t.gen[1], &t.gen[0], sym[2], sym[3])
}

func (k *scalarKernel) step(old, next *generation, x, y int8) {
	var seen [NumStates]bool

	// States are visited in ascending order, so the lower predecessor of a
	// butterfly is always considered first and keeps ties.
	for s := 0; s < NumStates; s++ {
		for b := byte(0); b < 2; b++ {
			ns := tables.next[s][b]
			out := tables.output[s][b]
			m := old.metrics[s] + uint32(k.bm.Cost(out>>1, x)) + uint32(k.bm.Cost(out&1, y))

			if !seen[ns] || m < next.metrics[ns] {
				seen[ns] = true
				next.metrics[ns] = m
				next.paths[ns] = old.paths[s]<<1 | uint64(b)
			}
		}
	}
}
