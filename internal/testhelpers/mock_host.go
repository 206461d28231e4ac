package testhelpers

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/dbehnke/dvbt-viterbi/pkg/channel"
	"github.com/dbehnke/dvbt-viterbi/pkg/viterbi"
)

// MockHost plays the flow graph scheduler for a decoder: it buffers input
// per stream and asks for a random number of output blocks on every call.
type MockHost struct {
	dec     *viterbi.Decoder
	rng     *rand.Rand
	mu      sync.Mutex
	pending [][]byte
	output  [][]byte
	calls   int
}

// NewMockHost creates a host driving dec with chunk sizes drawn from seed
func NewMockHost(dec *viterbi.Decoder, seed uint64) *MockHost {
	return &MockHost{
		dec:     dec,
		rng:     channel.NewRand(seed),
		pending: make([][]byte, dec.Streams()),
		output:  make([][]byte, dec.Streams()),
	}
}

// Feed appends symbol bytes to a stream's input buffer
func (h *MockHost) Feed(stream int, symbols []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending[stream] = append(h.pending[stream], symbols...)
}

// Step runs one Work call of between 1 and maxBlocks blocks. It returns the
// number of blocks decoded, 0 when some stream lacks a whole block.
func (h *MockHost) Step(maxBlocks int) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	avail := -1
	for _, p := range h.pending {
		b := len(p) / h.dec.InputPerBlock()
		if avail < 0 || b < avail {
			avail = b
		}
	}
	if avail <= 0 {
		return 0, nil
	}
	if maxBlocks < 1 {
		maxBlocks = 1
	}

	blocks := 1 + h.rng.IntN(min(maxBlocks, avail))
	noutput := blocks * h.dec.OutputMultiple()

	required := make([]int, len(h.pending))
	if err := h.dec.Forecast(noutput, required); err != nil {
		return 0, err
	}

	out := make([][]byte, len(h.pending))
	for s := range out {
		if len(h.pending[s]) < required[s] {
			return 0, fmt.Errorf("stream %d: forecast wants %d bytes, host has %d", s, required[s], len(h.pending[s]))
		}
		out[s] = make([]byte, noutput)
	}

	produced, consumed, err := h.dec.Work(noutput, h.pending, out)
	if err != nil {
		return 0, err
	}
	for s := range out {
		h.output[s] = append(h.output[s], out[s][:produced]...)
		h.pending[s] = h.pending[s][consumed:]
	}
	h.calls++
	return blocks, nil
}

// Drain steps until no stream has a whole block left
func (h *MockHost) Drain(maxBlocks int) error {
	for {
		n, err := h.Step(maxBlocks)
		if err != nil || n == 0 {
			return err
		}
	}
}

// Output returns a copy of everything a stream has produced
func (h *MockHost) Output(stream int) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]byte(nil), h.output[stream]...)
}

// Calls returns the number of Work calls made
func (h *MockHost) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}
