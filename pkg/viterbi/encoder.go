package viterbi

import (
	"fmt"
)

// Encoder is the transmitter side of the inner code: rate 1/2 convolutional
// encoding, puncturing and packing into symbol bytes of m bits. It keeps the
// register between calls so a stream can be encoded in pieces.
type Encoder struct {
	layout Layout
	punct  *Puncturer
	state  int
	start  int
}

// NewEncoder returns an encoder matching a decoder built with the same Params.
func NewEncoder(p Params) (*Encoder, error) {
	layout, err := p.Layout()
	if err != nil {
		return nil, err
	}
	punct, err := NewPuncturer(p.CodeRate)
	if err != nil {
		return nil, err
	}
	return &Encoder{layout: layout, punct: punct, state: p.StartState, start: p.StartState}, nil
}

// Reset returns the register to the start state.
func (e *Encoder) Reset() { e.state = e.start }

// State returns the current register contents.
func (e *Encoder) State() int { return e.state }

// EncodeBits encodes one bit per byte into X,Y pairs of the mother code.
func (e *Encoder) EncodeBits(bits []byte) []byte {
	out := make([]byte, 0, 2*len(bits))
	for _, b := range bits {
		var x, y byte
		x, y, e.state = EncodeStep(e.state, b)
		out = append(out, x, y)
	}
	return out
}

// Puncture applies the code rate to mother code bits.
func (e *Encoder) Puncture(mother []byte) ([]byte, error) {
	return e.punct.Puncture(mother)
}

// EncodeBytes encodes whole blocks of data into symbol bytes the decoder
// consumes. len(data) must be a multiple of the block size K/8.
func (e *Encoder) EncodeBytes(data []byte) ([]byte, error) {
	if len(data)%e.layout.OutputBytes != 0 {
		return nil, fmt.Errorf("%w: %d bytes, block is %d", ErrOutputNotMultiple, len(data), e.layout.OutputBytes)
	}

	coded, err := e.Puncture(e.EncodeBits(BytesToBits(data)))
	if err != nil {
		return nil, err
	}

	symbols := make([]byte, len(coded)/e.layout.M)
	PackSymbols(symbols, coded, e.layout.M)
	return symbols, nil
}
