package viterbi

import (
	"errors"
	"fmt"

	"github.com/dbehnke/dvbt-viterbi/pkg/dvbt"
)

// Code parameters of the DVB-T mother code.
const (
	ConstraintLength = 7
	NumStates        = 1 << (ConstraintLength - 1) // 64
	numButterflies   = NumStates / 2

	// Generator taps with the newest input bit in bit 0.
	PolyX = 0x4f // G1 = 171 octal
	PolyY = 0x6d // G2 = 133 octal
)

// Configuration errors, returned by Params.Validate and New.
var (
	ErrInvalidBlockLength = errors.New("invalid block length")
	ErrInvalidState       = errors.New("trellis state out of range")
	ErrRateMismatch       = errors.New("block length does not divide into whole symbols")
	ErrUnsupported        = errors.New("unsupported transmission parameters")
	ErrInvalidStreams     = errors.New("invalid stream count")
	ErrInvalidLaneWidth   = errors.New("lane width must divide the 32 butterflies")
)

// Processing errors, returned by Forecast and Work before any state changes.
var (
	ErrOutputNotMultiple = errors.New("output length is not a multiple of the block size")
	ErrStreamMismatch    = errors.New("stream count mismatch")
	ErrShortBuffer       = errors.New("buffer too short")
)

// Params is the decoder configuration. It is fixed for the lifetime of a Decoder.
type Params struct {
	Constellation dvbt.Constellation
	Hierarchy     dvbt.Hierarchy
	Priority      dvbt.Priority
	CodeRate      dvbt.CodeRate

	BlockBits  int // K, decoded bits per block
	StartState int // S0
	EndState   int // SK
	Streams    int // parallel input/output streams, 0 means 1
}

// DefaultParams returns QPSK, non-hierarchical, rate 1/2 with one MPEG
// transport stream packet (188 bytes) per block.
func DefaultParams() Params {
	return Params{
		Constellation: dvbt.QPSK,
		Hierarchy:     dvbt.NonHierarchical,
		Priority:      dvbt.HighPriority,
		CodeRate:      dvbt.Rate1_2,
		BlockBits:     188 * 8,
		Streams:       1,
	}
}

// Layout holds the quantities derived from Params.
type Layout struct {
	K int // encoder input width
	N int // encoder output width
	M int // payload bits per received symbol byte

	BlockBits   int // decoded bits per block
	Symbols     int // symbol bytes consumed per block
	CodedBits   int // transmitted (punctured) code bits per block
	MotherBits  int // depunctured rate 1/2 code bits per block
	OutputBytes int // decoded bytes produced per block
}

// Validate checks the configuration and returns a descriptive error wrapping
// one of the configuration sentinel errors.
func (p Params) Validate() error {
	_, err := p.Layout()
	return err
}

// Layout validates the configuration and derives the block geometry.
func (p Params) Layout() (Layout, error) {
	k, n := p.CodeRate.KN()
	if k == 0 {
		return Layout{}, fmt.Errorf("%w: code rate %d", ErrUnsupported, int(p.CodeRate))
	}

	m, err := dvbt.SymbolBits(p.Constellation, p.Hierarchy, p.Priority)
	if err != nil {
		return Layout{}, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	if p.BlockBits <= 0 || p.BlockBits%8 != 0 {
		return Layout{}, fmt.Errorf("%w: K=%d must be a positive multiple of 8", ErrInvalidBlockLength, p.BlockBits)
	}
	if p.BlockBits%k != 0 {
		return Layout{}, fmt.Errorf("%w: K=%d is not a whole number of %s puncturing periods", ErrRateMismatch, p.BlockBits, p.CodeRate)
	}
	if (p.BlockBits*n)%(k*m) != 0 {
		return Layout{}, fmt.Errorf("%w: K*n=%d is not a multiple of k*m=%d", ErrRateMismatch, p.BlockBits*n, k*m)
	}

	if p.StartState < 0 || p.StartState >= NumStates {
		return Layout{}, fmt.Errorf("%w: S0=%d", ErrInvalidState, p.StartState)
	}
	if p.EndState < 0 || p.EndState >= NumStates {
		return Layout{}, fmt.Errorf("%w: SK=%d", ErrInvalidState, p.EndState)
	}
	if p.Streams < 0 {
		return Layout{}, fmt.Errorf("%w: %d", ErrInvalidStreams, p.Streams)
	}

	return Layout{
		K:           k,
		N:           n,
		M:           m,
		BlockBits:   p.BlockBits,
		Symbols:     p.BlockBits * n / (k * m),
		CodedBits:   p.BlockBits * n / k,
		MotherBits:  2 * p.BlockBits,
		OutputBytes: p.BlockBits / 8,
	}, nil
}

func (p Params) streamCount() int {
	if p.Streams == 0 {
		return 1
	}
	return p.Streams
}
