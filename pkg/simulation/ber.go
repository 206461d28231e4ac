package simulation

import (
	"context"
	"fmt"
	"math"

	"github.com/dbehnke/dvbt-viterbi/pkg/channel"
	"github.com/dbehnke/dvbt-viterbi/pkg/dvbt"
	"github.com/dbehnke/dvbt-viterbi/pkg/logger"
	"github.com/dbehnke/dvbt-viterbi/pkg/viterbi"
)

// Modes
const (
	ModeSoft = "soft" // AWGN soft values through WorkSoft
	ModeHard = "hard" // binary symmetric channel on symbol bytes through Work
)

// chunkBlocks bounds the memory of one simulation step.
const chunkBlocks = 64

// Config describes a bit error rate sweep.
type Config struct {
	Params    viterbi.Params
	Options   []viterbi.Option
	Amplitude int
	Mode      string
	EbN0dB    []float64
	Bits      int
	Seed      uint64
}

// Result is the measurement at one Eb/N0.
type Result struct {
	EbN0dB     float64
	Mode       string
	CodeRate   string
	Bits       uint64
	Errors     uint64
	UnionBound float64 // zero where the rate 1/2 soft bound does not apply
	Stats      viterbi.Stats
}

// BER returns the measured bit error rate.
func (r Result) BER() float64 {
	if r.Bits == 0 {
		return 0
	}
	return float64(r.Errors) / float64(r.Bits)
}

// Runner runs encode, channel and decode over a list of Eb/N0 points.
type Runner struct {
	cfg    Config
	layout viterbi.Layout
	logger *logger.Logger
}

// NewRunner validates cfg. The sweep always decodes a single stream.
func NewRunner(cfg Config, log *logger.Logger) (*Runner, error) {
	if cfg.Mode != ModeSoft && cfg.Mode != ModeHard {
		return nil, fmt.Errorf("unknown simulation mode %q", cfg.Mode)
	}
	if cfg.Bits <= 0 {
		return nil, fmt.Errorf("simulation needs a positive bit count, got %d", cfg.Bits)
	}
	if cfg.Amplitude == 0 {
		cfg.Amplitude = viterbi.DefaultAmplitude
	}
	cfg.Params.Streams = 1
	layout, err := cfg.Params.Layout()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{cfg: cfg, layout: layout, logger: log.WithComponent("simulation")}, nil
}

// Run measures every point in order and calls onPoint after each one.
func (r *Runner) Run(ctx context.Context, onPoint func(Result)) ([]Result, error) {
	results := make([]Result, 0, len(r.cfg.EbN0dB))
	for i, eb := range r.cfg.EbN0dB {
		res, err := r.Point(ctx, eb, r.cfg.Seed+uint64(i))
		if err != nil {
			return results, err
		}
		r.logger.Info("BER point measured",
			logger.String("mode", res.Mode),
			logger.String("code_rate", res.CodeRate),
			logger.Float64("ebn0_db", eb),
			logger.Uint64("bits", res.Bits),
			logger.Uint64("errors", res.Errors),
			logger.Float64("ber", res.BER()),
			logger.Float64("union_bound", res.UnionBound))
		results = append(results, res)
		if onPoint != nil {
			onPoint(res)
		}
	}
	return results, nil
}

// Point measures one Eb/N0 with a fresh decoder. Decoded output is compared
// against the data delayed by the decoder latency; flush blocks after the
// measured ones are not counted.
func (r *Runner) Point(ctx context.Context, ebn0dB float64, seed uint64) (Result, error) {
	dec, err := viterbi.New(r.cfg.Params, r.cfg.Options...)
	if err != nil {
		return Result{}, err
	}
	enc, err := viterbi.NewEncoder(r.cfg.Params)
	if err != nil {
		return Result{}, err
	}

	ob := r.layout.OutputBytes
	measured := (r.cfg.Bits + r.layout.BlockBits - 1) / r.layout.BlockBits
	flush := (viterbi.Latency + ob - 1) / ob
	total := measured + flush

	k, n := r.cfg.Params.CodeRate.KN()
	rate := float64(k) / float64(n)
	res := Result{
		EbN0dB:   ebn0dB,
		Mode:     r.cfg.Mode,
		CodeRate: r.cfg.Params.CodeRate.String(),
	}
	if r.cfg.Mode == ModeSoft && r.cfg.Params.CodeRate == dvbt.Rate1_2 {
		res.UnionBound = channel.UnionBound(ebn0dB)
	}

	src := channel.NewRand(seed)
	awgn := channel.NewAWGN(r.cfg.Amplitude, ebn0dB, rate, seed^0x5bd1e995)
	bsc := channel.NewBSC(channel.Q(math.Sqrt(2*rate*math.Pow(10, ebn0dB/10))), seed^0x5bd1e995)

	// Sent bytes not yet matched against decoder output, and the warm-up
	// bytes still to skip.
	var pending []byte
	skip := viterbi.Latency
	compareBytes := uint64(measured * ob)
	var compared uint64

	data := make([]byte, chunkBlocks*ob)
	out := make([]byte, chunkBlocks*ob)
	soft := make([]int8, chunkBlocks*r.layout.CodedBits)

	for done := 0; done < total; {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		blocks := min(chunkBlocks, total-done)
		chunk := data[:blocks*ob]
		for i := range chunk {
			if done*ob+i < measured*ob {
				chunk[i] = byte(src.Uint32())
			} else {
				chunk[i] = 0
			}
		}
		pending = append(pending, chunk...)

		var produced int
		switch r.cfg.Mode {
		case ModeSoft:
			coded, err := enc.Puncture(enc.EncodeBits(viterbi.BytesToBits(chunk)))
			if err != nil {
				return res, err
			}
			awgn.Transmit(soft[:len(coded)], coded)
			produced, _, err = dec.WorkSoft(0, soft[:len(coded)], out)
			if err != nil {
				return res, err
			}
		case ModeHard:
			symbols, err := enc.EncodeBytes(chunk)
			if err != nil {
				return res, err
			}
			bsc.TransmitSymbols(symbols, r.layout.M)
			produced, _, err = dec.Work(len(chunk), [][]byte{symbols}, [][]byte{out})
			if err != nil {
				return res, err
			}
		}

		got := out[:produced]
		drop := min(skip, len(got))
		got = got[drop:]
		skip -= drop

		if remaining := compareBytes - compared; uint64(len(got)) > remaining {
			got = got[:remaining]
		}
		res.Errors += uint64(channel.CountBitErrors(got, pending[:len(got)]))
		compared += uint64(len(got))
		pending = pending[len(got):]

		done += blocks
	}

	res.Bits = compared * 8
	res.Stats = dec.Stats()
	return res, nil
}
