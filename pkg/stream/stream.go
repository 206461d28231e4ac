package stream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dbehnke/dvbt-viterbi/pkg/logger"
	"github.com/dbehnke/dvbt-viterbi/pkg/viterbi"
)

// DefaultBlocksPerCall is the number of decoder blocks handed to one Work call.
const DefaultBlocksPerCall = 16

// ProgressFunc receives the decoder counters after every Work call.
type ProgressFunc func(viterbi.Stats)

// Pump moves a byte stream through a decoder or encoder in whole blocks,
// the way a flow graph scheduler would.
type Pump struct {
	blocks   int
	logger   *logger.Logger
	progress ProgressFunc
}

// NewPump creates a pump. blocksPerCall <= 0 selects DefaultBlocksPerCall.
func NewPump(blocksPerCall int, progress ProgressFunc, log *logger.Logger) *Pump {
	if blocksPerCall <= 0 {
		blocksPerCall = DefaultBlocksPerCall
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Pump{blocks: blocksPerCall, logger: log, progress: progress}
}

// Decode reads symbol bytes from r and writes decoded bytes to w until r is
// exhausted or ctx is cancelled. A trailing partial block is dropped.
func (p *Pump) Decode(ctx context.Context, dec *viterbi.Decoder, r io.Reader, w io.Writer) (viterbi.Stats, error) {
	if dec.Streams() != 1 {
		return dec.Stats(), fmt.Errorf("%w: stream pump drives one stream, decoder has %d", viterbi.ErrStreamMismatch, dec.Streams())
	}

	noutput := p.blocks * dec.OutputMultiple()
	required := make([]int, 1)
	if err := dec.Forecast(noutput, required); err != nil {
		return dec.Stats(), err
	}
	in := make([]byte, required[0])
	out := make([]byte, noutput)

	for {
		if err := ctx.Err(); err != nil {
			return dec.Stats(), err
		}

		n, readErr := io.ReadFull(r, in)
		if readErr != nil && !errors.Is(readErr, io.ErrUnexpectedEOF) && !errors.Is(readErr, io.EOF) {
			return dec.Stats(), fmt.Errorf("failed to read symbols: %w", readErr)
		}

		blocks := n / dec.InputPerBlock()
		if rest := n % dec.InputPerBlock(); rest != 0 {
			p.logger.Warn("Dropping partial input block",
				logger.Int("bytes", rest),
				logger.Int("block_bytes", dec.InputPerBlock()))
		}

		if blocks > 0 {
			want := blocks * dec.OutputMultiple()
			produced, _, err := dec.Work(want, [][]byte{in[:blocks*dec.InputPerBlock()]}, [][]byte{out})
			if err != nil {
				return dec.Stats(), err
			}
			if _, err := w.Write(out[:produced]); err != nil {
				return dec.Stats(), fmt.Errorf("failed to write decoded bytes: %w", err)
			}
			if p.progress != nil {
				p.progress(dec.Stats())
			}
		}

		if readErr != nil {
			return dec.Stats(), nil
		}
	}
}

// Encode reads data bytes from r and writes symbol bytes to w. The final
// partial block is zero padded.
func (p *Pump) Encode(ctx context.Context, enc *viterbi.Encoder, blockBytes int, r io.Reader, w io.Writer) (int, error) {
	in := make([]byte, p.blocks*blockBytes)
	written := 0

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, readErr := io.ReadFull(r, in)
		if readErr != nil && !errors.Is(readErr, io.ErrUnexpectedEOF) && !errors.Is(readErr, io.EOF) {
			return written, fmt.Errorf("failed to read data: %w", readErr)
		}

		if n > 0 {
			if pad := n % blockBytes; pad != 0 {
				p.logger.Debug("Padding final block",
					logger.Int("bytes", blockBytes-pad))
				clear(in[n : n+blockBytes-pad])
				n += blockBytes - pad
			}
			symbols, err := enc.EncodeBytes(in[:n])
			if err != nil {
				return written, err
			}
			m, err := w.Write(symbols)
			written += m
			if err != nil {
				return written, fmt.Errorf("failed to write symbols: %w", err)
			}
		}

		if readErr != nil {
			return written, nil
		}
	}
}
