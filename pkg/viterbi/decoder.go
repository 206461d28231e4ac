package viterbi

import (
	"fmt"
	"time"

	"github.com/dbehnke/dvbt-viterbi/pkg/logger"
)

// Stats counts the work done by a Decoder since construction or Reset.
type Stats struct {
	Blocks    uint64
	BytesIn   uint64
	BytesOut  uint64
	WorkCalls uint64
}

type options struct {
	log        *logger.Logger
	laneWidth  int
	scalar     bool
	amplitude  int
	designEbN0 float64
}

// Option configures a Decoder at construction time.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithLaneWidth sets the number of butterflies per vector operation.
func WithLaneWidth(w int) Option {
	return func(o *options) { o.laneWidth = w }
}

// WithScalarKernel selects the per-state reference recursion.
func WithScalarKernel() Option {
	return func(o *options) { o.scalar = true }
}

// WithChannelDesign sets the soft amplitude of a received "1" and the
// Eb/N0 the branch metrics are designed for.
func WithChannelDesign(amplitude int, ebn0dB float64) Option {
	return func(o *options) {
		o.amplitude = amplitude
		o.designEbN0 = ebn0dB
	}
}

// Decoder is a block-oriented soft-decision Viterbi decoder for the DVB-T
// inner code. It consumes symbol bytes carrying m coded bits each and
// produces decoded bytes, K/8 per block, delayed by Latency bytes.
//
// A Decoder is not safe for concurrent use. Each input stream has its own
// trellis; separate Decoders share nothing mutable.
type Decoder struct {
	params Params
	layout Layout
	bm     *BranchMetrics
	punct  *Puncturer
	kern   kernel
	lanes  int

	streams []*trellis

	// per-block scratch, reused across calls
	coded []byte
	soft  []int8

	stats Stats
	log   *logger.Logger
}

// New validates p and allocates all tables and buffers.
func New(p Params, opts ...Option) (*Decoder, error) {
	layout, err := p.Layout()
	if err != nil {
		return nil, fmt.Errorf("invalid decoder parameters: %w", err)
	}

	o := options{
		log:        logger.Nop(),
		laneWidth:  DefaultLaneWidth,
		amplitude:  DefaultAmplitude,
		designEbN0: DefaultDesignEbN0dB,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Nop()
	}
	if !ValidLaneWidth(o.laneWidth) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLaneWidth, o.laneWidth)
	}
	if o.amplitude < 1 || o.amplitude > 127 {
		return nil, fmt.Errorf("%w: amplitude %d outside 1..127", ErrUnsupported, o.amplitude)
	}

	punct, err := NewPuncturer(p.CodeRate)
	if err != nil {
		return nil, err
	}

	d := &Decoder{
		params: p,
		layout: layout,
		bm:     NewBranchMetrics(o.amplitude, DesignEsN0(o.designEbN0), DefaultMetricScale),
		punct:  punct,
		lanes:  o.laneWidth,
		coded:  make([]byte, layout.CodedBits),
		soft:   make([]int8, layout.MotherBits),
		log:    o.log.WithComponent("viterbi"),
	}
	if o.scalar {
		d.kern = &scalarKernel{bm: d.bm}
	} else {
		d.kern = &vectorKernel{width: o.laneWidth, bm: d.bm}
	}

	d.streams = make([]*trellis, p.streamCount())
	for i := range d.streams {
		d.streams[i] = newTrellis(p.StartState)
	}

	kernelName := "vector"
	if o.scalar {
		kernelName = "scalar"
	}
	d.log.Info("Decoder configured",
		logger.String("constellation", p.Constellation.String()),
		logger.String("hierarchy", p.Hierarchy.String()),
		logger.String("priority", p.Priority.String()),
		logger.String("code_rate", p.CodeRate.String()),
		logger.Int("block_bits", layout.BlockBits),
		logger.Int("symbols_per_block", layout.Symbols),
		logger.Int("streams", len(d.streams)),
		logger.String("kernel", kernelName),
		logger.Int("lane_width", o.laneWidth))

	return d, nil
}

// Params returns the configuration the decoder was built with.
func (d *Decoder) Params() Params { return d.params }

// Layout returns the derived block geometry.
func (d *Decoder) Layout() Layout { return d.layout }

// Streams returns the number of parallel streams.
func (d *Decoder) Streams() int { return len(d.streams) }

// RelativeRate is output bytes per input symbol byte, (k*m)/(8*n).
func (d *Decoder) RelativeRate() float64 {
	return float64(d.layout.K*d.layout.M) / float64(8*d.layout.N)
}

// OutputMultiple is the number of output bytes per block, K/8. Every Work
// call must ask for a multiple of it.
func (d *Decoder) OutputMultiple() int { return d.layout.OutputBytes }

// InputPerBlock is the number of symbol bytes consumed per block.
func (d *Decoder) InputPerBlock() int { return d.layout.Symbols }

// Latency returns the decoding delay in output bytes.
func (d *Decoder) Latency() int { return Latency }

// Stats returns the work counters.
func (d *Decoder) Stats() Stats { return d.stats }

// Reset puts every stream back at the start state and clears the counters.
func (d *Decoder) Reset() {
	for _, t := range d.streams {
		t.reset()
	}
	d.stats = Stats{}
}

func (d *Decoder) blocksFor(noutputItems int) (int, error) {
	if noutputItems < 0 || noutputItems%d.layout.OutputBytes != 0 {
		return 0, fmt.Errorf("%w: %d, block is %d bytes", ErrOutputNotMultiple, noutputItems, d.layout.OutputBytes)
	}
	return noutputItems / d.layout.OutputBytes, nil
}

// Forecast fills required with the symbol bytes each stream needs to
// produce noutputItems bytes.
func (d *Decoder) Forecast(noutputItems int, required []int) error {
	blocks, err := d.blocksFor(noutputItems)
	if err != nil {
		return err
	}
	if len(required) != len(d.streams) {
		return fmt.Errorf("%w: %d requirements for %d streams", ErrStreamMismatch, len(required), len(d.streams))
	}
	for i := range required {
		required[i] = blocks * d.layout.Symbols
	}
	return nil
}

// Work decodes noutputItems bytes into every out stream from the matching
// in stream. It returns the bytes produced and the symbol bytes consumed
// per stream. Arguments are checked before any decoder state changes.
func (d *Decoder) Work(noutputItems int, in, out [][]byte) (produced, consumed int, err error) {
	blocks, err := d.blocksFor(noutputItems)
	if err != nil {
		return 0, 0, err
	}
	if len(in) != len(d.streams) || len(out) != len(d.streams) {
		return 0, 0, fmt.Errorf("%w: %d in, %d out, decoder has %d", ErrStreamMismatch, len(in), len(out), len(d.streams))
	}
	need := blocks * d.layout.Symbols
	for s := range d.streams {
		if len(in[s]) < need {
			return 0, 0, fmt.Errorf("%w: stream %d has %d input bytes, need %d", ErrShortBuffer, s, len(in[s]), need)
		}
		if len(out[s]) < noutputItems {
			return 0, 0, fmt.Errorf("%w: stream %d has %d output bytes, need %d", ErrShortBuffer, s, len(out[s]), noutputItems)
		}
	}

	var start time.Time
	debug := d.log.Enabled(logger.DebugLevel)
	if debug {
		start = time.Now()
	}

	sym := d.layout.Symbols
	ob := d.layout.OutputBytes
	for s, t := range d.streams {
		for b := 0; b < blocks; b++ {
			UnpackSymbols(d.coded, in[s][b*sym:(b+1)*sym], d.layout.M)
			d.punct.Depuncture(d.soft, d.coded, d.bm)
			t.decodeBlock(d.kern, d.soft, out[s][b*ob:(b+1)*ob])
		}
	}

	d.account(blocks*len(d.streams), need*len(d.streams), noutputItems*len(d.streams))

	if debug && blocks > 0 {
		elapsed := time.Since(start)
		mbps := float64(noutputItems*8*len(d.streams)) / elapsed.Seconds() / 1e6
		d.log.Debug("Work complete",
			logger.Int("blocks", blocks),
			logger.Int("streams", len(d.streams)),
			logger.Duration("elapsed", elapsed),
			logger.Float64("mbit_per_sec", mbps))
	}

	return noutputItems, need, nil
}

// WorkSoft decodes one stream from soft received code bits. coded holds the
// transmitted (punctured) bits as 8-bit soft values in the scale of the
// channel design amplitude; CodedBits values make one block. It returns the
// bytes produced and soft values consumed.
func (d *Decoder) WorkSoft(stream int, coded []int8, out []byte) (produced, consumed int, err error) {
	if stream < 0 || stream >= len(d.streams) {
		return 0, 0, fmt.Errorf("%w: stream %d of %d", ErrStreamMismatch, stream, len(d.streams))
	}
	if len(coded)%d.layout.CodedBits != 0 {
		return 0, 0, fmt.Errorf("%w: %d soft values, block is %d", ErrOutputNotMultiple, len(coded), d.layout.CodedBits)
	}
	blocks := len(coded) / d.layout.CodedBits
	ob := d.layout.OutputBytes
	if len(out) < blocks*ob {
		return 0, 0, fmt.Errorf("%w: %d output bytes, need %d", ErrShortBuffer, len(out), blocks*ob)
	}

	t := d.streams[stream]
	cb := d.layout.CodedBits
	for b := 0; b < blocks; b++ {
		d.punct.DepunctureSoft(d.soft, coded[b*cb:(b+1)*cb])
		t.decodeBlock(d.kern, d.soft, out[b*ob:(b+1)*ob])
	}

	d.account(blocks, len(coded)/d.layout.M, blocks*ob)
	return blocks * ob, len(coded), nil
}

func (d *Decoder) account(blocks, in, out int) {
	d.stats.Blocks += uint64(blocks)
	d.stats.BytesIn += uint64(in)
	d.stats.BytesOut += uint64(out)
	d.stats.WorkCalls++
}
