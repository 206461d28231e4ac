package viterbi

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/dbehnke/dvbt-viterbi/pkg/channel"
	"github.com/dbehnke/dvbt-viterbi/pkg/dvbt"
	"github.com/dbehnke/dvbt-viterbi/pkg/logger"
)

type streamMode struct {
	c dvbt.Constellation
	h dvbt.Hierarchy
	p dvbt.Priority
}

var testModes = []streamMode{
	{dvbt.QPSK, dvbt.NonHierarchical, dvbt.HighPriority},
	{dvbt.QAM16, dvbt.NonHierarchical, dvbt.HighPriority},
	{dvbt.QAM64, dvbt.NonHierarchical, dvbt.HighPriority},
	{dvbt.QAM16, dvbt.Alpha2, dvbt.LowPriority},
	{dvbt.QAM64, dvbt.Alpha1, dvbt.LowPriority},
}

var testRates = []dvbt.CodeRate{dvbt.Rate1_2, dvbt.Rate2_3, dvbt.Rate3_4, dvbt.Rate5_6, dvbt.Rate7_8}

// paramsFor returns Params with the smallest valid block of at least minBits.
func paramsFor(t *testing.T, mode streamMode, r dvbt.CodeRate, minBits int) Params {
	t.Helper()
	p := Params{Constellation: mode.c, Hierarchy: mode.h, Priority: mode.p, CodeRate: r}
	for k := 8; k < 100000; k += 8 {
		p.BlockBits = k
		if k >= minBits && p.Validate() == nil {
			return p
		}
	}
	t.Fatalf("no valid block length for %v %s", mode, r)
	return p
}

func encodeData(t *testing.T, p Params, data []byte) []byte {
	t.Helper()
	enc, err := NewEncoder(p)
	if err != nil {
		t.Fatalf("NewEncoder() error = %v", err)
	}
	symbols, err := enc.EncodeBytes(data)
	if err != nil {
		t.Fatalf("EncodeBytes() error = %v", err)
	}
	return symbols
}

// decodeAll feeds symbols through d blocksPerCall blocks at a time.
func decodeAll(t *testing.T, d *Decoder, symbols []byte, blocksPerCall int) []byte {
	t.Helper()
	per := d.InputPerBlock() * blocksPerCall
	nout := d.OutputMultiple() * blocksPerCall

	var out []byte
	for len(symbols) > 0 {
		if len(symbols) < per {
			per = len(symbols)
			nout = per / d.InputPerBlock() * d.OutputMultiple()
		}
		buf := make([]byte, nout)
		produced, consumed, err := d.Work(nout, [][]byte{symbols[:per]}, [][]byte{buf})
		if err != nil {
			t.Fatalf("Work() error = %v", err)
		}
		if produced != nout || consumed != per {
			t.Fatalf("Work() = (%d, %d), want (%d, %d)", produced, consumed, nout, per)
		}
		out = append(out, buf...)
		symbols = symbols[per:]
	}
	return out
}

func checkDelayed(t *testing.T, out, data []byte) {
	t.Helper()
	if len(out) != len(data) {
		t.Fatalf("decoded %d bytes, want %d", len(out), len(data))
	}
	if !bytes.Equal(out[:Latency], make([]byte, Latency)) {
		t.Errorf("warm-up bytes = %x, want zeros", out[:Latency])
	}
	if !bytes.Equal(out[Latency:], data[:len(data)-Latency]) {
		errs := channel.CountBitErrors(out[Latency:], data[:len(data)-Latency])
		t.Errorf("decoded stream differs from input delayed by %d bytes (%d bit errors)", Latency, errs)
	}
}

func TestNoiselessRoundTrip(t *testing.T) {
	for _, mode := range testModes {
		for _, r := range testRates {
			name := fmt.Sprintf("%s_%s_%s_%s", mode.c, mode.h, mode.p, r)
			t.Run(name, func(t *testing.T) {
				p := paramsFor(t, mode, r, 64)
				blocks := max(12, 2*Latency*8/p.BlockBits+2)
				data := channel.RandomBytes(blocks*p.BlockBits/8, uint64(p.BlockBits))

				d, err := New(p)
				if err != nil {
					t.Fatalf("New() error = %v", err)
				}
				out := decodeAll(t, d, encodeData(t, p, data), 3)
				checkDelayed(t, out, data)
			})
		}
	}
}

func TestSingleByteBlocks(t *testing.T) {
	// K=8 puts the five byte delay across five block boundaries.
	p := DefaultParams()
	p.BlockBits = 8
	data := channel.RandomBytes(40, 5)

	d, err := New(p)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	checkDelayed(t, decodeAll(t, d, encodeData(t, p, data), 1), data)
}

func TestTransportPacketExample(t *testing.T) {
	d, err := New(DefaultParams())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	required := make([]int, 1)
	if err := d.Forecast(188, required); err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	if required[0] != 1504 {
		t.Errorf("Forecast(188) = %d, want 1504", required[0])
	}
	if d.RelativeRate() != 0.125 {
		t.Errorf("RelativeRate() = %v, want 0.125", d.RelativeRate())
	}

	in := make([]byte, 1504)
	out := make([]byte, 188)
	produced, consumed, err := d.Work(188, [][]byte{in}, [][]byte{out})
	if err != nil {
		t.Fatalf("Work() error = %v", err)
	}
	if produced != 188 || consumed != 1504 {
		t.Errorf("Work() = (%d, %d), want (188, 1504)", produced, consumed)
	}

	st := d.Stats()
	if st.Blocks != 1 || st.BytesIn != 1504 || st.BytesOut != 188 || st.WorkCalls != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestRateInvariant(t *testing.T) {
	for _, mode := range testModes {
		for _, r := range testRates {
			p := paramsFor(t, mode, r, 1)
			d, err := New(p)
			if err != nil {
				t.Fatalf("New(%+v) error = %v", p, err)
			}
			got := d.RelativeRate() * float64(d.InputPerBlock())
			if math.Abs(got-float64(d.OutputMultiple())) > 1e-9 {
				t.Errorf("%+v: rate*input = %v, output multiple %d", p, got, d.OutputMultiple())
			}
			req := []int{0}
			if err := d.Forecast(3*d.OutputMultiple(), req); err != nil {
				t.Fatalf("Forecast() error = %v", err)
			}
			if req[0] != 3*d.InputPerBlock() {
				t.Errorf("%+v: Forecast = %d, want %d", p, req[0], 3*d.InputPerBlock())
			}
		}
	}
}

func TestParamsValidate(t *testing.T) {
	base := DefaultParams()
	tests := []struct {
		name   string
		modify func(p *Params)
		want   error
	}{
		{"default", func(p *Params) {}, nil},
		{"zero block", func(p *Params) { p.BlockBits = 0 }, ErrInvalidBlockLength},
		{"negative block", func(p *Params) { p.BlockBits = -8 }, ErrInvalidBlockLength},
		{"not byte aligned", func(p *Params) { p.BlockBits = 1500 }, ErrInvalidBlockLength},
		{"partial puncture period", func(p *Params) { p.CodeRate = dvbt.Rate7_8; p.BlockBits = 64 }, ErrRateMismatch},
		{"partial symbol", func(p *Params) { p.Constellation = dvbt.QAM64; p.BlockBits = 8 }, ErrRateMismatch},
		{"start state", func(p *Params) { p.StartState = 64 }, ErrInvalidState},
		{"negative end state", func(p *Params) { p.EndState = -1 }, ErrInvalidState},
		{"qpsk hierarchical", func(p *Params) { p.Hierarchy = dvbt.Alpha2 }, ErrUnsupported},
		{"bad rate", func(p *Params) { p.CodeRate = dvbt.CodeRate(9) }, ErrUnsupported},
		{"negative streams", func(p *Params) { p.Streams = -1 }, ErrInvalidStreams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.modify(&p)
			err := p.Validate()
			if tt.want == nil {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.want)
			}
			if _, err := New(p); !errors.Is(err, tt.want) {
				t.Errorf("New() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewRejectsOptions(t *testing.T) {
	if _, err := New(DefaultParams(), WithLaneWidth(3)); !errors.Is(err, ErrInvalidLaneWidth) {
		t.Errorf("lane width 3: error = %v", err)
	}
	if _, err := New(DefaultParams(), WithChannelDesign(200, 12)); !errors.Is(err, ErrUnsupported) {
		t.Errorf("amplitude 200: error = %v", err)
	}
}

func TestWorkPreconditions(t *testing.T) {
	p := DefaultParams()
	p.BlockBits = 64
	data := channel.RandomBytes(64, 11)
	symbols := encodeData(t, p, data)

	d, err := New(p)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ob := d.OutputMultiple()
	ib := d.InputPerBlock()

	cases := []struct {
		name string
		n    int
		in   [][]byte
		out  [][]byte
		want error
	}{
		{"not a multiple", ob + 1, [][]byte{symbols}, [][]byte{make([]byte, 2*ob)}, ErrOutputNotMultiple},
		{"negative", -ob, [][]byte{symbols}, [][]byte{make([]byte, ob)}, ErrOutputNotMultiple},
		{"too many streams", ob, [][]byte{symbols, symbols}, [][]byte{make([]byte, ob)}, ErrStreamMismatch},
		{"short input", 2 * ob, [][]byte{symbols[:ib]}, [][]byte{make([]byte, 2*ob)}, ErrShortBuffer},
		{"short output", 2 * ob, [][]byte{symbols}, [][]byte{make([]byte, ob)}, ErrShortBuffer},
	}
	for _, c := range cases {
		if _, _, err := d.Work(c.n, c.in, c.out); !errors.Is(err, c.want) {
			t.Errorf("%s: Work() error = %v, want %v", c.name, err, c.want)
		}
	}
	if err := d.Forecast(ob+1, []int{0}); !errors.Is(err, ErrOutputNotMultiple) {
		t.Errorf("Forecast() error = %v, want ErrOutputNotMultiple", err)
	}
	if err := d.Forecast(ob, []int{0, 0}); !errors.Is(err, ErrStreamMismatch) {
		t.Errorf("Forecast() error = %v, want ErrStreamMismatch", err)
	}
	if d.Stats() != (Stats{}) {
		t.Errorf("rejected calls changed stats: %+v", d.Stats())
	}

	// Rejected calls leave the trellis untouched.
	checkDelayed(t, decodeAll(t, d, symbols, 2), data)
}

func TestDeterminismAndReset(t *testing.T) {
	p := DefaultParams()
	p.BlockBits = 128
	data := channel.RandomBytes(20*16, 21)
	symbols := encodeData(t, p, data)
	channel.NewBSC(0.03, 4).TransmitSymbols(symbols, 2)

	d1, _ := New(p)
	d2, _ := New(p)
	a := decodeAll(t, d1, symbols, 4)
	b := decodeAll(t, d2, symbols, 1)
	if !bytes.Equal(a, b) {
		t.Fatal("decoding differs with call granularity")
	}

	d1.Reset()
	if d1.Stats() != (Stats{}) {
		t.Errorf("Reset() kept stats: %+v", d1.Stats())
	}
	if c := decodeAll(t, d1, symbols, 4); !bytes.Equal(a, c) {
		t.Fatal("decoding after Reset differs from a fresh decoder")
	}
}

func TestStateIsolation(t *testing.T) {
	p := DefaultParams()
	p.BlockBits = 256

	const n = 6
	inputs := make([][]byte, n)
	want := make([][]byte, n)
	for i := range inputs {
		symbols := encodeData(t, p, channel.RandomBytes(16*p.BlockBits/8, uint64(100+i)))
		channel.NewBSC(0.02, uint64(i)).TransmitSymbols(symbols, 2)
		inputs[i] = symbols

		d, _ := New(p)
		want[i] = decodeAll(t, d, symbols, 2)
	}

	// Concurrent decoders.
	got := make([][]byte, n)
	var wg sync.WaitGroup
	for i := range inputs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := New(p)
			if err != nil {
				t.Errorf("New() error = %v", err)
				return
			}
			per := d.InputPerBlock()
			out := make([]byte, len(inputs[i])/per*d.OutputMultiple())
			for b := 0; b*per < len(inputs[i]); b++ {
				ob := d.OutputMultiple()
				if _, _, err := d.Work(ob, [][]byte{inputs[i][b*per:]}, [][]byte{out[b*ob:]}); err != nil {
					t.Errorf("Work() error = %v", err)
					return
				}
			}
			got[i] = out
		}(i)
	}
	wg.Wait()
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("decoder %d: concurrent output differs from sequential", i)
		}
	}

	// One decoder with a trellis per stream.
	multi := p
	multi.Streams = n
	d, err := New(multi)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	nout := len(want[0])
	outs := make([][]byte, n)
	for i := range outs {
		outs[i] = make([]byte, nout)
	}
	if _, _, err := d.Work(nout, inputs, outs); err != nil {
		t.Fatalf("Work() error = %v", err)
	}
	for i := range want {
		if !bytes.Equal(outs[i], want[i]) {
			t.Errorf("stream %d differs from a single-stream decoder", i)
		}
	}
}

func TestStartState(t *testing.T) {
	p := DefaultParams()
	p.BlockBits = 64
	p.StartState = 45
	data := channel.RandomBytes(96, 8)

	d, err := New(p)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	checkDelayed(t, decodeAll(t, d, encodeData(t, p, data), 3), data)
}

func TestDecoderLogsConfiguration(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "debug", Format: "text", Output: &buf})

	p := DefaultParams()
	d, err := New(p, WithLogger(log))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, _, err := d.Work(188, [][]byte{make([]byte, 1504)}, [][]byte{make([]byte, 188)}); err != nil {
		t.Fatalf("Work() error = %v", err)
	}

	s := buf.String()
	for _, want := range []string{"[viterbi]", "Decoder configured", "code_rate=1/2", "Work complete", "mbit_per_sec"} {
		if !bytes.Contains([]byte(s), []byte(want)) {
			t.Errorf("log output missing %q:\n%s", want, s)
		}
	}
}
