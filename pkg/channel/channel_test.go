package channel

import (
	"bytes"
	"math"
	"testing"
)

func TestRandomBytesDeterministic(t *testing.T) {
	a := RandomBytes(256, 7)
	b := RandomBytes(256, 7)
	if !bytes.Equal(a, b) {
		t.Fatal("same seed produced different bytes")
	}
	if bytes.Equal(a, RandomBytes(256, 8)) {
		t.Fatal("different seeds produced identical bytes")
	}
}

func TestAWGNNoiseStatistics(t *testing.T) {
	c := NewAWGN(100, 4, 0.5, 1)
	n := 20000
	bits := make([]byte, n)
	for i := range bits {
		bits[i] = byte(i & 1)
	}
	rx := make([]int8, n)
	c.Transmit(rx, bits)

	var sum, sumSq float64
	for i, v := range rx {
		want := -100.0
		if bits[i] == 1 {
			want = 100
		}
		e := float64(v) - want
		sum += e
		sumSq += e * e
	}
	mean := sum / float64(n)
	std := math.Sqrt(sumSq/float64(n) - mean*mean)

	// clipping at +/-127 shrinks the spread a little
	if std > c.Sigma()*1.05 || std < c.Sigma()*0.7 {
		t.Errorf("noise std = %.2f, sigma = %.2f", std, c.Sigma())
	}
	if math.Abs(mean) > 3 {
		t.Errorf("noise mean = %.2f, want near 0", mean)
	}
}

func TestBSCFlipRate(t *testing.T) {
	c := NewBSC(0.05, 3)
	bits := make([]byte, 100000)
	flips := c.Transmit(bits)
	ones := 0
	for _, b := range bits {
		ones += int(b)
	}
	if ones != flips {
		t.Fatalf("flip count %d does not match %d set bits", flips, ones)
	}
	rate := float64(flips) / float64(len(bits))
	if rate < 0.045 || rate > 0.055 {
		t.Errorf("flip rate = %.4f, want ~0.05", rate)
	}
}

func TestBSCTransmitSymbolsKeepsHighBits(t *testing.T) {
	c := NewBSC(0.5, 9)
	symbols := make([]byte, 1000)
	c.TransmitSymbols(symbols, 2)
	for i, s := range symbols {
		if s&^0x03 != 0 {
			t.Fatalf("symbol %d = %#x has bits above m", i, s)
		}
	}
}

func TestCountBitErrors(t *testing.T) {
	tests := []struct {
		name string
		a, b []byte
		want int
	}{
		{"equal", []byte{1, 2, 3}, []byte{1, 2, 3}, 0},
		{"one bit", []byte{0x80}, []byte{0x00}, 1},
		{"all bits", []byte{0xff, 0x00}, []byte{0x00, 0xff}, 16},
		{"length mismatch", []byte{0x0f, 0xff}, []byte{0x00}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CountBitErrors(tt.a, tt.b); got != tt.want {
				t.Errorf("CountBitErrors() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestUnionBound(t *testing.T) {
	b3 := UnionBound(3)
	if b3 < 4e-4 || b3 > 6e-4 {
		t.Errorf("UnionBound(3) = %g, want ~5.1e-4", b3)
	}
	b4 := UnionBound(4)
	if b4 < 1e-5 || b4 > 3e-5 {
		t.Errorf("UnionBound(4) = %g, want ~1.8e-5", b4)
	}
	if UnionBound(5) >= b4 {
		t.Error("bound should fall with Eb/N0")
	}
	if UncodedBER(4) < b4 {
		t.Error("coded bound should beat uncoded BPSK at 4 dB")
	}
}
