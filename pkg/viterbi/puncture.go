package viterbi

import (
	"fmt"

	"github.com/dbehnke/dvbt-viterbi/pkg/dvbt"
)

// Puncturer converts between the rate 1/2 mother code and a punctured
// DVB-T code rate. Within a period the transmitted bits are taken in
// natural order: X then Y of input bit 0, X then Y of input bit 1, ...
type Puncturer struct {
	rate dvbt.CodeRate
	x, y []bool
	k, n int
}

// NewPuncturer returns the puncturer for rate r.
func NewPuncturer(r dvbt.CodeRate) (*Puncturer, error) {
	k, n := r.KN()
	if k == 0 {
		return nil, fmt.Errorf("%w: code rate %d", ErrUnsupported, int(r))
	}
	x, y := r.PuncturePattern()
	return &Puncturer{rate: r, x: x, y: y, k: k, n: n}, nil
}

// Rate returns the code rate.
func (p *Puncturer) Rate() dvbt.CodeRate { return p.rate }

// Puncture drops the untransmitted bits of mother, which holds X,Y pairs.
// The number of pairs must be a multiple of the puncturing period.
func (p *Puncturer) Puncture(mother []byte) ([]byte, error) {
	pairs := len(mother) / 2
	if len(mother)%2 != 0 || pairs%p.k != 0 {
		return nil, fmt.Errorf("%w: %d mother bits for rate %s", ErrRateMismatch, len(mother), p.rate)
	}
	out := make([]byte, 0, pairs/p.k*p.n)
	for i := 0; i < pairs; i++ {
		j := i % p.k
		if p.x[j] {
			out = append(out, mother[2*i])
		}
		if p.y[j] {
			out = append(out, mother[2*i+1])
		}
	}
	return out, nil
}

// Depuncture expands coded hard bits into soft X,Y pairs, inserting the
// neutral value 0 where a bit was not transmitted. soft must hold
// len(coded)/n*k*2 values; the number written is returned.
func (p *Puncturer) Depuncture(soft []int8, coded []byte, bm *BranchMetrics) int {
	c := 0
	o := 0
	for c < len(coded) {
		for j := 0; j < p.k; j++ {
			soft[o], soft[o+1] = 0, 0
			if p.x[j] {
				soft[o] = bm.Quantize(coded[c])
				c++
			}
			if p.y[j] {
				soft[o+1] = bm.Quantize(coded[c])
				c++
			}
			o += 2
		}
	}
	return o
}

// DepunctureSoft places already soft received values into the mother code
// positions, inserting erasures. It is the soft-input counterpart of Depuncture.
func (p *Puncturer) DepunctureSoft(soft []int8, coded []int8) int {
	c := 0
	o := 0
	for c < len(coded) {
		for j := 0; j < p.k; j++ {
			soft[o], soft[o+1] = 0, 0
			if p.x[j] {
				soft[o] = coded[c]
				c++
			}
			if p.y[j] {
				soft[o+1] = coded[c]
				c++
			}
			o += 2
		}
	}
	return o
}
