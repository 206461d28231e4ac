package dvbt

// DVB-T transmission parameters (ETSI EN 300 744)
// Only what the inner decoder needs: constellation size, hierarchy,
// stream priority and the punctured code rate.

import (
	"fmt"
	"strings"
)

// Constellation is the subcarrier modulation.
type Constellation int

const (
	QPSK Constellation = iota
	QAM16
	QAM64
)

// Hierarchy is the hierarchical transmission mode.
type Hierarchy int

const (
	NonHierarchical Hierarchy = iota
	Alpha1
	Alpha2
	Alpha4
)

// Priority selects the high or low priority stream in hierarchical mode.
type Priority int

const (
	HighPriority Priority = iota
	LowPriority
)

// CodeRate is the punctured rate of the inner convolutional code.
type CodeRate int

const (
	Rate1_2 CodeRate = iota
	Rate2_3
	Rate3_4
	Rate5_6
	Rate7_8
)

// BitsPerCarrier returns the number of bits mapped onto one constellation point.
func (c Constellation) BitsPerCarrier() int {
	switch c {
	case QPSK:
		return 2
	case QAM16:
		return 4
	case QAM64:
		return 6
	default:
		return 0
	}
}

func (c Constellation) String() string {
	switch c {
	case QPSK:
		return "QPSK"
	case QAM16:
		return "16QAM"
	case QAM64:
		return "64QAM"
	default:
		return fmt.Sprintf("Constellation(%d)", int(c))
	}
}

func (h Hierarchy) String() string {
	switch h {
	case NonHierarchical:
		return "NH"
	case Alpha1:
		return "ALPHA1"
	case Alpha2:
		return "ALPHA2"
	case Alpha4:
		return "ALPHA4"
	default:
		return fmt.Sprintf("Hierarchy(%d)", int(h))
	}
}

func (p Priority) String() string {
	if p == LowPriority {
		return "LP"
	}
	return "HP"
}

// KN returns the encoder input width k and output width n of the rate k/n.
func (r CodeRate) KN() (k, n int) {
	switch r {
	case Rate1_2:
		return 1, 2
	case Rate2_3:
		return 2, 3
	case Rate3_4:
		return 3, 4
	case Rate5_6:
		return 5, 6
	case Rate7_8:
		return 7, 8
	default:
		return 0, 0
	}
}

func (r CodeRate) String() string {
	k, n := r.KN()
	if k == 0 {
		return fmt.Sprintf("CodeRate(%d)", int(r))
	}
	return fmt.Sprintf("%d/%d", k, n)
}

// PuncturePattern returns the X and Y transmit masks of one puncturing
// period (EN 300 744 table 2). Entry j tells whether the X (or Y) output
// for input bit j of the period is transmitted.
func (r CodeRate) PuncturePattern() (x, y []bool) {
	switch r {
	case Rate1_2:
		return []bool{true}, []bool{true}
	case Rate2_3:
		return []bool{true, false}, []bool{true, true}
	case Rate3_4:
		return []bool{true, false, true}, []bool{true, true, false}
	case Rate5_6:
		return []bool{true, false, true, false, true}, []bool{true, true, false, true, false}
	case Rate7_8:
		return []bool{true, false, false, false, true, false, true}, []bool{true, true, true, true, false, true, false}
	default:
		return nil, nil
	}
}

// SymbolBits returns m, the number of payload bits carried per received
// symbol byte for the given stream.
//
// Non-hierarchical: every constellation bit. Hierarchical: the high
// priority stream takes the two quadrant bits, the low priority stream
// the remaining ones. QPSK has no hierarchical mode.
func SymbolBits(c Constellation, h Hierarchy, p Priority) (int, error) {
	bits := c.BitsPerCarrier()
	if bits == 0 {
		return 0, fmt.Errorf("unknown constellation %d", int(c))
	}
	if h == NonHierarchical {
		return bits, nil
	}
	if h < NonHierarchical || h > Alpha4 {
		return 0, fmt.Errorf("unknown hierarchy %d", int(h))
	}
	if c == QPSK {
		return 0, fmt.Errorf("hierarchical mode %s requires 16QAM or 64QAM", h)
	}
	if p == LowPriority {
		return bits - 2, nil
	}
	return 2, nil
}

// ParseConstellation parses names such as "qpsk", "16qam" or "qam64".
func ParseConstellation(s string) (Constellation, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "QPSK":
		return QPSK, nil
	case "16QAM", "QAM16":
		return QAM16, nil
	case "64QAM", "QAM64":
		return QAM64, nil
	}
	return 0, fmt.Errorf("unknown constellation %q", s)
}

// ParseHierarchy parses "nh", "alpha1", "alpha2" or "alpha4".
func ParseHierarchy(s string) (Hierarchy, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NH", "NONE":
		return NonHierarchical, nil
	case "ALPHA1", "1":
		return Alpha1, nil
	case "ALPHA2", "2":
		return Alpha2, nil
	case "ALPHA4", "4":
		return Alpha4, nil
	}
	return 0, fmt.Errorf("unknown hierarchy %q", s)
}

// ParsePriority parses "hp" or "lp".
func ParsePriority(s string) (Priority, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "HP", "HIGH":
		return HighPriority, nil
	case "LP", "LOW":
		return LowPriority, nil
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

// ParseCodeRate parses "1/2", "2/3", "3/4", "5/6" or "7/8".
func ParseCodeRate(s string) (CodeRate, error) {
	switch strings.ReplaceAll(strings.TrimSpace(s), "_", "/") {
	case "1/2":
		return Rate1_2, nil
	case "2/3":
		return Rate2_3, nil
	case "3/4":
		return Rate3_4, nil
	case "5/6":
		return Rate5_6, nil
	case "7/8":
		return Rate7_8, nil
	}
	return 0, fmt.Errorf("unknown code rate %q", s)
}
