package viterbi

// UnpackSymbols writes the low m bits of every symbol byte to dst, MSB
// first, one bit per byte. dst must hold len(symbols)*m entries.
func UnpackSymbols(dst, symbols []byte, m int) int {
	n := 0
	for _, s := range symbols {
		for j := m - 1; j >= 0; j-- {
			dst[n] = (s >> uint(j)) & 1
			n++
		}
	}
	return n
}

// PackSymbols is the inverse of UnpackSymbols: every m bits become one
// symbol byte. len(bits) must be a multiple of m.
func PackSymbols(dst, bits []byte, m int) int {
	n := 0
	for i := 0; i+m <= len(bits); i += m {
		var s byte
		for j := 0; j < m; j++ {
			s = s<<1 | bits[i+j]&1
		}
		dst[n] = s
		n++
	}
	return n
}

// BytesToBits expands data MSB first into one bit per byte.
func BytesToBits(data []byte) []byte {
	out := make([]byte, len(data)*8)
	UnpackSymbols(out, data, 8)
	return out
}

// BitsToBytes packs bits MSB first. A trailing partial byte is dropped.
func BitsToBytes(bits []byte) []byte {
	out := make([]byte, len(bits)/8)
	PackSymbols(out, bits, 8)
	return out
}
