package funds

import "math/bits"

// MulDiv computes floor(a*b/d) through a 128-bit intermediate, so percentage
// and pro-rata splits of large balances never wrap. d must be non-zero when
// both a and b are non-zero.
func MulDiv(a, b, d uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	hi, lo := bits.Mul64(a, b)
	q, _ := bits.Div64(hi, lo, d)
	return q
}
