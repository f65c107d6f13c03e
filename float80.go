package main

import (
	"math"
	"math/bits"
)

// Float80 is the x87 extended-precision image of a constant: a 64-bit
// mantissa with an explicit integer bit, and a 16-bit sign+exponent.
// Stored in memory it occupies 10 meaningful bytes padded to 16.
type Float80 struct {
	M  uint64
	SE uint16
}

func float80FromFloat64(f float64) Float80 {
	b := math.Float64bits(f)
	sign := uint16(b>>63) << 15
	exp := int((b >> 52) & 0x7ff)
	frac := b & 0xfffffffffffff

	switch {
	case exp == 0x7ff:
		// Inf or NaN
		return Float80{M: 1<<63 | frac<<11, SE: sign | 0x7fff}
	case exp == 0:
		if frac == 0 {
			return Float80{M: 0, SE: sign}
		}
		// Denormal double; normalize into the explicit integer bit.
		nlz := bits.LeadingZeros64(frac)
		return Float80{M: frac << nlz, SE: sign | uint16(15372-nlz)}
	}
	return Float80{M: 1<<63 | frac<<11, SE: sign | uint16(exp-1023+16383)}
}

// writeTo serializes the 80-bit image into buf at offset, padding the
// last 6 bytes with zeros.
func (f Float80) writeTo(buf []byte, offset int64) {
	for i := int64(0); i < 8; i++ {
		buf[offset+i] = byte(f.M >> (8 * i))
	}
	buf[offset+8] = byte(f.SE)
	buf[offset+9] = byte(f.SE >> 8)
	for i := int64(10); i < 16; i++ {
		buf[offset+i] = 0
	}
}
