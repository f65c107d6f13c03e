package main

// encodeUTF8 appends the UTF-8 encoding of a code point to buf and
// returns the extended slice.
func encodeUTF8(buf []byte, c uint32) []byte {
	switch {
	case c <= 0x7f:
		return append(buf, byte(c))
	case c <= 0x7ff:
		return append(buf, byte(0b11000000|(c>>6)), byte(0b10000000|(c&0x3f)))
	case c <= 0xffff:
		return append(buf,
			byte(0b11100000|(c>>12)),
			byte(0b10000000|((c>>6)&0x3f)),
			byte(0b10000000|(c&0x3f)))
	}
	return append(buf,
		byte(0b11110000|(c>>18)),
		byte(0b10000000|((c>>12)&0x3f)),
		byte(0b10000000|((c>>6)&0x3f)),
		byte(0b10000000|(c&0x3f)))
}

// decodeUTF8 reads a code point starting at src[p] and returns it with
// the number of bytes consumed.
func decodeUTF8(src []byte, p int) (uint32, int) {
	if src[p] < 128 {
		return uint32(src[p]), 1
	}

	var length int
	var c uint32
	switch {
	case src[p] >= 0b11110000:
		length = 4
		c = uint32(src[p] & 0b111)
	case src[p] >= 0b11100000:
		length = 3
		c = uint32(src[p] & 0b1111)
	case src[p] >= 0b11000000:
		length = 2
		c = uint32(src[p] & 0b11111)
	default:
		// Stray continuation byte; treat as one invalid char.
		return uint32(src[p]), 1
	}

	for i := 1; i < length; i++ {
		if p+i >= len(src) || src[p+i]>>6 != 0b10 {
			return uint32(src[p]), 1
		}
		c = (c << 6) | uint32(src[p+i]&0b111111)
	}
	return c, length
}

// isIdent1 returns true if c can be the first byte of an identifier.
// Multibyte UTF-8 sequences are accepted wholesale.
func isIdent1(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || c == '_' || c == '$' || c >= 128
}

func isIdent2(c byte) bool {
	return isIdent1(c) || ('0' <= c && c <= '9')
}
