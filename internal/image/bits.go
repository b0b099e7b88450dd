// internal/image/bits.go
package image

// Bit order is Lsb0: bit 0 of a byte is its least significant bit, and a
// multi-byte span reads little-endian. A 16-bit value at byte offset 0
// has its low byte in buf[0].

func getBits(buf []byte, byteOff, bitOff, width int) uint64 {
	pos := byteOff*8 + bitOff

	var v uint64
	for i := 0; i < width; i++ {
		b := pos + i
		if buf[b/8]&(1<<uint(b%8)) != 0 {
			v |= 1 << uint(i)
		}
	}
	return v
}

func putBits(buf []byte, byteOff, bitOff, width int, v uint64) {
	pos := byteOff*8 + bitOff

	for i := 0; i < width; i++ {
		b := pos + i
		mask := byte(1) << uint(b%8)
		if v&(1<<uint(i)) != 0 {
			buf[b/8] |= mask
		} else {
			buf[b/8] &^= mask
		}
	}
}

// fitsUnsigned reports whether v fits in width bits.
func fitsUnsigned(v uint64, width int) bool {
	if width >= 64 {
		return true
	}
	return v < 1<<uint(width)
}

// fitsSigned reports whether v fits in width bits two's complement.
func fitsSigned(v int64, width int) bool {
	if width >= 64 {
		return true
	}
	min := int64(-1) << uint(width-1)
	max := int64(1)<<uint(width-1) - 1
	return v >= min && v <= max
}

// signExtend interprets the low width bits of v as two's complement.
func signExtend(v uint64, width int) int64 {
	shift := uint(64 - width)
	return int64(v<<shift) >> shift
}
