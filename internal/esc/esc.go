// internal/esc/esc.go

// Package esc holds the subdevice controller register map shared by the
// exchange engine and the simulated bus.
package esc

const (
	RegType           = 0x0000
	RegStationAddress = 0x0010
	RegDLStatus       = 0x0110
	RegALControl      = 0x0120
	RegALStatus       = 0x0130
	RegFMMUBase       = 0x0600

	FMMUEntryLen = 0x10
)

// FMMU type flags.
const (
	FMMURead  = 0x01 // device fills master reads (inputs)
	FMMUWrite = 0x02 // device consumes master writes (outputs)
)

// FMMU is one decoded logical-to-process-data mapping entry.
type FMMU struct {
	LogStart uint32
	Length   int
	Read     bool
	Write    bool
	Active   bool
}

// EncodeFMMU writes a whole-byte mapping entry. b must hold FMMUEntryLen
// bytes.
func EncodeFMMU(b []byte, logStart uint32, length int, typ uint8) {
	for i := 0; i < FMMUEntryLen; i++ {
		b[i] = 0
	}
	b[0] = uint8(logStart)
	b[1] = uint8(logStart >> 8)
	b[2] = uint8(logStart >> 16)
	b[3] = uint8(logStart >> 24)
	b[4] = uint8(length)
	b[5] = uint8(length >> 8)
	b[7] = 7 // whole-byte mapping: bits 0..7
	b[0xb] = typ
	b[0xc] = 0x01 // activate
}

// DecodeFMMU parses a mapping entry. b must hold FMMUEntryLen bytes.
func DecodeFMMU(b []byte) FMMU {
	return FMMU{
		LogStart: uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24,
		Length:   int(uint16(b[4]) | uint16(b[5])<<8),
		Read:     b[0xb]&FMMURead != 0,
		Write:    b[0xb]&FMMUWrite != 0,
		Active:   b[0xc]&0x01 != 0,
	}
}
