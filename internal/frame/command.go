// internal/frame/command.go
package frame

import "fmt"

// CommandType is the datagram command set of the bus protocol.
type CommandType uint8

const (
	NOP  CommandType = 0
	APRD CommandType = 1
	APWR CommandType = 2
	APRW CommandType = 3
	FPRD CommandType = 4
	FPWR CommandType = 5
	FPRW CommandType = 6
	BRD  CommandType = 7
	BWR  CommandType = 8
	BRW  CommandType = 9
	LRD  CommandType = 10
	LWR  CommandType = 11
	LRW  CommandType = 12
)

var commandTypeName = map[CommandType]string{
	NOP:  "NOP",
	APRD: "APRD",
	APWR: "APWR",
	APRW: "APRW",
	FPRD: "FPRD",
	FPWR: "FPWR",
	FPRW: "FPRW",
	BRD:  "BRD",
	BWR:  "BWR",
	BRW:  "BRW",
	LRD:  "LRD",
	LWR:  "LWR",
	LRW:  "LRW",
}

func (ct CommandType) String() string {
	if s, ok := commandTypeName[ct]; ok {
		return s
	}
	return fmt.Sprintf("CommandType(%d)", uint(ct))
}

// DoesRead reports whether a responding device fills the datagram data.
func (ct CommandType) DoesRead() bool {
	switch ct {
	case APRD, APRW, FPRD, FPRW, BRD, BRW, LRD, LRW:
		return true
	}
	return false
}

// DoesWrite reports whether a responding device consumes the datagram data.
func (ct CommandType) DoesWrite() bool {
	switch ct {
	case APWR, APRW, FPWR, FPRW, BWR, BRW, LWR, LRW:
		return true
	}
	return false
}

// Positional commands address by auto-increment position; each device
// increments the address field as the frame passes.
func (ct CommandType) Positional() bool {
	switch ct {
	case APRD, APWR, APRW:
		return true
	}
	return false
}

// Broadcast commands address every device.
func (ct CommandType) Broadcast() bool {
	switch ct {
	case BRD, BWR, BRW:
		return true
	}
	return false
}

// Logical commands address the mapped logical process-data space.
func (ct CommandType) Logical() bool {
	switch ct {
	case LRD, LWR, LRW:
		return true
	}
	return false
}

// StationAddr extracts the station address half of a physical address.
func StationAddr(addr32 uint32) uint16 {
	return uint16(addr32)
}

// OffsetAddr extracts the register offset half of a physical address.
func OffsetAddr(addr32 uint32) uint16 {
	return uint16(addr32 >> 16)
}

// PhysAddr composes a physical (station, register offset) address.
func PhysAddr(station, offset uint16) uint32 {
	return uint32(station) | uint32(offset)<<16
}
