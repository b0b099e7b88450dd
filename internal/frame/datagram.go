// internal/frame/datagram.go
package frame

import "fmt"

const (
	datagramHeaderLen = 10
	wkcLen            = 2

	// DatagramOverhead is the non-payload byte cost of one datagram.
	DatagramOverhead = datagramHeaderLen + wkcLen

	dataLenMask      = (1 << 11) - 1
	moreFollowsBit   = 15
)

// Datagram is one command inside a frame. Data aliases the frame's
// backing buffer; there is no per-datagram payload allocation.
type Datagram struct {
	Command        CommandType
	Index          uint8
	Addr32         uint32
	LenWord        uint16
	Interrupt      uint16
	WorkingCounter uint16

	data []byte
}

func (dg *Datagram) Data() []byte {
	return dg.data
}

func (dg *Datagram) DataLength() int {
	return int(dg.LenWord & dataLenMask)
}

// Last reports whether this is the final datagram of its frame.
func (dg *Datagram) Last() bool {
	return dg.LenWord&(1<<moreFollowsBit) == 0
}

func (dg *Datagram) setMoreFollows(more bool) {
	if more {
		dg.LenWord |= 1 << moreFollowsBit
	} else {
		dg.LenWord &^= 1 << moreFollowsBit
	}
}

// ByteLen is the on-wire size of the datagram.
func (dg *Datagram) ByteLen() int {
	return DatagramOverhead + dg.DataLength()
}

// overlay parses one datagram from b, aliasing its payload.
func (dg *Datagram) overlay(d []byte) (b []byte, err error) {
	b = d
	if len(b) < datagramHeaderLen {
		return b, fmt.Errorf("frame: need %d bytes for datagram header, have %d", datagramHeaderLen, len(b))
	}

	var c8 uint8
	c8, b = getUint8(b)
	dg.Command = CommandType(c8)
	dg.Index, b = getUint8(b)
	dg.Addr32, b = getUint32(b)
	dg.LenWord, b = getUint16(b)
	dg.Interrupt, b = getUint16(b)

	n := dg.DataLength()
	if len(b) < n+wkcLen {
		return b, fmt.Errorf("frame: datagram declares %d payload bytes, %d remain", n, len(b))
	}

	dg.data = b[:n]
	b = b[n:]
	dg.WorkingCounter, b = getUint16(b)

	return b, nil
}

// commit writes the datagram into d, which must hold ByteLen() bytes.
func (dg *Datagram) commit(d []byte) []byte {
	b := d
	b = putUint8(b, uint8(dg.Command))
	b = putUint8(b, dg.Index)
	b = putUint32(b, dg.Addr32)
	b = putUint16(b, dg.LenWord)
	b = putUint16(b, dg.Interrupt)

	b = b[copy(b, dg.data):]
	putUint16(b, dg.WorkingCounter)

	return d[:dg.ByteLen()]
}
