// internal/bus/sim/device.go
package sim

import (
	"github.com/softplc/vplc/internal/esc"
	"github.com/softplc/vplc/internal/frame"
)

const (
	regAreaLen = 0x0700
	nFMMU      = 2
)

// AL states as they appear in the AL status register.
const (
	alInit   = 0x01
	alPreOp  = 0x02
	alSafeOp = 0x04
	alOp     = 0x08
)

// Device is one simulated subdevice: a small register area, an AL state
// machine and two process-data buffers exposed through FMMU windows.
type Device struct {
	Name string

	// Inputs is what the device reports each cycle; Outputs is what it
	// last received. Guarded by the owning Bus.
	Inputs  []byte
	Outputs []byte

	// DropNext makes the device miss the next n frames entirely.
	DropNext int

	regs    [regAreaLen]byte
	alState uint8
	station uint16
	fmmu    [nFMMU]esc.FMMU
}

func NewDevice(name string, inBytes, outBytes int) *Device {
	d := &Device{
		Name:    name,
		Inputs:  make([]byte, inBytes),
		Outputs: make([]byte, outBytes),
		alState: alInit,
	}
	d.regs[esc.RegALStatus] = alInit
	return d
}

// ALState exposes the device's application-layer state to tests.
func (d *Device) ALState() uint8 {
	return d.alState
}

// addressedFixed reports whether a fixed-address datagram targets this
// device. Positional addressing is resolved by the bus before calling.
func (d *Device) addressedFixed(addr32 uint32) bool {
	return frame.StationAddr(addr32) == d.station && d.station != 0
}

func (d *Device) readRegs(off uint16, buf []byte) {
	for i := range buf {
		r := int(off) + i
		if r >= regAreaLen {
			buf[i] = 0
			continue
		}
		buf[i] = d.regs[r]
	}
}

func (d *Device) writeRegs(off uint16, buf []byte) {
	for i := range buf {
		r := int(off) + i
		if r < regAreaLen {
			d.regs[r] = buf[i]
		}
	}
	d.latch(int(off), len(buf))
}

// latch applies register write side effects.
func (d *Device) latch(off, n int) {
	touched := func(reg, size int) bool {
		return off < reg+size && off+n > reg
	}

	if touched(esc.RegStationAddress, 2) {
		d.station = uint16(d.regs[esc.RegStationAddress]) |
			uint16(d.regs[esc.RegStationAddress+1])<<8
	}

	if touched(esc.RegALControl, 2) {
		// simulated devices acknowledge every requested transition
		d.alState = d.regs[esc.RegALControl] & 0x0f
		d.regs[esc.RegALStatus] = d.alState
	}

	for i := 0; i < nFMMU; i++ {
		base := esc.RegFMMUBase + i*esc.FMMUEntryLen
		if !touched(base, esc.FMMUEntryLen) {
			continue
		}
		d.fmmu[i] = esc.DecodeFMMU(d.regs[base : base+esc.FMMUEntryLen])
	}
}

// logicalRead fills the datagram span from Inputs where a read window
// overlaps it. Returns true if the device participated.
func (d *Device) logicalRead(logStart uint32, data []byte) bool {
	part := false
	for _, w := range d.fmmu {
		if !w.Active || !w.Read || w.Length == 0 {
			continue
		}
		n, dgOff, wOff := overlap(logStart, len(data), w.LogStart, w.Length)
		if n == 0 {
			continue
		}
		copy(data[dgOff:dgOff+n], d.Inputs[wOff:wOff+n])
		part = true
	}
	return part
}

// logicalWrite consumes the datagram span into Outputs where a write
// window overlaps it.
func (d *Device) logicalWrite(logStart uint32, data []byte) bool {
	part := false
	for _, w := range d.fmmu {
		if !w.Active || !w.Write || w.Length == 0 {
			continue
		}
		n, dgOff, wOff := overlap(logStart, len(data), w.LogStart, w.Length)
		if n == 0 {
			continue
		}
		copy(d.Outputs[wOff:wOff+n], data[dgOff:dgOff+n])
		part = true
	}
	return part
}

// overlap intersects [dgStart, dgStart+dgLen) with [wStart, wStart+wLen)
// returning the byte count plus offsets into the datagram and the window.
func overlap(dgStart uint32, dgLen int, wStart uint32, wLen int) (n, dgOff, wOff int) {
	a := int64(dgStart)
	b := a + int64(dgLen)
	c := int64(wStart)
	e := c + int64(wLen)

	if c > a {
		a = c
	}
	if e < b {
		b = e
	}
	if b <= a {
		return 0, 0, 0
	}

	return int(b - a), int(a - int64(dgStart)), int(a - int64(wStart))
}
