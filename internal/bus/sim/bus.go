// internal/bus/sim/bus.go

// Package sim is an in-process bus: a chain of simulated subdevices that
// answer the same frame traffic a physical segment would. It backs both
// virtual operation and the transport-failure tests.
package sim

import (
	"sync"
	"time"

	"github.com/softplc/vplc/internal/bus"
	"github.com/softplc/vplc/internal/frame"
)

type Bus struct {
	mu      sync.Mutex
	devices []*Device

	// DropFrameNext loses the next n whole frames.
	DropFrameNext int

	// CorruptNext mangles the next n response frames.
	CorruptNext int
}

func NewBus(devices ...*Device) *Bus {
	return &Bus{devices: devices}
}

func (b *Bus) Device(i int) *Device {
	return b.devices[i]
}

// SetInputs replaces a device's reported inputs between cycles.
func (b *Bus) SetInputs(i int, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(b.devices[i].Inputs, data)
}

// OutputsSnapshot copies a device's last received outputs.
func (b *Bus) OutputsSnapshot(i int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.devices[i].Outputs))
	copy(out, b.devices[i].Outputs)
	return out
}

// ---- bus.Link ----

func (b *Bus) Enumerate() ([]bus.DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	infos := make([]bus.DeviceInfo, len(b.devices))
	for i, d := range b.devices {
		infos[i] = bus.DeviceInfo{
			Position:    i,
			Name:        d.Name,
			InputBytes:  len(d.Inputs),
			OutputBytes: len(d.Outputs),
		}
	}
	return infos, nil
}

func (b *Bus) RoundTrip(out []byte, _ time.Time) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.DropFrameNext > 0 {
		b.DropFrameNext--
		return nil, bus.ErrFrameLost
	}

	// devices flagged to drop sit this frame out
	skipped := make(map[*Device]bool)
	for _, d := range b.devices {
		if d.DropNext > 0 {
			d.DropNext--
			skipped[d] = true
		}
	}

	resp := make([]byte, len(out))
	copy(resp, out)

	var f frame.Frame
	if err := f.Overlay(resp); err != nil {
		return nil, &bus.CorruptError{Reason: err.Error()}
	}

	for _, dg := range f.Datagrams {
		b.processDatagram(dg, skipped)
	}

	committed, err := f.Commit()
	if err != nil {
		return nil, err
	}

	if b.CorruptNext > 0 {
		b.CorruptNext--
		// truncating below the declared frame length fails the overlay
		if len(committed) > frame.FrameOverhead+2 {
			committed = committed[:frame.FrameOverhead+2]
		}
	}

	return committed, nil
}

func (b *Bus) Close() error {
	return nil
}

func (b *Bus) processDatagram(dg *frame.Datagram, skipped map[*Device]bool) {
	switch {
	case dg.Command.Logical():
		for _, d := range b.devices {
			if skipped[d] {
				continue
			}
			if dg.Command.DoesRead() && d.logicalRead(dg.Addr32, dg.Data()) {
				dg.WorkingCounter++
			}
			if dg.Command.DoesWrite() && d.logicalWrite(dg.Addr32, dg.Data()) {
				dg.WorkingCounter++
			}
		}

	case dg.Command.Broadcast():
		off := frame.OffsetAddr(dg.Addr32)
		for _, d := range b.devices {
			if skipped[d] {
				continue
			}
			if dg.Command.DoesRead() {
				d.readRegs(off, dg.Data())
			}
			if dg.Command.DoesWrite() {
				d.writeRegs(off, dg.Data())
			}
			dg.WorkingCounter++
		}

	case dg.Command.Positional():
		// each device increments the position field as the frame passes;
		// the device seeing zero is the addressed one
		pos := frame.StationAddr(dg.Addr32)
		for _, d := range b.devices {
			if pos == 0 && !skipped[d] {
				b.interactPhys(d, dg)
			}
			pos++
		}
		dg.Addr32 = uint32(frame.OffsetAddr(dg.Addr32))<<16 | uint32(pos)

	default: // FPRD/FPWR/FPRW
		for _, d := range b.devices {
			if skipped[d] {
				continue
			}
			if d.addressedFixed(dg.Addr32) {
				b.interactPhys(d, dg)
			}
		}
	}
}

func (b *Bus) interactPhys(d *Device, dg *frame.Datagram) {
	off := frame.OffsetAddr(dg.Addr32)
	if dg.Command.DoesRead() {
		d.readRegs(off, dg.Data())
	}
	if dg.Command.DoesWrite() {
		d.writeRegs(off, dg.Data())
	}
	dg.WorkingCounter++
}
