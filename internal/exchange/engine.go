// internal/exchange/engine.go

// Package exchange drives the MainDevice state machine and performs one
// process-data round per scheduler tick. It owns the MainDevice state
// and all per-device health bookkeeping; control logic never touches
// either directly.
package exchange

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/softplc/vplc/internal/bus"
	"github.com/softplc/vplc/internal/esc"
	"github.com/softplc/vplc/internal/frame"
	"github.com/softplc/vplc/internal/image"
	"github.com/softplc/vplc/internal/status"
	"github.com/softplc/vplc/internal/topology"
)

// Logical address windows of the mapped process image.
const (
	outLogBase = 0x0000_0000
	inLogBase  = 0x0001_0000
)

// stationBase is the first assigned station address.
const stationBase = 0x1000

// Bridged is a device exchanged over its own transport instead of the
// bus frame. Exchange writes out and fills in, bounded by deadline.
type Bridged interface {
	Exchange(out, in []byte, deadline time.Time) error
	Close() error
}

type Config struct {
	CyclePeriod       time.Duration
	UnresponsiveAfter int
	FaultedFraction   float64
	RecoveryInterval  int
}

type deviceState struct {
	dev     topology.Device
	bridged Bridged // nil for bus devices
	station uint16

	health       status.DeviceHealth
	consecFails  int
	lastExchange time.Time

	// rejoining is set when a recovered device has not yet completed a
	// full successful exchange; its outputs stay at safe values until then.
	rejoining bool
}

// Engine owns the MainDevice state. One instance per bus; explicit
// lifecycle: Init, Exchange per tick, Shutdown.
type Engine struct {
	link   bus.Link
	img    *image.Image
	layout *topology.Layout
	cfg    Config

	state status.MainState
	devs  []*deviceState
	cycle uint64

	fbuf []byte

	snap atomic.Pointer[status.Snapshot]
}

func New(link bus.Link, img *image.Image, cfg Config, bridges map[string]Bridged) (*Engine, error) {
	l := img.Layout()

	e := &Engine{
		link:   link,
		img:    img,
		layout: l,
		cfg:    cfg,
		state:  status.StateInit,
		fbuf: make([]byte, frame.FrameOverhead+
			(len(l.Devices)+2)*frame.DatagramOverhead+
			l.InputBytes+l.OutputBytes+64),
	}

	for i, d := range l.Devices {
		ds := &deviceState{dev: d}
		if d.Bridged {
			b, ok := bridges[d.Name]
			if !ok {
				return nil, fmt.Errorf("exchange: no bridge for device %q", d.Name)
			}
			ds.bridged = b
		} else {
			ds.station = uint16(stationBase + i)
		}
		e.devs = append(e.devs, ds)
	}

	e.publishStatus(time.Time{})
	return e, nil
}

// State returns the current MainDevice state.
func (e *Engine) State() status.MainState {
	return e.snap.Load().State
}

// Status returns the last published snapshot.
func (e *Engine) Status() status.Snapshot {
	return *e.snap.Load()
}

func (e *Engine) publishStatus(now time.Time) {
	s := &status.Snapshot{
		State:      e.state,
		CycleCount: e.cycle,
	}
	for _, ds := range e.devs {
		s.Devices = append(s.Devices, status.DeviceStatus{
			Name:                ds.dev.Name,
			Health:              ds.health,
			ConsecutiveFailures: ds.consecFails,
			LastExchange:        ds.lastExchange,
		})
	}
	e.snap.Store(s)
}

func (e *Engine) setState(s status.MainState) {
	if e.state == s {
		return
	}
	log.Printf("exchange: maindevice %v -> %v", e.state, s)
	e.state = s
}

func (e *Engine) busDevices() []*deviceState {
	var out []*deviceState
	for _, ds := range e.devs {
		if ds.bridged == nil {
			out = append(out, ds)
		}
	}
	return out
}

// ---- STARTUP ----

// Init enumerates the bus, reconciles it against the configured
// topology, assigns station addresses, programs the logical mapping and
// brings all devices to SafeOperational. Any failure is startup-fatal.
func (e *Engine) Init(ctx context.Context) error {
	busDevs := e.busDevices()

	if len(busDevs) > 0 {
		infos, err := e.link.Enumerate()
		if err != nil {
			return fmt.Errorf("exchange: bus scan: %w", err)
		}

		disc := make([]topology.DiscoveredDevice, len(infos))
		for i, inf := range infos {
			disc[i] = topology.DiscoveredDevice{
				Position:    inf.Position,
				Name:        inf.Name,
				InputBytes:  inf.InputBytes,
				OutputBytes: inf.OutputBytes,
			}
		}
		if err := topology.Reconcile(e.layout, disc); err != nil {
			return err
		}
		log.Printf("exchange: bus scan found %d devices", len(infos))

		if err := e.assignStations(ctx, busDevs); err != nil {
			return err
		}

		if err := e.alRequest(status.StatePreOperational, len(busDevs)); err != nil {
			return err
		}
		e.setState(status.StatePreOperational)

		if err := e.programMapping(ctx, busDevs); err != nil {
			return err
		}

		if err := e.alRequest(status.StateSafeOperational, len(busDevs)); err != nil {
			return err
		}
	} else {
		e.setState(status.StatePreOperational)
	}

	e.setState(status.StateSafeOperational)
	e.publishStatus(time.Now())
	return nil
}

func (e *Engine) assignStations(ctx context.Context, busDevs []*deviceState) error {
	for i, ds := range busDevs {
		if err := ctx.Err(); err != nil {
			return err
		}

		f, err := frame.New(e.fbuf)
		if err != nil {
			return err
		}

		// positional write: device i sees the address field reach zero
		dg, err := f.NewDatagram(frame.APWR,
			frame.PhysAddr(uint16(-i), esc.RegStationAddress), 2)
		if err != nil {
			return err
		}
		dg.Data()[0] = uint8(ds.station)
		dg.Data()[1] = uint8(ds.station >> 8)

		resp, err := e.roundTrip(f, time.Now().Add(time.Second))
		if err != nil {
			return fmt.Errorf("exchange: station assignment for %s: %w", ds.dev.Name, err)
		}
		if wkc := resp.Datagrams[0].WorkingCounter; wkc != 1 {
			return &WorkingCounterError{
				Command: frame.APWR, Addr32: dg.Addr32, Want: 1, Have: wkc,
			}
		}
	}
	return nil
}

func (e *Engine) programMapping(ctx context.Context, busDevs []*deviceState) error {
	for _, ds := range busDevs {
		if err := ctx.Err(); err != nil {
			return err
		}

		w := ds.dev.Window

		f, err := frame.New(e.fbuf)
		if err != nil {
			return err
		}

		ndg := 0
		if w.InLen > 0 {
			dg, err := f.NewDatagram(frame.FPWR,
				frame.PhysAddr(ds.station, uint16(esc.RegFMMUBase)), esc.FMMUEntryLen)
			if err != nil {
				return err
			}
			esc.EncodeFMMU(dg.Data(), uint32(inLogBase+w.InOff), w.InLen, esc.FMMURead)
			ndg++
		}
		if w.OutLen > 0 {
			dg, err := f.NewDatagram(frame.FPWR,
				frame.PhysAddr(ds.station, uint16(esc.RegFMMUBase+esc.FMMUEntryLen)), esc.FMMUEntryLen)
			if err != nil {
				return err
			}
			esc.EncodeFMMU(dg.Data(), uint32(outLogBase+w.OutOff), w.OutLen, esc.FMMUWrite)
			ndg++
		}
		if ndg == 0 {
			continue
		}

		resp, err := e.roundTrip(f, time.Now().Add(time.Second))
		if err != nil {
			return fmt.Errorf("exchange: mapping for %s: %w", ds.dev.Name, err)
		}
		for _, dg := range resp.Datagrams {
			if dg.WorkingCounter != 1 {
				return &WorkingCounterError{
					Command: dg.Command, Addr32: dg.Addr32, Want: 1, Have: dg.WorkingCounter,
				}
			}
		}
	}
	return nil
}

// alRequest broadcasts an application-layer state request and verifies
// every device acknowledged it.
func (e *Engine) alRequest(target status.MainState, nDevices int) error {
	if nDevices == 0 {
		return nil
	}

	f, err := frame.New(e.fbuf)
	if err != nil {
		return err
	}

	dg, err := f.NewDatagram(frame.BWR, frame.PhysAddr(0, esc.RegALControl), 2)
	if err != nil {
		return err
	}
	dg.Data()[0] = uint8(target) & 0x0f

	resp, err := e.roundTrip(f, time.Now().Add(time.Second))
	if err != nil {
		return fmt.Errorf("exchange: state request %v: %w", target, err)
	}
	if wkc := resp.Datagrams[0].WorkingCounter; int(wkc) != nDevices {
		return &WorkingCounterError{
			Command: frame.BWR, Addr32: dg.Addr32, Want: uint16(nDevices), Have: wkc,
		}
	}
	return nil
}

// roundTrip commits f, exchanges it and overlays the response.
func (e *Engine) roundTrip(f *frame.Frame, deadline time.Time) (*frame.Frame, error) {
	out, err := f.Commit()
	if err != nil {
		return nil, err
	}

	in, err := e.link.RoundTrip(out, deadline)
	if err != nil {
		return nil, err
	}

	var resp frame.Frame
	if err := resp.Overlay(in); err != nil {
		return nil, &bus.CorruptError{Reason: err.Error()}
	}
	if len(resp.Datagrams) != len(f.Datagrams) {
		return nil, &bus.CorruptError{Reason: "datagram count mismatch"}
	}
	return &resp, nil
}

// ---- SHUTDOWN ----

// Shutdown converges all outputs to the safe pattern, transmits it once
// and walks the devices back down to Init. Best effort; errors are
// logged, not returned, since shutdown must always complete.
func (e *Engine) Shutdown() {
	e.img.ForceSafe()

	busDevs := e.busDevices()
	if len(busDevs) > 0 && e.layout.OutputBytes > 0 {
		f, err := frame.New(e.fbuf)
		if err == nil {
			dg, err := f.NewDatagram(frame.LWR, outLogBase, e.layout.OutputBytes)
			if err == nil {
				copy(dg.Data(), e.img.TransmitBytes())
				if _, err := e.roundTrip(f, time.Now().Add(time.Second)); err != nil {
					log.Printf("exchange: safe frame on shutdown: %v", err)
				}
			}
		}
	}

	for _, ds := range e.devs {
		if ds.bridged == nil {
			continue
		}
		in := e.img.ReceiveWindow(ds.dev.Window)
		out := e.img.TransmitWindow(ds.dev.Window)
		if err := ds.bridged.Exchange(out, in, time.Now().Add(time.Second)); err != nil {
			log.Printf("exchange: safe exchange for %s on shutdown: %v", ds.dev.Name, err)
		}
		if err := ds.bridged.Close(); err != nil {
			log.Printf("exchange: close bridge %s: %v", ds.dev.Name, err)
		}
	}

	downLadder := []status.MainState{
		status.StateSafeOperational,
		status.StatePreOperational,
		status.StateInit,
	}
	for _, st := range downLadder {
		if err := e.alRequest(st, len(busDevs)); err != nil {
			log.Printf("exchange: shutdown ladder to %v: %v", st, err)
			break
		}
		e.setState(st)
	}

	e.state = status.StateInit
	e.publishStatus(time.Now())
}
