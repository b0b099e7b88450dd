// internal/exchange/cycle.go
package exchange

import (
	"log"
	"time"

	"github.com/softplc/vplc/internal/esc"
	"github.com/softplc/vplc/internal/frame"
	"github.com/softplc/vplc/internal/status"
)

// Exchange performs one process-data round: transmit the committed
// output region, collect the input region, update device health and
// publish the input snapshot. Called exactly once per scheduler tick.
//
// The returned error reports a Faulted engine; the caller keeps ticking,
// only safe-value frames leave the bus until the fault clears.
func (e *Engine) Exchange(now time.Time) error {
	deadline := now.Add(e.cfg.CyclePeriod / 2)

	e.img.BeginCycle()

	// outputs converge to the safe pattern whenever full operation is
	// not established
	if e.state != status.StateOperational {
		e.img.ForceSafe()
	}
	for _, ds := range e.devs {
		if ds.rejoining || ds.health == status.HealthUnresponsive {
			e.img.ForceSafeWindow(ds.dev.Window)
		}
	}

	probeCycle := e.cfg.RecoveryInterval > 0 &&
		e.cycle%uint64(e.cfg.RecoveryInterval) == uint64(e.cfg.RecoveryInterval-1)

	e.exchangeBus(now, deadline)
	e.exchangeBridged(now, deadline, probeCycle)
	if probeCycle {
		e.recoverBus(now, deadline)
	}

	// a segment with only bridged devices has no bus exchange to prove;
	// it goes operational once every device has exchanged successfully
	if e.state == status.StateSafeOperational && len(e.busDevices()) == 0 {
		all := true
		for _, ds := range e.devs {
			if ds.health != status.HealthHealthy {
				all = false
			}
		}
		if all {
			e.setState(status.StateOperational)
		}
	}

	e.img.PublishInputs()
	e.updateFaultState()
	e.cycle++
	e.publishStatus(now)

	if e.state == status.StateFaulted {
		return ErrExchangeFatal
	}
	return nil
}

// active bus devices take part in cyclic traffic.
func (e *Engine) activeBus() []*deviceState {
	var out []*deviceState
	for _, ds := range e.busDevices() {
		if ds.health != status.HealthUnresponsive {
			out = append(out, ds)
		}
	}
	return out
}

func (e *Engine) exchangeBus(now, deadline time.Time) {
	active := e.activeBus()
	if len(active) == 0 {
		return
	}

	f, err := frame.New(e.fbuf)
	if err != nil {
		e.failAll(active, now, err)
		return
	}

	var outDg, inDg *frame.Datagram
	expOut, expIn := 0, 0

	if e.layout.OutputBytes > 0 {
		outDg, err = f.NewDatagram(frame.LWR, outLogBase, e.layout.OutputBytes)
		if err != nil {
			e.failAll(active, now, err)
			return
		}
		copy(outDg.Data(), e.img.TransmitBytes())
		for _, ds := range active {
			if ds.dev.Window.OutLen > 0 {
				expOut++
			}
		}
	}
	if e.layout.InputBytes > 0 {
		inDg, err = f.NewDatagram(frame.LRD, inLogBase, e.layout.InputBytes)
		if err != nil {
			e.failAll(active, now, err)
			return
		}
		for _, ds := range active {
			if ds.dev.Window.InLen > 0 {
				expIn++
			}
		}
	}
	if outDg == nil && inDg == nil {
		return
	}

	resp, err := e.roundTrip(f, deadline)
	if err != nil {
		e.failAll(active, now, err)
		return
	}

	full := true
	var inData []byte
	for i, dg := range resp.Datagrams {
		want := 0
		switch f.Datagrams[i].Command {
		case frame.LWR:
			want = expOut
		case frame.LRD:
			want = expIn
			inData = dg.Data()
		}
		if int(dg.WorkingCounter) != want {
			full = false
		}
	}

	if full {
		for _, ds := range active {
			e.markSuccess(ds, now)
			e.copyInputs(ds, inData)
		}
		// one complete exchange proves the mapping; request the
		// application-layer Operational transition
		if e.state == status.StateSafeOperational {
			if err := e.alRequest(status.StateOperational, len(active)); err != nil {
				log.Printf("exchange: operational request: %v", err)
			} else {
				e.setState(status.StateOperational)
			}
		}
		return
	}

	// A short working counter cannot be attributed from the merged
	// datagrams, so the received input data is suspect and is discarded
	// for this cycle; last-known values carry over. A per-device status
	// probe finds the non-responders.
	answered := e.probe(active, deadline)
	for i, ds := range active {
		if answered[i] {
			e.markSuccess(ds, now)
		} else {
			e.markFailure(ds, now)
		}
	}
}

// copyInputs moves one device's window of a received input datagram into
// the pending buffer. Windows of devices that missed the cycle stay at
// their last-known values.
func (e *Engine) copyInputs(ds *deviceState, inData []byte) {
	w := ds.dev.Window
	if inData == nil || w.InLen == 0 {
		return
	}
	copy(e.img.ReceiveWindow(w), inData[w.InOff:w.InOff+w.InLen])
}

// probe sends one fixed-address status read per device so a short
// working counter can be attributed. answered[i] corresponds to devs[i].
func (e *Engine) probe(devs []*deviceState, deadline time.Time) []bool {
	answered := make([]bool, len(devs))

	f, err := frame.New(e.fbuf)
	if err != nil {
		return answered
	}
	for _, ds := range devs {
		if _, err := f.NewDatagram(frame.FPRD,
			frame.PhysAddr(ds.station, esc.RegALStatus), 2); err != nil {
			return answered
		}
	}

	resp, err := e.roundTrip(f, deadline)
	if err != nil {
		return answered
	}

	for i := range devs {
		answered[i] = resp.Datagrams[i].WorkingCounter == 1
	}
	return answered
}

// recoverBus re-probes unresponsive bus devices. A responding device
// rejoins as Healthy but its outputs stay safe until one full exchange
// succeeds.
func (e *Engine) recoverBus(now, deadline time.Time) {
	var down []*deviceState
	for _, ds := range e.busDevices() {
		if ds.health == status.HealthUnresponsive {
			down = append(down, ds)
		}
	}
	if len(down) == 0 {
		return
	}

	answered := e.probe(down, deadline)
	for i, ds := range down {
		if !answered[i] {
			continue
		}
		log.Printf("exchange: device %s reconnected", ds.dev.Name)
		ds.health = status.HealthHealthy
		ds.consecFails = 0
		ds.rejoining = true
		ds.lastExchange = now
	}
}

func (e *Engine) exchangeBridged(now, deadline time.Time, probeCycle bool) {
	for _, ds := range e.devs {
		if ds.bridged == nil {
			continue
		}
		if ds.health == status.HealthUnresponsive && !probeCycle {
			continue
		}

		w := ds.dev.Window
		err := ds.bridged.Exchange(e.img.TransmitWindow(w), e.img.ReceiveWindow(w), deadline)
		if err != nil {
			e.markFailure(ds, now)
			continue
		}

		if ds.health == status.HealthUnresponsive {
			// this exchange already carried safe outputs; next cycle
			// resumes normal data
			log.Printf("exchange: device %s reconnected", ds.dev.Name)
		}
		e.markSuccess(ds, now)
	}
}

// ---- HEALTH LADDER ----
// Transitions are driven only by exchange outcomes.

func (e *Engine) failAll(devs []*deviceState, now time.Time, err error) {
	log.Printf("exchange: cycle %d: %v", e.cycle, err)
	for _, ds := range devs {
		e.markFailure(ds, now)
	}
}

func (e *Engine) markFailure(ds *deviceState, now time.Time) {
	ds.consecFails++

	switch ds.health {
	case status.HealthUnknown, status.HealthHealthy:
		ds.health = status.HealthDegraded
		log.Printf("exchange: device %s degraded: %v",
			ds.dev.Name, &DeviceTimeoutError{Name: ds.dev.Name})
	}

	if ds.health == status.HealthDegraded && ds.consecFails >= e.cfg.UnresponsiveAfter {
		ds.health = status.HealthUnresponsive
		ds.rejoining = false
		// inputs freeze at last-known values; outputs fall back to safe
		e.img.ForceSafeWindow(ds.dev.Window)
		log.Printf("exchange: device %s unresponsive after %d consecutive timeouts",
			ds.dev.Name, ds.consecFails)
	}
}

func (e *Engine) markSuccess(ds *deviceState, now time.Time) {
	if ds.health == status.HealthDegraded {
		log.Printf("exchange: device %s recovered", ds.dev.Name)
	}
	ds.health = status.HealthHealthy
	ds.consecFails = 0
	ds.rejoining = false
	ds.lastExchange = now
}

// updateFaultState applies the fault policy: a mandatory device down
// faults the engine immediately, otherwise a configured fraction of
// unresponsive devices does.
func (e *Engine) updateFaultState() {
	unresp := 0
	mandatoryDown := false
	for _, ds := range e.devs {
		if ds.health == status.HealthUnresponsive {
			unresp++
			if ds.dev.Mandatory {
				mandatoryDown = true
			}
		}
	}

	faulted := mandatoryDown
	if !faulted && unresp > 0 && e.cfg.FaultedFraction > 0 {
		faulted = float64(unresp) >= e.cfg.FaultedFraction*float64(len(e.devs))
	}

	switch {
	case faulted && e.state != status.StateFaulted:
		e.setState(status.StateFaulted)
		e.img.ForceSafe()

	case !faulted && e.state == status.StateFaulted:
		// fault condition cleared by recovered devices; full operation
		// returns only after the next complete exchange
		e.setState(status.StateSafeOperational)
	}
}
