// internal/exchange/modbusdev/device.go
package modbusdev

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// client is the exact contract the device uses.
// IMPORTANT: There must be NO other version of this interface anywhere.
type client interface {
	WriteMultipleCoils(address, quantity uint16, value []byte) ([]byte, error)
	ReadDiscreteInputs(address, quantity uint16) ([]byte, error)
	WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error)
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
}

// Device is one Modbus TCP endpoint taking part in the scan cycle.
// A window made entirely of bit entries moves as coils or discrete
// inputs at address 0; any other window moves as 16-bit registers at
// address 0. It serializes requests because the handler mutates
// per-request state.
type Device struct {
	mu        sync.Mutex
	handler   *modbus.TCPClientHandler
	cli       client
	connected bool

	coilsOut bool
	discIn   bool
}

type Config struct {
	Endpoint string
	UnitID   uint8
	Timeout  time.Duration

	// Window modes. True selects the bit function codes for the
	// respective window, false the register function codes.
	OutputCoils    bool
	InputDiscretes bool
}

func New(cfg Config) (*Device, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("modbusdev: endpoint required")
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.SlaveId = cfg.UnitID
	h.Timeout = cfg.Timeout

	return &Device{
		handler:  h,
		cli:      modbus.NewClient(h),
		coilsOut: cfg.OutputCoils,
		discIn:   cfg.InputDiscretes,
	}, nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
	if d.handler == nil {
		return nil
	}
	return d.handler.Close()
}

// Exchange writes the output window and reads the input window. A
// failed connection is dropped and re-dialed on the next call.
func (d *Device) Exchange(out, in []byte, deadline time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	remaining := time.Until(deadline)
	if remaining <= 0 {
		return fmt.Errorf("modbusdev: deadline already passed")
	}
	if d.handler != nil {
		d.handler.Timeout = remaining
	}

	if err := d.ensureConnected(); err != nil {
		return err
	}

	if len(out) > 0 {
		if err := d.writeOutputs(out); err != nil {
			d.drop()
			return err
		}
	}

	if len(in) > 0 {
		if err := d.readInputs(in); err != nil {
			d.drop()
			return err
		}
	}

	return nil
}

func (d *Device) writeOutputs(out []byte) error {
	if d.coilsOut {
		qty := uint16(len(out) * 8)
		if _, err := d.cli.WriteMultipleCoils(0, qty, out); err != nil {
			return fmt.Errorf("modbusdev: write coils: %w", err)
		}
		return nil
	}

	qty := uint16((len(out) + 1) / 2)
	buf := out
	if len(out)%2 != 0 {
		// registers are 16 bit; pad an odd window with a zero byte
		buf = make([]byte, int(qty)*2)
		copy(buf, out)
	}
	if _, err := d.cli.WriteMultipleRegisters(0, qty, buf); err != nil {
		return fmt.Errorf("modbusdev: write registers: %w", err)
	}
	return nil
}

func (d *Device) readInputs(in []byte) error {
	if d.discIn {
		qty := uint16(len(in) * 8)
		resp, err := d.cli.ReadDiscreteInputs(0, qty)
		if err != nil {
			return fmt.Errorf("modbusdev: read inputs: %w", err)
		}
		if len(resp) < len(in) {
			return fmt.Errorf("modbusdev: short input response: got %d bytes, want %d",
				len(resp), len(in))
		}
		copy(in, resp)
		return nil
	}

	qty := uint16((len(in) + 1) / 2)
	resp, err := d.cli.ReadInputRegisters(0, qty)
	if err != nil {
		return fmt.Errorf("modbusdev: read input registers: %w", err)
	}
	if len(resp) < len(in) {
		return fmt.Errorf("modbusdev: short input response: got %d bytes, want %d",
			len(resp), len(in))
	}
	copy(in, resp[:len(in)])
	return nil
}

func (d *Device) ensureConnected() error {
	if d.connected {
		return nil
	}
	if d.handler == nil {
		return errors.New("modbusdev: no handler")
	}
	if err := d.handler.Connect(); err != nil {
		return fmt.Errorf("modbusdev: connect: %w", err)
	}
	d.connected = true
	return nil
}

func (d *Device) drop() {
	if d.handler != nil {
		d.handler.Close()
	}
	d.connected = false
}
