// internal/exchange/modbusdev/device_test.go
package modbusdev

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

type fakeClient struct {
	coils    []byte
	coilQty  uint16
	regs     []byte
	regQty   uint16
	inputs   []byte
	failNext bool
}

func (f *fakeClient) WriteMultipleCoils(address, quantity uint16, value []byte) ([]byte, error) {
	if f.failNext {
		return nil, errors.New("io timeout")
	}
	f.coils = append(f.coils[:0], value...)
	f.coilQty = quantity
	return nil, nil
}

func (f *fakeClient) ReadDiscreteInputs(address, quantity uint16) ([]byte, error) {
	if f.failNext {
		return nil, errors.New("io timeout")
	}
	n := int(quantity+7) / 8
	if n > len(f.inputs) {
		n = len(f.inputs)
	}
	return f.inputs[:n], nil
}

func (f *fakeClient) WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error) {
	if f.failNext {
		return nil, errors.New("io timeout")
	}
	f.regs = append(f.regs[:0], value...)
	f.regQty = quantity
	return nil, nil
}

func (f *fakeClient) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	if f.failNext {
		return nil, errors.New("io timeout")
	}
	n := int(quantity) * 2
	if n > len(f.inputs) {
		n = len(f.inputs)
	}
	return f.inputs[:n], nil
}

func deadline() time.Time {
	return time.Now().Add(100 * time.Millisecond)
}

func TestExchangeBitWindows(t *testing.T) {
	fc := &fakeClient{inputs: []byte{0x2a, 0x01}}
	d := &Device{cli: fc, connected: true, coilsOut: true, discIn: true}

	out := []byte{0x81}
	in := make([]byte, 2)
	if err := d.Exchange(out, in, deadline()); err != nil {
		t.Fatalf("Exchange() err=%v", err)
	}

	if !bytes.Equal(fc.coils, []byte{0x81}) || fc.coilQty != 8 {
		t.Fatalf("coils=%v qty=%d", fc.coils, fc.coilQty)
	}
	if !bytes.Equal(in, []byte{0x2a, 0x01}) {
		t.Fatalf("inputs=%v", in)
	}
	if fc.regQty != 0 {
		t.Fatal("bit window used register function codes")
	}
}

func TestExchangeRegisterWindows(t *testing.T) {
	fc := &fakeClient{inputs: []byte{0x34, 0x12, 0x78, 0x56}}
	d := &Device{cli: fc, connected: true}

	out := []byte{0xaa, 0xbb, 0xcc}
	in := make([]byte, 3)
	if err := d.Exchange(out, in, deadline()); err != nil {
		t.Fatalf("Exchange() err=%v", err)
	}

	// an odd output window is padded to a whole register
	if !bytes.Equal(fc.regs, []byte{0xaa, 0xbb, 0xcc, 0x00}) || fc.regQty != 2 {
		t.Fatalf("regs=%v qty=%d", fc.regs, fc.regQty)
	}
	if !bytes.Equal(in, []byte{0x34, 0x12, 0x78}) {
		t.Fatalf("inputs=%v", in)
	}
	if fc.coilQty != 0 {
		t.Fatal("register window used bit function codes")
	}
}

func TestExchangeEmptyWindows(t *testing.T) {
	fc := &fakeClient{}
	d := &Device{cli: fc, connected: true}

	if err := d.Exchange(nil, nil, deadline()); err != nil {
		t.Fatalf("Exchange() err=%v", err)
	}
	if fc.coilQty != 0 || fc.regQty != 0 {
		t.Fatal("unexpected write on empty windows")
	}
}

func TestExchangeShortResponse(t *testing.T) {
	fc := &fakeClient{inputs: []byte{0x2a}}
	d := &Device{cli: fc, connected: true, discIn: true}

	in := make([]byte, 2)
	if err := d.Exchange(nil, in, deadline()); err == nil {
		t.Fatal("expected error for short response")
	}
	if d.connected {
		t.Fatal("connection kept after protocol error")
	}
}

func TestExchangeFailureDropsConnection(t *testing.T) {
	fc := &fakeClient{failNext: true}
	d := &Device{cli: fc, connected: true}

	if err := d.Exchange([]byte{0x01}, nil, deadline()); err == nil {
		t.Fatal("expected error")
	}
	if d.connected {
		t.Fatal("connection kept after failure")
	}
}

func TestExchangeExpiredDeadline(t *testing.T) {
	d := &Device{cli: &fakeClient{}, connected: true}
	if err := d.Exchange([]byte{0x01}, nil, time.Now().Add(-time.Millisecond)); err == nil {
		t.Fatal("expected error for expired deadline")
	}
}

func TestNewRequiresEndpoint(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
	d, err := New(Config{Endpoint: "10.0.0.9:502", UnitID: 3, Timeout: 5 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
}
