// internal/frame/frame_test.go
package frame

import (
	"bytes"
	"testing"
)

func TestCommitOverlayRoundTrip(t *testing.T) {
	buf := make([]byte, 256)
	f, err := New(buf)
	if err != nil {
		t.Fatal(err)
	}

	wr, err := f.NewDatagram(LWR, 0x0000_0000, 3)
	if err != nil {
		t.Fatal(err)
	}
	copy(wr.Data(), []byte{0xaa, 0xbb, 0xcc})

	if _, err := f.NewDatagram(LRD, 0x0001_0000, 2); err != nil {
		t.Fatal(err)
	}

	wire, err := f.Commit()
	if err != nil {
		t.Fatal(err)
	}

	wantLen := FrameOverhead + 2*DatagramOverhead + 3 + 2
	if len(wire) != wantLen {
		t.Fatalf("wire len=%d, want %d", len(wire), wantLen)
	}

	var g Frame
	if err := g.Overlay(wire); err != nil {
		t.Fatalf("Overlay() err=%v", err)
	}
	if g.Header.Type() != PDUType {
		t.Fatalf("type=%d", g.Header.Type())
	}
	if len(g.Datagrams) != 2 {
		t.Fatalf("datagrams=%d", len(g.Datagrams))
	}

	d0, d1 := g.Datagrams[0], g.Datagrams[1]
	if d0.Command != LWR || d0.Addr32 != 0 || d0.DataLength() != 3 {
		t.Fatalf("d0=%+v", d0)
	}
	if !bytes.Equal(d0.Data(), []byte{0xaa, 0xbb, 0xcc}) {
		t.Fatalf("d0 data=%v", d0.Data())
	}
	if d0.Last() {
		t.Fatal("d0 marked last")
	}
	if d1.Command != LRD || d1.Addr32 != 0x0001_0000 || !d1.Last() {
		t.Fatalf("d1=%+v", d1)
	}
}

func TestNewDatagramZeroesPayload(t *testing.T) {
	buf := make([]byte, 64)
	for i := range buf {
		buf[i] = 0xff
	}

	f, err := New(buf)
	if err != nil {
		t.Fatal(err)
	}
	dg, err := f.NewDatagram(LRD, 0, 8)
	if err != nil {
		t.Fatal(err)
	}
	for i, b := range dg.Data() {
		if b != 0 {
			t.Fatalf("payload byte %d = %#x", i, b)
		}
	}
}

func TestNewDatagramRejectsOverflow(t *testing.T) {
	buf := make([]byte, FrameOverhead+DatagramOverhead+4)
	f, err := New(buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.NewDatagram(LRD, 0, 4); err != nil {
		t.Fatal(err)
	}
	if _, err := f.NewDatagram(LRD, 0, 0); err == nil {
		t.Fatal("second datagram should not fit")
	}
}

func TestOverlayRejectsTruncated(t *testing.T) {
	buf := make([]byte, 64)
	f, _ := New(buf)
	dg, _ := f.NewDatagram(BRD, 0, 4)
	dg.WorkingCounter = 2
	wire, err := f.Commit()
	if err != nil {
		t.Fatal(err)
	}

	var g Frame
	if err := g.Overlay(wire[:len(wire)-3]); err == nil {
		t.Fatal("expected error for truncated frame")
	}
	if err := g.Overlay(wire[:1]); err == nil {
		t.Fatal("expected error for missing header")
	}
}

func TestWorkingCounterSurvives(t *testing.T) {
	buf := make([]byte, 64)
	f, _ := New(buf)
	dg, _ := f.NewDatagram(BWR, PhysAddr(0, 0x0120), 2)
	dg.WorkingCounter = 7
	wire, err := f.Commit()
	if err != nil {
		t.Fatal(err)
	}

	var g Frame
	if err := g.Overlay(wire); err != nil {
		t.Fatal(err)
	}
	if g.Datagrams[0].WorkingCounter != 7 {
		t.Fatalf("wkc=%d", g.Datagrams[0].WorkingCounter)
	}
}

func TestPhysAddrSplit(t *testing.T) {
	a := PhysAddr(0x1002, 0x0130)
	if StationAddr(a) != 0x1002 || OffsetAddr(a) != 0x0130 {
		t.Fatalf("addr=%#08x station=%#x offset=%#x", a, StationAddr(a), OffsetAddr(a))
	}
}

func TestCommandClasses(t *testing.T) {
	if !LRW.DoesRead() || !LRW.DoesWrite() || !LRW.Logical() {
		t.Fatal("LRW classes")
	}
	if LRD.DoesWrite() || !LRD.DoesRead() {
		t.Fatal("LRD classes")
	}
	if !APWR.Positional() || APWR.Broadcast() {
		t.Fatal("APWR classes")
	}
	if !BRD.Broadcast() || NOP.DoesRead() || NOP.DoesWrite() {
		t.Fatal("BRD/NOP classes")
	}
}
