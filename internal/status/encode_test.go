// internal/status/encode_test.go
package status

import "testing"

func TestEncodeLayout(t *testing.T) {
	s := Snapshot{
		State:        StateOperational,
		CycleCount:   0x12345,
		OverrunCount: 7,
		Devices: []DeviceStatus{
			{Name: "dio1", Health: HealthHealthy},
			{Name: "drive", Health: HealthDegraded, ConsecutiveFailures: 2},
		},
	}

	regs := Encode(s)

	if len(regs) != SlotDeviceBase+2*SlotsPerDevice {
		t.Fatalf("len=%d", len(regs))
	}
	if regs[SlotMainState] != uint16(StateOperational) {
		t.Fatalf("state slot=%#x", regs[SlotMainState])
	}
	if regs[SlotCycleLo] != 0x2345 || regs[SlotCycleHi] != 0x0001 {
		t.Fatalf("cycle slots=%#x %#x", regs[SlotCycleLo], regs[SlotCycleHi])
	}
	if regs[SlotOverrunCount] != 7 {
		t.Fatalf("overrun slot=%d", regs[SlotOverrunCount])
	}

	base := SlotDeviceBase + SlotsPerDevice
	if regs[base] != uint16(HealthDegraded) || regs[base+1] != 2 {
		t.Fatalf("device slots=%v", regs[base:base+2])
	}
}

func TestEncodeCapsFailureCount(t *testing.T) {
	s := Snapshot{
		Devices: []DeviceStatus{
			{Name: "dio1", Health: HealthUnresponsive, ConsecutiveFailures: 1 << 20},
		},
	}
	regs := Encode(s)
	if regs[SlotDeviceBase+1] != 0xFFFF {
		t.Fatalf("failure slot=%d, want capped", regs[SlotDeviceBase+1])
	}
}

func TestStateStrings(t *testing.T) {
	cases := map[MainState]string{
		StateInit:            "INIT",
		StatePreOperational:  "PRE-OP",
		StateSafeOperational: "SAFE-OP",
		StateOperational:     "OP",
		StateFaulted:         "FAULTED",
	}
	for st, want := range cases {
		if st.String() != want {
			t.Errorf("%d String()=%q", st, st.String())
		}
	}
	if HealthUnresponsive.String() != "unresponsive" {
		t.Errorf("health string=%q", HealthUnresponsive.String())
	}
}
