// internal/status/encode.go
package status

// Encode converts a Snapshot into a fixed-layout word block for external
// telemetry consumers. Layout is locked by the slot constants.
// No IO. No side effects.
func Encode(s Snapshot) []uint16 {
	regs := make([]uint16, SlotDeviceBase+len(s.Devices)*SlotsPerDevice)

	regs[SlotMainState] = uint16(s.State)
	regs[SlotCycleLo] = uint16(s.CycleCount)
	regs[SlotCycleHi] = uint16(s.CycleCount >> 16)
	regs[SlotOverrunCount] = uint16(s.OverrunCount)

	for i, d := range s.Devices {
		base := SlotDeviceBase + i*SlotsPerDevice
		regs[base] = uint16(d.Health)

		fails := d.ConsecutiveFailures
		if fails > 0xFFFF {
			fails = 0xFFFF
		}
		regs[base+1] = uint16(fails)
	}

	return regs
}
