// internal/status/constants.go
package status

// Observability block layout constants.
// These values define the block layout and MUST NOT be configurable.

// ---- MAINDEVICE STATES ----

// MainState is the MainDevice application state.
// Values follow the EtherCAT AL state encoding.
type MainState uint16

const (
	// StateInit is the initial state before any bus interaction.
	StateInit MainState = 0x01

	// StatePreOperational allows mailbox/config traffic, no process data.
	StatePreOperational MainState = 0x02

	// StateSafeOperational exchanges inputs; outputs are held at safe values.
	StateSafeOperational MainState = 0x04

	// StateOperational exchanges full process data in both directions.
	StateOperational MainState = 0x08

	// StateFaulted means too many devices are unresponsive.
	// Only safe-value frames are emitted until recovery.
	StateFaulted MainState = 0x11
)

func (s MainState) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StatePreOperational:
		return "PRE-OP"
	case StateSafeOperational:
		return "SAFE-OP"
	case StateOperational:
		return "OP"
	case StateFaulted:
		return "FAULTED"
	}
	return "UNKNOWN"
}

// ---- DEVICE HEALTH ----

// DeviceHealth is the per-device health ladder.
// Transitions are driven only by exchange outcomes.
type DeviceHealth uint16

const (
	// HealthUnknown represents the boot state before the first exchange.
	HealthUnknown DeviceHealth = 0

	// HealthHealthy represents a device answering its exchanges.
	HealthHealthy DeviceHealth = 1

	// HealthDegraded represents a device that missed at least one exchange.
	HealthDegraded DeviceHealth = 2

	// HealthUnresponsive represents a device past the failure threshold.
	// Its inputs are frozen at last-known values; its outputs carry safe values.
	HealthUnresponsive DeviceHealth = 3
)

func (h DeviceHealth) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthDegraded:
		return "degraded"
	case HealthUnresponsive:
		return "unresponsive"
	}
	return "unknown"
}

// ---- BLOCK GEOMETRY ----

// SlotMainState holds the MainDevice state.
const SlotMainState = 0

// SlotCycleLo and SlotCycleHi hold the low/high words of the cycle counter.
const SlotCycleLo = 1
const SlotCycleHi = 2

// SlotOverrunCount holds the number of recorded cycle overruns.
const SlotOverrunCount = 3

// Slots 4-7 are reserved.
const SlotReservedStart = 4
const SlotReservedEnd = 7

// SlotDeviceBase is the first per-device slot.
const SlotDeviceBase = 8

// SlotsPerDevice is the number of slots each device occupies:
// health code followed by consecutive-failure count.
const SlotsPerDevice = 2
