// internal/status/snapshot.go
package status

import "time"

// DeviceStatus is the per-device slice of a snapshot.
type DeviceStatus struct {
	Name                string
	Health              DeviceHealth
	ConsecutiveFailures int
	LastExchange        time.Time
}

// Snapshot represents exactly what the observability surface is allowed
// to see. It contains no logic and no memory of the past beyond current
// state.
type Snapshot struct {
	State        MainState
	CycleCount   uint64
	OverrunCount uint32
	LastOverrun  time.Time
	Devices      []DeviceStatus
}
