// internal/config/config.go
package config

type Config struct {
	PLC PLCConfig `yaml:"plc"`
}

type PLCConfig struct {
	CycleMs   int             `yaml:"cycle_ms"`
	Interface string          `yaml:"interface"`
	Overrun   OverrunConfig   `yaml:"overrun"`
	Failure   FailureConfig   `yaml:"failure"`
	Devices   []DeviceConfig  `yaml:"devices"`
}

// ---- OVERRUN POLICY ----

const (
	OverrunAbsorb = "absorb"
	OverrunFatal  = "fatal"
)

type OverrunConfig struct {
	Policy     string `yaml:"policy"`
	FatalAfter int    `yaml:"fatal_after"`
}

// ---- FAILURE POLICY ----

type FailureConfig struct {
	// UnresponsiveAfter is the number of consecutive timeouts that moves a
	// device from Degraded to Unresponsive.
	UnresponsiveAfter int `yaml:"unresponsive_after"`

	// FaultedFraction is the fraction of unresponsive devices that moves
	// the MainDevice to Faulted. A mandatory device faults it on its own.
	FaultedFraction float64 `yaml:"faulted_fraction"`

	// RecoveryInterval is the number of cycles between re-probes of an
	// unresponsive device.
	RecoveryInterval int `yaml:"recovery_interval"`
}

// ---- DEVICES ----

const (
	TransportBus    = "bus"
	TransportModbus = "modbus"
)

type DeviceConfig struct {
	Name      string        `yaml:"name"`
	Position  int           `yaml:"position"`
	Mandatory bool          `yaml:"mandatory"`
	Transport string        `yaml:"transport"` // empty means bus
	Entries   []EntryConfig `yaml:"entries"`

	// Modbus transport only.
	Endpoint  string `yaml:"endpoint"`
	UnitID    uint8  `yaml:"unit_id"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- PROCESS DATA ENTRIES ----

const (
	KindBool  = "bool"
	KindUint  = "uint"
	KindInt   = "int"
	KindFixed = "fixed"
	KindEnum  = "enum"
)

const (
	RegionInput  = "input"
	RegionOutput = "output"
)

// EntryConfig declares one process-data entry. Count > 1 expands to
// name1..nameN descriptors of identical geometry.
type EntryConfig struct {
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"`
	Bits   int    `yaml:"bits"`
	Count  int    `yaml:"count"`
	Region string `yaml:"region"`

	// Safe is the safe-output value for output entries (default 0).
	Safe uint64 `yaml:"safe"`

	// Max bounds enum entries; ignored for other kinds.
	Max uint64 `yaml:"max"`
}
