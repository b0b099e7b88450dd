// internal/topology/topology.go
package topology

import "time"

// Kind is the semantic kind of a process-data signal.
type Kind uint8

const (
	Bool Kind = iota
	Uint
	Int
	Fixed
	Enum
)

func (k Kind) String() string {
	switch k {
	case Bool:
		return "bool"
	case Uint:
		return "uint"
	case Int:
		return "int"
	case Fixed:
		return "fixed"
	case Enum:
		return "enum"
	}
	return "invalid"
}

// Region selects the input or output half of the process image.
type Region uint8

const (
	Input Region = iota
	Output
)

func (r Region) String() string {
	if r == Input {
		return "input"
	}
	return "output"
}

// Signal is one control-logic-visible I/O point. Geometry is final once
// packing has run; nothing remaps at runtime.
type Signal struct {
	Name   string
	Device string
	Kind   Kind
	Region Region

	Byte int // byte offset inside the region
	Bit  int // bit offset inside the byte, 0 for byte-aligned
	Bits int // bit width, 1..64

	Safe uint64 // safe-output value, output signals only
	Max  uint64 // enum bound, 0 means unbounded
}

// Window is a device's byte slice of each region.
type Window struct {
	InOff  int
	InLen  int
	OutOff int
	OutLen int
}

// Device is one configured field device after packing.
type Device struct {
	Name      string
	Position  int
	Mandatory bool
	Bridged   bool // exchanged via its own transport, not the bus frame
	Window    Window

	// Bridged transport details.
	Endpoint string
	UnitID   uint8
	Timeout  time.Duration
}

// Layout is the finalized signal mapping plus region sizes.
// It is immutable after Reconcile.
type Layout struct {
	Devices     []Device
	Signals     map[string]*Signal
	InputBytes  int
	OutputBytes int
}

// Signal returns the named signal descriptor, or nil.
func (l *Layout) Signal(name string) *Signal {
	return l.Signals[name]
}
