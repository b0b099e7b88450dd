// internal/topology/reconcile.go
package topology

import "fmt"

// DiscoveredDevice is one device reported by the startup bus scan.
// An empty Name means the link cannot resolve identities (UDP broadcast
// enumeration); negative byte widths mean the link cannot report sizes.
// Unknown fields are excluded from comparison.
type DiscoveredDevice struct {
	Position    int
	Name        string
	InputBytes  int
	OutputBytes int
}

// MismatchError identifies the first discrepancy between the declared
// and the discovered topology.
type MismatchError struct {
	Kind     MismatchKind
	Position int
	Name     string
	Detail   string
}

type MismatchKind uint8

const (
	MismatchMissing MismatchKind = iota
	MismatchExtra
	MismatchName
	MismatchWidth
)

func (k MismatchKind) String() string {
	switch k {
	case MismatchMissing:
		return "missing device"
	case MismatchExtra:
		return "extra device"
	case MismatchName:
		return "name mismatch"
	case MismatchWidth:
		return "width mismatch"
	}
	return "mismatch"
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("topology: %s at position %d (%s): %s",
		e.Kind, e.Position, e.Name, e.Detail)
}

// Reconcile checks the packed layout against the discovered bus topology.
// Bridged devices are not on the bus and are skipped. The layout is not
// modified; a surviving mismatch is startup-fatal for the caller.
func Reconcile(l *Layout, discovered []DiscoveredDevice) error {
	var bus []Device
	for _, d := range l.Devices {
		if !d.Bridged {
			bus = append(bus, d)
		}
	}

	for i, exp := range bus {
		if i >= len(discovered) {
			return &MismatchError{
				Kind:     MismatchMissing,
				Position: exp.Position,
				Name:     exp.Name,
				Detail:   fmt.Sprintf("bus scan found only %d devices", len(discovered)),
			}
		}

		got := discovered[i]

		if got.Name != "" && got.Name != exp.Name {
			return &MismatchError{
				Kind:     MismatchName,
				Position: exp.Position,
				Name:     exp.Name,
				Detail:   fmt.Sprintf("bus reports %q", got.Name),
			}
		}

		widthsKnown := got.InputBytes >= 0 && got.OutputBytes >= 0
		if widthsKnown && (got.InputBytes != exp.Window.InLen || got.OutputBytes != exp.Window.OutLen) {
			return &MismatchError{
				Kind:     MismatchWidth,
				Position: exp.Position,
				Name:     exp.Name,
				Detail: fmt.Sprintf("declared %d in / %d out bytes, bus reports %d in / %d out",
					exp.Window.InLen, exp.Window.OutLen, got.InputBytes, got.OutputBytes),
			}
		}
	}

	if len(discovered) > len(bus) {
		got := discovered[len(bus)]
		return &MismatchError{
			Kind:     MismatchExtra,
			Position: got.Position,
			Name:     got.Name,
			Detail:   fmt.Sprintf("bus scan found %d devices, %d declared", len(discovered), len(bus)),
		}
	}

	return nil
}
