// internal/topology/build.go
package topology

import (
	"fmt"
	"time"

	"github.com/softplc/vplc/internal/config"
)

// Build packs the configured devices into a Layout.
// Entries pack bit-contiguously in declared order within one device;
// a device boundary always forces byte alignment, so no two devices
// share a partial byte. Inputs and outputs pack into separate regions.
//
// Build assumes a validated, normalized configuration.
func Build(cfg *config.Config) (*Layout, error) {
	l := &Layout{
		Signals: make(map[string]*Signal),
	}

	inBit := 0
	outBit := 0

	for _, d := range cfg.PLC.Devices {
		dev := Device{
			Name:      d.Name,
			Position:  d.Position,
			Mandatory: d.Mandatory,
			Bridged:   d.Transport == config.TransportModbus,
			Endpoint:  d.Endpoint,
			UnitID:    d.UnitID,
			Timeout:   time.Duration(d.TimeoutMs) * time.Millisecond,
		}

		inStart := inBit
		outStart := outBit

		for _, e := range d.Entries {
			for i := 1; i <= e.Count; i++ {
				name := d.Name + "." + e.Name
				if e.Count > 1 {
					name = fmt.Sprintf("%s%d", name, i)
				}

				sig := &Signal{
					Name:   name,
					Device: d.Name,
					Kind:   kindOf(e.Kind),
					Bits:   e.Bits,
					Safe:   e.Safe,
					Max:    e.Max,
				}

				var cursor *int
				if e.Region == config.RegionInput {
					sig.Region = Input
					cursor = &inBit
				} else {
					sig.Region = Output
					cursor = &outBit
				}

				sig.Byte = *cursor / 8
				sig.Bit = *cursor % 8
				*cursor += e.Bits

				if _, dup := l.Signals[name]; dup {
					return nil, fmt.Errorf("topology: duplicate signal name %q", name)
				}
				l.Signals[name] = sig
			}
		}

		// device boundary byte alignment
		inBit = align8(inBit)
		outBit = align8(outBit)

		dev.Window = Window{
			InOff:  inStart / 8,
			InLen:  (inBit - inStart) / 8,
			OutOff: outStart / 8,
			OutLen: (outBit - outStart) / 8,
		}

		l.Devices = append(l.Devices, dev)
	}

	l.InputBytes = inBit / 8
	l.OutputBytes = outBit / 8

	return l, nil
}

func align8(bits int) int {
	return (bits + 7) &^ 7
}

func kindOf(s string) Kind {
	switch s {
	case config.KindBool:
		return Bool
	case config.KindUint:
		return Uint
	case config.KindInt:
		return Int
	case config.KindFixed:
		return Fixed
	case config.KindEnum:
		return Enum
	}
	return Uint
}
