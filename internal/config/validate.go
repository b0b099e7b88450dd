// internal/config/validate.go
package config

import (
	"fmt"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	p := &cfg.PLC

	if p.CycleMs < 0 {
		return fmt.Errorf("config: cycle_ms must be >= 0, got %d", p.CycleMs)
	}

	switch p.Overrun.Policy {
	case "", OverrunAbsorb, OverrunFatal:
	default:
		return fmt.Errorf("config: unknown overrun policy %q", p.Overrun.Policy)
	}
	if p.Overrun.FatalAfter < 0 {
		return fmt.Errorf("config: overrun fatal_after must be >= 0")
	}

	if p.Failure.UnresponsiveAfter < 0 {
		return fmt.Errorf("config: failure unresponsive_after must be >= 0")
	}
	if f := p.Failure.FaultedFraction; f < 0 || f > 1 {
		return fmt.Errorf("config: failure faulted_fraction must be within [0,1], got %g", f)
	}
	if p.Failure.RecoveryInterval < 0 {
		return fmt.Errorf("config: failure recovery_interval must be >= 0")
	}

	if len(p.Devices) == 0 {
		return fmt.Errorf("config: at least one device required")
	}

	// ------------------------------------------------------------
	// DEVICE VALIDATION
	// ------------------------------------------------------------

	seenName := make(map[string]bool)
	seenPos := make(map[int]string)

	for _, d := range p.Devices {
		if d.Name == "" {
			return fmt.Errorf("config: device without a name")
		}
		if seenName[d.Name] {
			return fmt.Errorf("config: duplicate device name %q", d.Name)
		}
		seenName[d.Name] = true

		switch d.Transport {
		case "", TransportBus:
			if prev, taken := seenPos[d.Position]; taken {
				return fmt.Errorf(
					"config: devices %q and %q share bus position %d",
					prev, d.Name, d.Position,
				)
			}
			seenPos[d.Position] = d.Name

			if d.Endpoint != "" {
				return fmt.Errorf("config: device %q: endpoint is modbus-only", d.Name)
			}

		case TransportModbus:
			if d.Endpoint == "" {
				return fmt.Errorf("config: device %q: modbus transport requires endpoint", d.Name)
			}
			if d.TimeoutMs < 0 {
				return fmt.Errorf("config: device %q: timeout_ms must be >= 0", d.Name)
			}

		default:
			return fmt.Errorf("config: device %q: unknown transport %q", d.Name, d.Transport)
		}

		if len(d.Entries) == 0 {
			return fmt.Errorf("config: device %q has no process-data entries", d.Name)
		}

		if err := validateEntries(d); err != nil {
			return err
		}
	}

	return nil
}

func validateEntries(d DeviceConfig) error {
	seen := make(map[string]bool)

	for _, e := range d.Entries {
		if e.Name == "" {
			return fmt.Errorf("config: device %q: entry without a name", d.Name)
		}
		if seen[e.Name] {
			return fmt.Errorf("config: device %q: duplicate entry name %q", d.Name, e.Name)
		}
		seen[e.Name] = true

		switch e.Kind {
		case KindBool:
			if e.Bits != 0 && e.Bits != 1 {
				return fmt.Errorf(
					"config: device %q entry %q: bool entries are 1 bit wide, got %d",
					d.Name, e.Name, e.Bits,
				)
			}
		case KindUint, KindInt, KindEnum:
			if e.Bits < 1 || e.Bits > 64 {
				return fmt.Errorf(
					"config: device %q entry %q: bits must be within 1..64, got %d",
					d.Name, e.Name, e.Bits,
				)
			}
		case KindFixed:
			if e.Bits != 0 && e.Bits != 32 {
				return fmt.Errorf(
					"config: device %q entry %q: fixed entries are 32 bits wide, got %d",
					d.Name, e.Name, e.Bits,
				)
			}
		default:
			return fmt.Errorf(
				"config: device %q entry %q: unknown kind %q",
				d.Name, e.Name, e.Kind,
			)
		}

		switch e.Region {
		case RegionInput, RegionOutput:
		default:
			return fmt.Errorf(
				"config: device %q entry %q: region must be input or output, got %q",
				d.Name, e.Name, e.Region,
			)
		}

		if e.Count < 0 {
			return fmt.Errorf(
				"config: device %q entry %q: count must be >= 0",
				d.Name, e.Name,
			)
		}

		if e.Safe != 0 && e.Region != RegionOutput {
			return fmt.Errorf(
				"config: device %q entry %q: safe value on a non-output entry",
				d.Name, e.Name,
			)
		}

		// Width as it will be after normalization; bool and fixed carry
		// implicit widths.
		width := e.Bits
		switch e.Kind {
		case KindBool:
			width = 1
		case KindFixed:
			width = 32
		}
		if width < 64 {
			limit := uint64(1) << uint(width)
			if e.Safe >= limit {
				return fmt.Errorf(
					"config: device %q entry %q: safe value %d does not fit in %d bits",
					d.Name, e.Name, e.Safe, width,
				)
			}
			if e.Kind == KindEnum && e.Max >= limit {
				return fmt.Errorf(
					"config: device %q entry %q: max %d does not fit in %d bits",
					d.Name, e.Name, e.Max, width,
				)
			}
		}
	}

	return nil
}
