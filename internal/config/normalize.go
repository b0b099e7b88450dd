// internal/config/normalize.go
package config

// Defaults applied by Normalize.
const (
	DefaultCycleMs           = 10
	DefaultUnresponsiveAfter = 3
	DefaultFaultedFraction   = 0.5
	DefaultRecoveryInterval  = 50
)

// Normalize applies post-validation defaulting.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	p := &cfg.PLC

	if p.CycleMs == 0 {
		p.CycleMs = DefaultCycleMs
	}
	if p.Overrun.Policy == "" {
		p.Overrun.Policy = OverrunAbsorb
	}
	if p.Failure.UnresponsiveAfter == 0 {
		p.Failure.UnresponsiveAfter = DefaultUnresponsiveAfter
	}
	if p.Failure.FaultedFraction == 0 {
		p.Failure.FaultedFraction = DefaultFaultedFraction
	}
	if p.Failure.RecoveryInterval == 0 {
		p.Failure.RecoveryInterval = DefaultRecoveryInterval
	}

	for di := range p.Devices {
		d := &p.Devices[di]

		if d.Transport == "" {
			d.Transport = TransportBus
		}

		// Modbus endpoints default to half a cycle of budget per exchange.
		if d.Transport == TransportModbus && d.TimeoutMs == 0 {
			d.TimeoutMs = p.CycleMs / 2
			if d.TimeoutMs == 0 {
				d.TimeoutMs = 1
			}
		}

		for ei := range d.Entries {
			e := &d.Entries[ei]

			if e.Count == 0 {
				e.Count = 1
			}
			if e.Kind == KindBool {
				e.Bits = 1
			}
			if e.Kind == KindFixed {
				e.Bits = 32
			}
		}
	}
}
