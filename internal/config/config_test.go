// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	return &Config{
		PLC: PLCConfig{
			CycleMs:   10,
			Interface: "sim0",
			Overrun:   OverrunConfig{Policy: OverrunAbsorb},
			Failure: FailureConfig{
				UnresponsiveAfter: 3,
				FaultedFraction:   0.5,
				RecoveryInterval:  50,
			},
			Devices: []DeviceConfig{
				{
					Name:     "dio1",
					Position: 0,
					Entries: []EntryConfig{
						{Name: "out", Kind: KindBool, Region: RegionOutput, Count: 2},
						{Name: "word", Kind: KindUint, Bits: 16, Region: RegionInput},
					},
				},
			},
		},
	}
}

func TestValidate_OK(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative cycle", func(c *Config) { c.PLC.CycleMs = -1 }},
		{"bad overrun policy", func(c *Config) { c.PLC.Overrun.Policy = "panic" }},
		{"fraction above one", func(c *Config) { c.PLC.Failure.FaultedFraction = 1.5 }},
		{"no devices", func(c *Config) { c.PLC.Devices = nil }},
		{"unnamed device", func(c *Config) { c.PLC.Devices[0].Name = "" }},
		{"duplicate device name", func(c *Config) {
			c.PLC.Devices = append(c.PLC.Devices, c.PLC.Devices[0])
		}},
		{"duplicate position", func(c *Config) {
			d := c.PLC.Devices[0]
			d.Name = "dio2"
			c.PLC.Devices = append(c.PLC.Devices, d)
		}},
		{"modbus without endpoint", func(c *Config) {
			c.PLC.Devices[0].Transport = TransportModbus
		}},
		{"endpoint on bus device", func(c *Config) {
			c.PLC.Devices[0].Endpoint = "10.0.0.9:502"
		}},
		{"unknown transport", func(c *Config) { c.PLC.Devices[0].Transport = "canopen" }},
		{"no entries", func(c *Config) { c.PLC.Devices[0].Entries = nil }},
		{"unnamed entry", func(c *Config) { c.PLC.Devices[0].Entries[0].Name = "" }},
		{"duplicate entry name", func(c *Config) {
			c.PLC.Devices[0].Entries[1].Name = "out"
		}},
		{"bool wider than one bit", func(c *Config) { c.PLC.Devices[0].Entries[0].Bits = 8 }},
		{"zero-width uint", func(c *Config) { c.PLC.Devices[0].Entries[1].Bits = 0 }},
		{"uint wider than 64", func(c *Config) { c.PLC.Devices[0].Entries[1].Bits = 65 }},
		{"bad region", func(c *Config) { c.PLC.Devices[0].Entries[1].Region = "both" }},
		{"bad kind", func(c *Config) { c.PLC.Devices[0].Entries[1].Kind = "float" }},
		{"safe on input entry", func(c *Config) { c.PLC.Devices[0].Entries[1].Safe = 1 }},
		{"bool safe wider than one bit", func(c *Config) {
			c.PLC.Devices[0].Entries[0].Safe = 2
		}},
		{"safe wider than entry", func(c *Config) {
			c.PLC.Devices[0].Entries = append(c.PLC.Devices[0].Entries, EntryConfig{
				Name: "mode", Kind: KindUint, Bits: 4, Region: RegionOutput, Safe: 16,
			})
		}},
		{"enum max wider than entry", func(c *Config) {
			c.PLC.Devices[0].Entries = append(c.PLC.Devices[0].Entries, EntryConfig{
				Name: "gear", Kind: KindEnum, Bits: 3, Region: RegionInput, Max: 8,
			})
		}},
	}

	for _, tc := range cases {
		cfg := validConfig()
		tc.mutate(cfg)
		if err := Validate(cfg); err == nil {
			t.Errorf("%s: expected error, got nil", tc.name)
		}
	}
}

func TestNormalize_Defaults(t *testing.T) {
	cfg := &Config{
		PLC: PLCConfig{
			Devices: []DeviceConfig{
				{
					Name: "m1", Transport: TransportModbus, Endpoint: "10.0.0.9:502",
					Entries: []EntryConfig{
						{Name: "b", Kind: KindBool, Region: RegionOutput},
						{Name: "pos", Kind: KindFixed, Region: RegionInput},
					},
				},
			},
		},
	}

	Normalize(cfg)

	if cfg.PLC.CycleMs != DefaultCycleMs {
		t.Fatalf("CycleMs=%d, want %d", cfg.PLC.CycleMs, DefaultCycleMs)
	}
	if cfg.PLC.Failure.UnresponsiveAfter != DefaultUnresponsiveAfter {
		t.Fatalf("UnresponsiveAfter=%d", cfg.PLC.Failure.UnresponsiveAfter)
	}
	if cfg.PLC.Failure.RecoveryInterval != DefaultRecoveryInterval {
		t.Fatalf("RecoveryInterval=%d", cfg.PLC.Failure.RecoveryInterval)
	}

	d := cfg.PLC.Devices[0]
	if d.TimeoutMs <= 0 {
		t.Fatalf("modbus timeout not defaulted: %d", d.TimeoutMs)
	}
	if d.Entries[0].Bits != 1 || d.Entries[0].Count != 1 {
		t.Fatalf("bool entry not normalized: %+v", d.Entries[0])
	}
	if d.Entries[1].Bits != 32 {
		t.Fatalf("fixed entry bits=%d, want 32", d.Entries[1].Bits)
	}
}

func TestLoad_YAML(t *testing.T) {
	doc := `
plc:
  cycle_ms: 20
  interface: sim0
  overrun:
    policy: fatal
    fatal_after: 5
  failure:
    unresponsive_after: 4
    faulted_fraction: 0.25
  devices:
    - name: dio1
      position: 0
      mandatory: true
      entries:
        - { name: relay, kind: bool, region: output, count: 4, safe: 0 }
        - { name: level, kind: uint, bits: 12, region: input }
    - name: valves
      position: 1
      transport: modbus
      endpoint: 10.0.0.9:502
      unit_id: 3
      entries:
        - { name: open, kind: bool, region: output }
`
	path := filepath.Join(t.TempDir(), "plc.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	if cfg.PLC.CycleMs != 20 {
		t.Fatalf("CycleMs=%d", cfg.PLC.CycleMs)
	}
	if cfg.PLC.Overrun.Policy != OverrunFatal || cfg.PLC.Overrun.FatalAfter != 5 {
		t.Fatalf("overrun=%+v", cfg.PLC.Overrun)
	}
	if !cfg.PLC.Devices[0].Mandatory {
		t.Fatal("mandatory flag lost")
	}
	v := cfg.PLC.Devices[1]
	if v.Transport != TransportModbus || v.Endpoint != "10.0.0.9:502" || v.UnitID != 3 {
		t.Fatalf("modbus device=%+v", v)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
