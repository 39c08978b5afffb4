package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidate_Defaults(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := []struct {
		name string
		mod  func(c *Config)
	}{
		{"transmitter", func(c *Config) { c.Transmitter = "QN8027" }},
		{"start", func(c *Config) { c.Start = "Always" }},
		{"stop", func(c *Config) { c.Stop = "FPPDStop" }},
		{"frequency low", func(c *Config) { c.Frequency = 60 }},
		{"frequency high", func(c *Config) { c.Frequency = 108.5 }},
		{"preemphasis", func(c *Config) { c.Preemphasis = "25us" }},
		{"pi short", func(c *Config) { c.PICode = "819" }},
		{"pi hex", func(c *Config) { c.PICode = "81zz" }},
		{"pty", func(c *Config) { c.PTY = 32 }},
		{"ps rate", func(c *Config) { c.PS.UpdateRate = 0 }},
		{"rt rate", func(c *Config) { c.RT.UpdateRate = -1 }},
		{"rt size multiple", func(c *Config) { c.RT.Size = 30 }},
		{"rt size max", func(c *Config) { c.RT.Size = 68 }},
		{"buffer gain", func(c *Config) { c.QN8066.BufferGain = 6 }},
		{"digital gain", func(c *Config) { c.QN8066.DigitalGain = 3 }},
		{"impedance", func(c *Config) { c.QN8066.InputImpedance = 4 }},
		{"amp power", func(c *Config) { c.QN8066.AmpPower = 301 }},
		{"pwm pin", func(c *Config) { c.QN8066.PWM = true; c.QN8066.PWMPin = "" }},
		{"si4713 power", func(c *Config) { c.Transmitter = TransmitterSi4713; c.Si4713.ChipPower = 120 }},
		{"si4713 reset pin", func(c *Config) { c.Transmitter = TransmitterSi4713; c.Si4713.ResetPin = "" }},
		{"fifo", func(c *Config) { c.FIFO = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mod(cfg)
			if err := Validate(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidate_DoesNotMutate(t *testing.T) {
	cfg := Defaults()
	cfg.RT.Size = 64
	before := *cfg
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *cfg != before {
		t.Fatalf("Validate mutated the config")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Transmitter != TransmitterNone || cfg.RT.Size != 32 {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dynrds.yaml")
	yml := `
transmitter: QN8066
frequency: 88.3
pi_code: "1a2b"
ps:
  style: "{T}"
qn8066:
  buffer_gain: 2
  agc: true
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Transmitter != TransmitterQN8066 || cfg.Frequency != 88.3 {
		t.Fatalf("toplevel fields not loaded: %+v", cfg)
	}
	if cfg.PS.Style != "{T}" || cfg.PS.UpdateRate != 4 {
		t.Fatalf("ps section not merged over defaults: %+v", cfg.PS)
	}
	if cfg.QN8066.BufferGain != 2 || !cfg.QN8066.AGC || cfg.QN8066.ChipPower != 122 {
		t.Fatalf("qn8066 section not merged over defaults: %+v", cfg.QN8066)
	}
	if hi, lo := cfg.PIBytes(); hi != 0x1a || lo != 0x2b {
		t.Fatalf("PI bytes = %02x %02x", hi, lo)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("loaded config should validate: %v", err)
	}
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("frequency: [1, 2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
