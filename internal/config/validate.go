package config

import (
	"fmt"
	"strconv"

	"github.com/bartgrantham/dynrds/internal/rds"
)

// Validate checks configuration correctness. It never mutates cfg.
func Validate(cfg *Config) error {
	switch cfg.Transmitter {
	case TransmitterNone, TransmitterQN8066, TransmitterSi4713:
	default:
		return fmt.Errorf("transmitter %q: must be %s, %s or %s",
			cfg.Transmitter, TransmitterQN8066, TransmitterSi4713, TransmitterNone)
	}

	switch cfg.Start {
	case StartFPPD, StartPlaylist, StartNever:
	default:
		return fmt.Errorf("start %q: must be %s, %s or %s", cfg.Start, StartFPPD, StartPlaylist, StartNever)
	}
	switch cfg.Stop {
	case StopPlaylist, StopNever:
	default:
		return fmt.Errorf("stop %q: must be %s or %s", cfg.Stop, StopPlaylist, StopNever)
	}

	if cfg.Frequency < 76 || cfg.Frequency > 108 {
		return fmt.Errorf("frequency %.2f: must be between 76 and 108 MHz", cfg.Frequency)
	}
	if cfg.Preemphasis != "50us" && cfg.Preemphasis != "75us" {
		return fmt.Errorf("preemphasis %q: must be 50us or 75us", cfg.Preemphasis)
	}

	if len(cfg.PICode) != 4 {
		return fmt.Errorf("pi_code %q: must be 4 hex digits", cfg.PICode)
	}
	if _, err := strconv.ParseUint(cfg.PICode, 16, 16); err != nil {
		return fmt.Errorf("pi_code %q: must be 4 hex digits", cfg.PICode)
	}
	if cfg.PTY < 0 || cfg.PTY > 31 {
		return fmt.Errorf("pty %d: must be between 0 and 31", cfg.PTY)
	}

	if cfg.PS.UpdateRate <= 0 {
		return fmt.Errorf("ps.update_rate %d: must be positive", cfg.PS.UpdateRate)
	}
	if cfg.RT.UpdateRate <= 0 {
		return fmt.Errorf("rt.update_rate %d: must be positive", cfg.RT.UpdateRate)
	}
	if cfg.RT.Size <= 0 || cfg.RT.Size%rds.RTGroupSize != 0 || cfg.RT.Size > rds.RTMaxFragmentSize {
		return fmt.Errorf("rt.size %d: must be a multiple of %d, at most %d",
			cfg.RT.Size, rds.RTGroupSize, rds.RTMaxFragmentSize)
	}

	q := cfg.QN8066
	if q.BufferGain < 0 || q.BufferGain > 5 {
		return fmt.Errorf("qn8066.buffer_gain %d: must be between 0 and 5", q.BufferGain)
	}
	if q.DigitalGain < 0 || q.DigitalGain > 2 {
		return fmt.Errorf("qn8066.digital_gain %d: must be between 0 and 2", q.DigitalGain)
	}
	if q.InputImpedance < 0 || q.InputImpedance > 3 {
		return fmt.Errorf("qn8066.input_impedance %d: must be between 0 and 3", q.InputImpedance)
	}
	if q.AmpPower < 0 || q.AmpPower > 300 {
		return fmt.Errorf("qn8066.amp_power %d: must be between 0 and 300", q.AmpPower)
	}
	if q.PWM && q.PWMPin == "" {
		return fmt.Errorf("qn8066.pwm is set but no pwm_pin is configured")
	}

	s := cfg.Si4713
	if cfg.Transmitter == TransmitterSi4713 {
		if s.ResetPin == "" {
			return fmt.Errorf("si4713.reset_pin must be set")
		}
		if s.ChipPower < 88 || s.ChipPower > 115 {
			return fmt.Errorf("si4713.chip_power %d: must be between 88 and 115 dBuV", s.ChipPower)
		}
	}
	if s.TuningCap < 0 || s.TuningCap > 191 {
		return fmt.Errorf("si4713.tuning_cap %d: must be between 0 and 191", s.TuningCap)
	}

	if cfg.FIFO == "" {
		return fmt.Errorf("fifo path must be set")
	}
	if cfg.Status.Interval < 0 {
		return fmt.Errorf("status.interval %d: must not be negative", cfg.Status.Interval)
	}
	return nil
}
