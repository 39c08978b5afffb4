// Package pwm drives the amplifier power input found on QN8066 boards.
package pwm

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
)

// Period of the amplifier PWM, and the duty step of one amp power unit.
const (
	Period = 18300 * time.Nanosecond
	Step   = 61 * time.Nanosecond
)

// DutyFor converts the configured amp power (0..300) to an on time.
func DutyFor(ampPower int) time.Duration {
	if ampPower < 0 {
		ampPower = 0
	}
	d := time.Duration(ampPower) * Step
	if d > Period {
		d = Period
	}
	return d
}

type Amplifier interface {
	Start(duty time.Duration) error
	Update(duty time.Duration) error
	Stop() error
	Active() bool
}

// None is used when the board has no PWM amplifier.
type None struct{}

func (None) Start(time.Duration) error  { return nil }
func (None) Update(time.Duration) error { return nil }
func (None) Stop() error                { return nil }
func (None) Active() bool               { return false }

// Pin is the part of gpio.PinIO a PWM output needs.
type Pin interface {
	String() string
	Out(l gpio.Level) error
	PWM(duty gpio.Duty, f physic.Frequency) error
}

type Hardware struct {
	Pin    Pin
	active bool
	duty   time.Duration
}

// Open finds the named pin, e.g. "GPIO18". host.Init must have run.
func Open(name string) (*Hardware, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("no pin named %q", name)
	}
	log.Info().Str("pin", p.String()).Msg("initializing hardware PWM")
	return &Hardware{Pin: p}, nil
}

// DutyCycle converts an on time within Period to a gpio duty.
func DutyCycle(on time.Duration) gpio.Duty {
	if on <= 0 {
		return 0
	}
	if on >= Period {
		return gpio.DutyMax
	}
	return gpio.Duty(int64(gpio.DutyMax) * int64(on) / int64(Period))
}

func (h *Hardware) set(on time.Duration) error {
	if err := h.Pin.PWM(DutyCycle(on), physic.PeriodToFrequency(Period)); err != nil {
		return fmt.Errorf("pwm %s: %w", h.Pin, err)
	}
	h.duty = on
	return nil
}

func (h *Hardware) Start(duty time.Duration) error {
	log.Debug().Str("pin", h.Pin.String()).Dur("period", Period).Msg("starting hardware PWM")
	if err := h.set(duty); err != nil {
		return err
	}
	log.Info().Str("pin", h.Pin.String()).Dur("duty", duty).Msg("enabled hardware PWM")
	h.active = true
	return nil
}

func (h *Hardware) Update(duty time.Duration) error {
	log.Info().Str("pin", h.Pin.String()).Dur("duty", duty).Msg("updating hardware PWM duty cycle")
	return h.set(duty)
}

func (h *Hardware) Stop() error {
	log.Info().Str("pin", h.Pin.String()).Msg("disabling hardware PWM")
	h.active = false
	h.duty = 0
	return h.Pin.Out(gpio.Low)
}

func (h *Hardware) Active() bool { return h.active }

// Duty is the on time last set.
func (h *Hardware) Duty() time.Duration { return h.duty }
