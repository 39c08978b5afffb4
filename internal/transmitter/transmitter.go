// Package transmitter drives the FM transmitter chips. Each chip family owns
// its bus link and its PS/RT buffers; nothing else touches them.
package transmitter

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"github.com/bartgrantham/dynrds/internal/config"
	"github.com/bartgrantham/dynrds/internal/i2cbus"
	"github.com/bartgrantham/dynrds/internal/pwm"
	"github.com/bartgrantham/dynrds/internal/rds"
)

var ErrChipID = errors.New("unexpected chip id")
var ErrNoCTS = errors.New("chip never cleared to send")
var ErrNoPin = errors.New("no such gpio pin")

// DefaultResetDelay is how long a chip stays down during Reset.
const DefaultResetDelay = 1 * time.Second

// recentGroups is how many wire groups are kept for the status snapshot.
const recentGroups = 16

type Transmitter interface {
	Name() string
	Active() bool

	// Startup powers the chip up and starts broadcasting. Only errors that
	// wrap i2cbus.ErrFatal or ErrChipID are returned.
	Startup() error
	Shutdown() error
	// Reset power-cycles the chip and re-acquires the bus.
	Reset() error
	// Update applies settings that don't need a power cycle.
	Update() error
	Status() (map[string]int, error)

	UpdateText(ps, rt string) error
	// SendNextGroup blocks for about one group time. Handshake stalls are
	// handled internally with a Reset.
	SendNextGroup() error

	Buffers() (ps, rt *rds.Buffer)
	Recent() [][]byte
}

// Pin is the reset line of a Si4713.
type Pin interface {
	Out(l gpio.Level) error
}

// FromConfig builds the transmitter named in cfg. TransmitterNone gives nil.
// host.Init must have run.
func FromConfig(cfg *config.Config) (Transmitter, error) {
	switch cfg.Transmitter {
	case config.TransmitterQN8066:
		var amp pwm.Amplifier = pwm.None{}
		if cfg.QN8066.PWM {
			hw, err := pwm.Open(cfg.QN8066.PWMPin)
			if err != nil {
				log.Error().Err(err).Str("pin", cfg.QN8066.PWMPin).Msg("amplifier PWM unavailable")
			} else {
				amp = hw
			}
		}
		return NewQN8066(cfg, i2cbus.OpenI2C(cfg.I2C.Bus, QN8066Addr), amp), nil
	case config.TransmitterSi4713:
		p := gpioreg.ByName(cfg.Si4713.ResetPin)
		if p == nil {
			return nil, fmt.Errorf("si4713 reset pin %q: %w", cfg.Si4713.ResetPin, ErrNoPin)
		}
		return NewSi4713(cfg, i2cbus.OpenI2C(cfg.I2C.Bus, Si4713Addr), p), nil
	case config.TransmitterNone:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown transmitter %q", cfg.Transmitter)
}

/*
Wire groups, blocks A..D big-endian, as the QN8066 takes them in its RDS
registers:

* 0B, PS : PI PI | 0b0000_1PPP PPPi_iiii ... | PI PI | c0 c1
* 2A, RT : PI PI | 0b0010_0PPP PPPA_iiii      | c0 c1 | c2 c3

P is the programme type, i the segment address, A the text A/B flag.
*/

func psGroup(pi uint16, pty int, idx int, c0, c1 byte) []byte {
	return []byte{
		byte(pi >> 8), byte(pi),
		0b10<<2 | byte(pty>>3),
		byte(pty&0b111)<<5 | byte(idx),
		byte(pi >> 8), byte(pi),
		c0, c1,
	}
}

func rtGroup(pi uint16, pty int, ab bool, idx int, chars []byte) []byte {
	var abBit byte
	if ab {
		abBit = 1
	}
	g := []byte{
		byte(pi >> 8), byte(pi),
		0b1000<<2 | byte(pty>>3),
		byte(pty&0b111)<<5 | abBit<<4 | byte(idx),
		' ', ' ', ' ', ' ',
	}
	copy(g[4:], chars)
	return g
}

// history keeps the last few wire groups
type history struct {
	groups [][]byte
}

func (h *history) add(g []byte) {
	if len(h.groups) >= recentGroups {
		copy(h.groups, h.groups[1:])
		h.groups = h.groups[:recentGroups-1]
	}
	h.groups = append(h.groups, append([]byte(nil), g...))
}

func (h *history) list() [][]byte {
	out := make([][]byte, len(h.groups))
	copy(out, h.groups)
	return out
}

func sleeper(f func(time.Duration)) func(time.Duration) {
	if f == nil {
		return time.Sleep
	}
	return f
}

func clock(f func() time.Time) func() time.Time {
	if f == nil {
		return time.Now
	}
	return f
}
