package i2cbus

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/pin/pinreg"
)

// Opener acquires a fresh handle on the bus. Drivers call it again on reset.
type Opener func() (Conn, func() error, error)

// OpenI2C returns an Opener for the device at addr on the named bus. An empty
// name picks the first bus periph knows about. host.Init must have run.
func OpenI2C(busName string, addr uint16) Opener {
	return func() (Conn, func() error, error) {
		bus, err := i2creg.Open(busName)
		if err != nil {
			return nil, nil, fmt.Errorf("couldn't open i2c bus %q: %w", busName, err)
		}
		if p, ok := bus.(i2c.Pins); ok {
			_, scl := pinreg.Position(p.SCL())
			_, sda := pinreg.Position(p.SDA())
			log.Info().Str("bus", bus.String()).
				Str("scl", p.SCL().String()).Int("scl_pin", scl).
				Str("sda", p.SDA().String()).Int("sda_pin", sda).
				Hex("addr", []byte{byte(addr)}).
				Msg("using i2c bus")
		}
		return &i2c.Dev{Bus: bus, Addr: addr}, bus.Close, nil
	}
}
