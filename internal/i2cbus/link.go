// Package i2cbus is the retrying register read/write layer shared by the
// transmitter drivers.
package i2cbus

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Attempts is how many times an operation is tried before giving up.
const Attempts = 8

// Backoff is the step of the linear backoff between attempts. Attempt n
// (counting from 0) sleeps n*Backoff after failing, starting with n = 1.
const Backoff = 250 * time.Millisecond

var ErrFatal = errors.New("fatal bus failure")
var ErrShortRead = errors.New("short read")

// Conn is a half or full duplex transaction with one device.
// periph.io's i2c.Dev satisfies it.
type Conn interface {
	Tx(w, r []byte) error
}

// Link wraps a Conn with retries. A Link is owned by exactly one driver.
type Link struct {
	Conn  Conn
	Name  string
	Sleep func(time.Duration)
}

func NewLink(c Conn, name string) *Link {
	return &Link{Conn: c, Name: name, Sleep: time.Sleep}
}

func (l *Link) String() string {
	return l.Name
}

// Write sends reg followed by data, the SMBus block write layout. When every
// attempt fails the error wraps ErrFatal if fatal is set.
func (l *Link) Write(reg byte, data []byte, fatal bool) error {
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, reg)
	buf = append(buf, data...)
	log.Trace().Str("bus", l.Name).Hex("reg", []byte{reg}).Hex("data", data).Msg("write")

	err := l.retry(func() error {
		return l.Conn.Tx(buf, nil)
	})
	if err != nil {
		log.Error().Str("bus", l.Name).Hex("reg", []byte{reg}).Err(err).Msg("failed to write after multiple attempts")
		return l.fail(fmt.Errorf("write 0x%02x: %w", reg, err), fatal)
	}
	return nil
}

// Read writes reg then reads n bytes in the same transaction.
func (l *Link) Read(reg byte, n int, fatal bool) ([]byte, error) {
	buf := make([]byte, n)
	err := l.retry(func() error {
		return l.Conn.Tx([]byte{reg}, buf)
	})
	if err != nil {
		log.Error().Str("bus", l.Name).Hex("reg", []byte{reg}).Err(err).Msg("failed to read after multiple attempts")
		return nil, l.fail(fmt.Errorf("read 0x%02x: %w", reg, err), fatal)
	}
	log.Trace().Str("bus", l.Name).Hex("reg", []byte{reg}).Int("n", n).Hex("data", buf).Msg("read")
	return buf, nil
}

// ReadReg is Read for a single register.
func (l *Link) ReadReg(reg byte, fatal bool) (byte, error) {
	b, err := l.Read(reg, 1, fatal)
	if err != nil {
		return 0, err
	}
	if len(b) < 1 {
		return 0, ErrShortRead
	}
	return b[0], nil
}

func (l *Link) retry(op func() error) error {
	var err error
	for i := 0; i < Attempts; i++ {
		if err = op(); err == nil {
			return nil
		}
		log.Warn().Str("bus", l.Name).Int("attempt", i+1).Err(err).Msg("bus transaction failed")
		if i >= 1 && i < Attempts-1 {
			l.sleep(time.Duration(i) * Backoff)
		}
	}
	return err
}

func (l *Link) fail(err error, fatal bool) error {
	if fatal {
		return fmt.Errorf("%s: %w: %w", l.Name, ErrFatal, err)
	}
	return fmt.Errorf("%s: %w", l.Name, err)
}

func (l *Link) sleep(d time.Duration) {
	if l.Sleep == nil {
		time.Sleep(d)
		return
	}
	l.Sleep(d)
}
