package transmitter

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/gpio"

	"github.com/bartgrantham/dynrds/internal/config"
	"github.com/bartgrantham/dynrds/internal/i2cbus"
)

// fakeQN is a QN8066 register file. When ack is set it flips the RDS sent
// bit every time the send toggle changes, like a chip that keeps up.
type fakeQN struct {
	regs   [256]byte
	writes [][]byte
	ack    bool
	fail   map[byte]error
	opened int
	closed int
}

func newFakeQN() *fakeQN {
	f := &fakeQN{ack: true}
	f.regs[qnCID2] = qnChipID << 2
	return f
}

func (f *fakeQN) Tx(w, r []byte) error {
	if len(w) == 0 {
		return nil
	}
	reg := w[0]
	if r == nil {
		if err := f.fail[reg]; err != nil {
			return err
		}
		f.writes = append(f.writes, append([]byte(nil), w...))
		if reg == qnSystem2 && len(w) == 2 && f.ack && (w[1]^f.regs[qnSystem2])&0b10 != 0 {
			f.regs[qnStatus1] ^= 1 << qnRDSSentBit
		}
		copy(f.regs[reg:], w[1:])
		return nil
	}
	copy(r, f.regs[reg:])
	return nil
}

func (f *fakeQN) opener() i2cbus.Opener {
	return func() (i2cbus.Conn, func() error, error) {
		f.opened++
		return f, func() error { f.closed++; return nil }, nil
	}
}

// groups returns the payloads written to the RDS data registers.
func (f *fakeQN) groups() [][]byte {
	var out [][]byte
	for _, w := range f.writes {
		if w[0] == qnRDSData {
			out = append(out, w[1:])
		}
	}
	return out
}

// fakeSi answers reads with the response of the last command written.
type fakeSi struct {
	writes     [][]byte
	last       byte
	status     byte
	rev        []byte
	rdsBuff    []byte
	tuneStatus []byte
	stuck      byte // command that never raises CTS
	opened     int
	closed     int
}

func newFakeSi() *fakeSi {
	return &fakeSi{
		status:     siStatusCTS,
		rev:        []byte{siStatusCTS, 13, 3, 0, 0, 0, 0, 0, 2},
		rdsBuff:    []byte{siStatusCTS, 0, 48, 0, 16, 0},
		tuneStatus: []byte{siStatusCTS, 0, 0x27, 0x1a, 0, 115, 4, 30},
	}
}

func (f *fakeSi) Tx(w, r []byte) error {
	if r == nil {
		f.writes = append(f.writes, append([]byte(nil), w...))
		f.last = w[0]
		return nil
	}
	resp := []byte{f.status}
	if f.stuck != 0 && f.last == f.stuck {
		resp = []byte{0}
	}
	switch f.last {
	case siGetRev:
		resp = f.rev
	case siRDSBuff:
		resp = f.rdsBuff
	case siTuneStatus:
		resp = f.tuneStatus
	}
	copy(r, resp)
	return nil
}

func (f *fakeSi) opener() i2cbus.Opener {
	return func() (i2cbus.Conn, func() error, error) {
		f.opened++
		return f, func() error { f.closed++; return nil }, nil
	}
}

// commands returns the writes that start with prefix
func (f *fakeSi) commands(prefix ...byte) [][]byte {
	var out [][]byte
	for _, w := range f.writes {
		if bytes.HasPrefix(w, prefix) {
			out = append(out, w)
		}
	}
	return out
}

type fakePin struct {
	levels []gpio.Level
}

func (p *fakePin) Out(l gpio.Level) error {
	p.levels = append(p.levels, l)
	return nil
}

type fakeAmp struct {
	active bool
	duty   time.Duration
	starts int
	stops  int
}

func (a *fakeAmp) Start(d time.Duration) error {
	a.active, a.duty = true, d
	a.starts++
	return nil
}

func (a *fakeAmp) Update(d time.Duration) error {
	a.duty = d
	return nil
}

func (a *fakeAmp) Stop() error {
	a.active = false
	a.stops++
	return nil
}

func (a *fakeAmp) Active() bool { return a.active }

type fakeClock struct {
	t      time.Time
	sleeps []time.Duration
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 12, 24, 18, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
}

func (c *fakeClock) count(d time.Duration) int {
	n := 0
	for _, s := range c.sleeps {
		if s == d {
			n++
		}
	}
	return n
}

// captureLog sends the global logger to a buffer for the rest of the test.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	saved := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = saved })
	return &buf
}

// warned reports whether buf holds a warn level line with msg.
func warned(buf *bytes.Buffer, msg string) bool {
	for _, line := range bytes.Split(buf.Bytes(), []byte("\n")) {
		if bytes.Contains(line, []byte(`"level":"warn"`)) && bytes.Contains(line, []byte(`"message":"`+msg+`"`)) {
			return true
		}
	}
	return false
}

func testConfig(kind string) *config.Config {
	cfg := config.Defaults()
	cfg.Transmitter = kind
	return cfg
}
