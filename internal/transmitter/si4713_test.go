package transmitter

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/bartgrantham/dynrds/internal/config"
	"github.com/bartgrantham/dynrds/internal/i2cbus"
)

func newTestSi(t *testing.T) (*Si4713, *fakeSi, *fakePin, *fakeClock) {
	t.Helper()
	f := newFakeSi()
	p := &fakePin{}
	c := newClock()
	s := NewSi4713(testConfig(config.TransmitterSi4713), f.opener(), p)
	s.Sleep = c.sleep
	s.Now = c.now
	return s, f, p, c
}

func TestSi4713Startup(t *testing.T) {
	s, f, p, _ := newTestSi(t)
	if err := s.Startup(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.Active() {
		t.Fatalf("not active after startup")
	}
	if want := []gpio.Level{gpio.High, gpio.Low, gpio.High}; len(p.levels) != 3 ||
		p.levels[0] != want[0] || p.levels[1] != want[1] || p.levels[2] != want[2] {
		t.Fatalf("reset pulse = %v", p.levels)
	}
	if s.Depth() != 48 || s.RTMax() != 64 {
		t.Fatalf("depth %d, RT max %d", s.Depth(), s.RTMax())
	}

	for _, want := range [][]byte{
		{siPowerUp, 0x12, 0x50},
		{siGetRev},
		{siRDSBuff, 0, 0, 0, 0, 0, 0, 0},
		{siSetProperty, 0, 0x21, 0x00, 0x00, 0x07},
		{siSetProperty, 0, 0x21, 0x06, 0x00, 0x00}, // 75us
		{siSetProperty, 0, 0x2c, 0x02, 0x00, 0x05},
		{siSetProperty, 0, 0x2c, 0x04, 0x00, 0x09},
		{siSetProperty, 0, 0x2c, 0x03, 0x18, 0x48}, // PTY 2
		{siTuneFreq, 0, 0x27, 0x1a},                // 10010
		{siTunePower, 0, 0, 115, 0},
		{siSetProperty, 0, 0x2c, 0x01, 0x81, 0x9b},
	} {
		if len(f.commands(want...)) == 0 {
			t.Errorf("command %x never sent", want)
		}
	}
	if !bytes.Equal(f.writes[0], []byte{siPowerUp, 0x12, 0x50}) {
		t.Fatalf("first command %x is not power up", f.writes[0])
	}
}

func TestSi4713ChipIDMismatch(t *testing.T) {
	s, f, _, _ := newTestSi(t)
	f.rev[1] = 21
	if err := s.Startup(); !errors.Is(err, ErrChipID) {
		t.Fatalf("expected ErrChipID, got %v", err)
	}
	if s.Active() {
		t.Fatalf("active with the wrong chip")
	}
}

func TestSi4713NoCTSIsFatal(t *testing.T) {
	s, f, _, c := newTestSi(t)
	f.status = 0
	err := s.Startup()
	if !errors.Is(err, i2cbus.ErrFatal) || !errors.Is(err, ErrNoCTS) {
		t.Fatalf("expected fatal no CTS, got %v", err)
	}
	if n := c.count(SiCTSPollDelay); n != SiCTSPolls {
		t.Fatalf("polled CTS %d times", n)
	}
}

func TestSi4713TextLayout(t *testing.T) {
	s, f, _, _ := newTestSi(t)
	if err := s.Startup(); err != nil {
		t.Fatal(err)
	}
	f.writes = nil
	s.UpdateText("DYNRDS", "HELLO WORLD")

	ps := f.commands(siRDSPS)
	if len(ps) != 2 ||
		!bytes.Equal(ps[0], []byte{siRDSPS, 0, 'D', 'Y', 'N', 'R'}) ||
		!bytes.Equal(ps[1], []byte{siRDSPS, 1, 'D', 'S', ' ', ' '}) {
		t.Fatalf("PS slots = %q", ps)
	}
	if len(f.commands(siSetProperty, 0, 0x2c, 0x05, 0, 1)) != 1 {
		t.Fatalf("message count not set to 1")
	}
	if len(f.commands(siRDSBuff, 0b10, 0, 0, 0, 0, 0, 0)) != 1 {
		t.Fatalf("circular buffer not emptied")
	}

	segs := f.commands(siRDSBuff, 0b100, 0b100000)
	if len(segs) != 8 {
		t.Fatalf("got %d RT segments, want 8", len(segs))
	}
	if want := []byte{siRDSBuff, 0x04, 0x20, 0x00, 'H', 'E', 'L', 'L'}; !bytes.Equal(segs[0], want) {
		t.Fatalf("segment 0 = %x, want %x", segs[0], want)
	}
	if want := []byte{siRDSBuff, 0x04, 0x20, 0x02, 'R', 'L', 'D', '\r'}; !bytes.Equal(segs[2], want) {
		t.Fatalf("segment 2 = %q, want %q", segs[2], want)
	}
	if want := []byte{siRDSBuff, 0x04, 0x20, 0x07, ' ', ' ', ' ', ' '}; !bytes.Equal(segs[7], want) {
		t.Fatalf("segment 7 = %q, want %q", segs[7], want)
	}
	if len(f.commands(siSetProperty, 0, 0x2c, 0x02, 0, siMixBurst)) != 1 {
		t.Fatalf("no RT burst")
	}
}

func TestSi4713RTSecondMessage(t *testing.T) {
	s, f, _, _ := newTestSi(t)
	s.Startup()
	f.writes = nil
	s.UpdateText("", strings.Repeat("x", 40))

	segs := f.commands(siRDSBuff, 0b100, 0b100000)
	if len(segs) != 16 {
		t.Fatalf("got %d RT segments, want 16", len(segs))
	}
	// A/B flips and the address restarts with the second 32 characters
	if segs[7][3] != 0x07 || segs[8][3] != 0x10 || segs[15][3] != 0x17 {
		t.Fatalf("segment flags %02x %02x %02x", segs[7][3], segs[8][3], segs[15][3])
	}
	if segs[10][4] != '\r' {
		t.Fatalf("terminator missing: %q", segs[10][4:])
	}
}

func TestSi4713RTTruncated(t *testing.T) {
	s, f, _, _ := newTestSi(t)
	f.rdsBuff[2] = 24
	s.Startup()
	if s.RTMax() != 32 {
		t.Fatalf("RT max = %d", s.RTMax())
	}
	f.writes = nil
	s.UpdateText("", strings.Repeat("y", 40))

	segs := f.commands(siRDSBuff, 0b100, 0b100000)
	if len(segs) != 8 {
		t.Fatalf("got %d RT segments, want 8", len(segs))
	}
	for _, seg := range segs {
		if bytes.IndexByte(seg[4:], '\r') >= 0 {
			t.Fatalf("full message should not be terminated")
		}
	}
}

func TestSi4713PSTruncated(t *testing.T) {
	s, f, _, _ := newTestSi(t)
	s.Startup()
	f.writes = nil
	s.UpdateText(strings.Repeat("p", 120), "")

	if n := len(f.commands(siRDSPS)); n != SiPSMax/4 {
		t.Fatalf("got %d PS slots, want %d", n, SiPSMax/4)
	}
	if len(f.commands(siSetProperty, 0, 0x2c, 0x05, 0, 12)) != 1 {
		t.Fatalf("message count not 12")
	}
}

func TestSi4713BurstRestore(t *testing.T) {
	s, f, _, c := newTestSi(t)
	s.Startup()
	s.UpdateText("DYNRDS", "HELLO")
	f.writes = nil

	restore := []byte{siSetProperty, 0, 0x2c, 0x02, 0, siMixNormal}
	s.SendNextGroup() // 250 ms
	s.SendNextGroup() // 500 ms
	if len(f.commands(restore...)) != 0 {
		t.Fatalf("burst ended early")
	}
	c.sleep(time.Second)
	s.SendNextGroup()
	if len(f.commands(restore...)) != 1 {
		t.Fatalf("burst not ended")
	}
	s.SendNextGroup()
	if len(f.commands(restore...)) != 1 {
		t.Fatalf("burst ended twice")
	}
}

func TestSi4713Status(t *testing.T) {
	s, _, _, _ := newTestSi(t)
	s.Startup()
	st, err := s.Status()
	if err != nil {
		t.Fatal(err)
	}
	if st["frequency"] != 10010 || st["power"] != 115 || st["antenna_cap"] != 4 || st["noise"] != 30 {
		t.Fatalf("status = %v", st)
	}
}

func TestSi4713Reset(t *testing.T) {
	s, f, p, _ := newTestSi(t)
	s.Startup()
	if err := s.Reset(); err != nil {
		t.Fatal(err)
	}
	if f.opened != 2 || f.closed != 1 || len(p.levels) != 6 {
		t.Fatalf("opened %d closed %d pulses %d", f.opened, f.closed, len(p.levels))
	}
	if len(f.commands(siPowerDown)) != 1 {
		t.Fatalf("not powered down")
	}
}

func TestSi4713LogsBestEffortCommands(t *testing.T) {
	logs := captureLog(t)
	s, f, _, _ := newTestSi(t)
	f.stuck = siTuneFreq
	if err := s.Startup(); err != nil {
		t.Fatalf("tune failure stopped startup: %v", err)
	}
	if !s.Active() || !warned(logs, "couldn't tune") {
		t.Fatalf("active %v, logs %s", s.Active(), logs)
	}
	if warned(logs, "couldn't set property") {
		t.Fatalf("unexpected property warning in %s", logs)
	}

	f.stuck = siPowerDown
	if err := s.Shutdown(); err != nil || s.Active() {
		t.Fatalf("shutdown: %v, active %v", err, s.Active())
	}
	if !warned(logs, "couldn't power down Si4713") {
		t.Fatalf("no power down warning in %s", logs)
	}

	f.stuck = siSetProperty
	if err := s.Startup(); err != nil {
		t.Fatalf("property failure stopped startup: %v", err)
	}
	if !s.Active() || !warned(logs, "couldn't set property") {
		t.Fatalf("active %v, logs %s", s.Active(), logs)
	}
}
