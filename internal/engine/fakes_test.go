package engine

import (
	"context"
	"errors"
	"time"

	"github.com/bartgrantham/dynrds/internal/config"
	"github.com/bartgrantham/dynrds/internal/i2cbus"
	"github.com/bartgrantham/dynrds/internal/rds"
	"github.com/bartgrantham/dynrds/internal/status"
	"github.com/bartgrantham/dynrds/internal/transmitter"
)

type fakeTx struct {
	name   string
	active bool
	calls  []string
	ps, rt string
	sends  int

	startErr error
	sendErr  error
	onSend   func()

	psBuf, rtBuf *rds.Buffer
}

func newFakeTx(name string) *fakeTx {
	return &fakeTx{
		name:  name,
		psBuf: rds.NewPS(2, time.Second),
		rtBuf: rds.NewRT(32, time.Second),
	}
}

func (f *fakeTx) Name() string { return f.name }
func (f *fakeTx) Active() bool { return f.active }

func (f *fakeTx) Startup() error {
	f.calls = append(f.calls, "startup")
	if f.startErr != nil {
		return f.startErr
	}
	f.active = true
	return nil
}

func (f *fakeTx) Shutdown() error {
	f.calls = append(f.calls, "shutdown")
	f.active = false
	return nil
}

func (f *fakeTx) Reset() error {
	f.calls = append(f.calls, "reset")
	return nil
}

func (f *fakeTx) Update() error {
	f.calls = append(f.calls, "update")
	return nil
}

func (f *fakeTx) Status() (map[string]int, error) {
	f.calls = append(f.calls, "status")
	return map[string]int{"audio_peak": 3}, nil
}

func (f *fakeTx) UpdateText(ps, rt string) error {
	f.calls = append(f.calls, "text")
	f.ps, f.rt = ps, rt
	f.psBuf.SetData(ps)
	f.rtBuf.SetData(rt)
	return nil
}

func (f *fakeTx) SendNextGroup() error {
	f.sends++
	if f.onSend != nil {
		f.onSend()
	}
	return f.sendErr
}

func (f *fakeTx) Buffers() (ps, rt *rds.Buffer) { return f.psBuf, f.rtBuf }
func (f *fakeTx) Recent() [][]byte              { return [][]byte{{0x81, 0x9b, 0x08, 0x40, 0x81, 0x9b, 'D', 'Y'}} }

func (f *fakeTx) count(call string) int {
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

// fakeFactory hands out a new fakeTx per build, named after the config.
type fakeFactory struct {
	built     []*fakeTx
	err       error
	configure func(*fakeTx)
}

func (ff *fakeFactory) build(cfg *config.Config) (transmitter.Transmitter, error) {
	if ff.err != nil {
		return nil, ff.err
	}
	if cfg.Transmitter == config.TransmitterNone {
		return nil, nil
	}
	tx := newFakeTx(cfg.Transmitter)
	if ff.configure != nil {
		ff.configure(tx)
	}
	ff.built = append(ff.built, tx)
	return tx, nil
}

func (ff *fakeFactory) last() *fakeTx {
	if len(ff.built) == 0 {
		return nil
	}
	return ff.built[len(ff.built)-1]
}

type fakePlaylists struct {
	n     int
	asked []string
}

func (p *fakePlaylists) PlaylistLength(_ context.Context, name string) (int, error) {
	p.asked = append(p.asked, name)
	if p.n < 0 {
		return 0, errors.New("no such playlist")
	}
	return p.n, nil
}

type memPublisher struct {
	snaps []status.Snapshot
}

func (m *memPublisher) Publish(s status.Snapshot) error {
	m.snaps = append(m.snaps, s)
	return nil
}

func (m *memPublisher) last() status.Snapshot {
	return m.snaps[len(m.snaps)-1]
}

var errBus = errors.Join(i2cbus.ErrFatal, errors.New("nack"))

func testEngine(kind string) (*Engine, *fakeFactory, *memPublisher) {
	cfg := config.Defaults()
	cfg.Transmitter = kind
	cfg.PS.Style = "{T}|{A}"
	cfg.RT.Style = "{T}[ by {A}]"
	ff := &fakeFactory{}
	pub := &memPublisher{}
	e := New(NewContext("", cfg), ff.build)
	e.Publisher = pub
	e.Playlists = &fakePlaylists{n: 12}
	e.Now = func() time.Time { return time.Unix(1700000000, 0) }
	return e, ff, pub
}
