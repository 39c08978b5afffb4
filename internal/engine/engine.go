// Package engine runs the command loop: it applies commands from the FIFO
// and, whenever none is waiting, sends the next RDS group.
package engine

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bartgrantham/dynrds/internal/config"
	"github.com/bartgrantham/dynrds/internal/i2cbus"
	"github.com/bartgrantham/dynrds/internal/rds"
	"github.com/bartgrantham/dynrds/internal/status"
	"github.com/bartgrantham/dynrds/internal/style"
	"github.com/bartgrantham/dynrds/internal/transmitter"
	"github.com/bartgrantham/dynrds/internal/values"
)

// Factory builds the transmitter for cfg. A nil Transmitter means none.
type Factory func(cfg *config.Config) (transmitter.Transmitter, error)

type PlaylistCounter interface {
	PlaylistLength(ctx context.Context, name string) (int, error)
}

type Engine struct {
	Ctx       *Context
	Factory   Factory
	Playlists PlaylistCounter
	Publisher status.Publisher
	Now       func() time.Time

	tx         transmitter.Transmitter
	ps         string
	rt         string
	chip       map[string]int
	lastStatus time.Time
}

func New(ctx *Context, f Factory) *Engine {
	return &Engine{
		Ctx:       ctx,
		Factory:   f,
		Publisher: status.LogPublisher{},
		Now:       time.Now,
	}
}

// Transmitter returns the current encoder, nil when there is none.
func (e *Engine) Transmitter() transmitter.Transmitter { return e.tx }

// Text returns the last rendered PS and RT.
func (e *Engine) Text() (ps, rt string) { return e.ps, e.rt }

func (e *Engine) cfg() *config.Config { return e.Ctx.Config }

// fatal keeps the errors that must end the process and logs the rest.
func fatal(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, i2cbus.ErrFatal) || errors.Is(err, transmitter.ErrChipID) {
		return err
	}
	log.Error().Err(err).Msg(msg)
	return nil
}

// Handle applies one command line. exit is set once EXIT has shut down the
// transmitter. err is only set for conditions the process can't continue
// from.
func (e *Engine) Handle(line string) (exit bool, err error) {
	if line == "" {
		return false, nil
	}
	log.Debug().Str("line", line).Msg("command")

	switch line {
	case "EXIT":
		log.Info().Msg("processing exit")
		e.shutdown()
		return true, nil
	case "INIT":
		log.Info().Msg("processing init")
		e.reload()
		if err := e.build(); err != nil {
			return false, err
		}
		if err := e.render(); err != nil {
			return false, err
		}
		if e.cfg().Start == config.StartFPPD {
			return false, e.startup()
		}
		return false, nil
	case "START":
		log.Info().Msg("processing start")
		if e.cfg().Start == config.StartPlaylist {
			return false, e.startup()
		}
		return false, nil
	case "STOP":
		log.Info().Msg("processing stop")
		e.Ctx.Values.Clear()
		if err := e.render(); err != nil {
			return false, err
		}
		if e.cfg().Stop == config.StopPlaylist {
			e.shutdown()
			log.Info().Msg("radio stopped")
		}
		return false, nil
	case "RESET":
		log.Info().Msg("processing reset")
		return false, e.reset()
	case "UPDATE":
		log.Info().Msg("processing update")
		return false, e.update()
	}

	if name, ok := strings.CutPrefix(line, "MAINLIST"); ok {
		e.mainList(name)
		return false, e.render()
	}

	key, payload := line[0], line[1:]
	if !values.IsKey(key) {
		log.Error().Str("line", line).Msg("unknown command")
		return false, nil
	}
	var changed bool
	if key == values.Length {
		changed = e.Ctx.Values.SetLength(payload)
	} else {
		changed = e.Ctx.Values.Set(key, payload)
	}
	if !changed {
		return false, nil
	}
	return false, e.render()
}

func (e *Engine) reload() {
	if err := e.Ctx.Reload(); err != nil {
		log.Error().Err(err).Msg("keeping current config")
	}
}

// build discards the current transmitter and makes the configured one.
func (e *Engine) build() error {
	e.discard()
	tx, err := e.Factory(e.cfg())
	if err != nil {
		return err
	}
	if tx == nil {
		log.Info().Msg("no transmitter configured")
		return nil
	}
	e.tx = tx
	return nil
}

func (e *Engine) discard() {
	e.shutdown()
	e.tx = nil
	e.chip = nil
}

// changed reports whether the config names a different transmitter.
func (e *Engine) changed() bool {
	name := config.TransmitterNone
	if e.tx != nil {
		name = e.tx.Name()
	}
	return name != e.cfg().Transmitter
}

func (e *Engine) startup() error {
	if e.tx == nil || e.tx.Active() {
		return nil
	}
	if err := fatal(e.tx.Startup(), "transmitter startup"); err != nil {
		return err
	}
	e.lastStatus = e.Now()
	e.publish()
	return nil
}

func (e *Engine) shutdown() {
	if e.tx == nil || !e.tx.Active() {
		return
	}
	if err := e.tx.Shutdown(); err != nil {
		log.Error().Err(err).Msg("transmitter shutdown")
	}
	e.publish()
}

func (e *Engine) reset() error {
	e.reload()
	if e.changed() {
		if err := e.build(); err != nil {
			return err
		}
		if err := e.render(); err != nil {
			return err
		}
		if e.cfg().Start == config.StartFPPD {
			return e.startup()
		}
		return nil
	}
	if err := e.render(); err != nil {
		return err
	}
	if e.tx == nil {
		return nil
	}
	if e.tx.Active() {
		return fatal(e.tx.Reset(), "transmitter reset")
	}
	if e.cfg().Start == config.StartFPPD {
		return e.startup()
	}
	return nil
}

func (e *Engine) update() error {
	e.reload()
	if e.changed() {
		wasActive := e.tx != nil && e.tx.Active()
		if err := e.build(); err != nil {
			return err
		}
		if err := e.render(); err != nil {
			return err
		}
		if wasActive {
			return e.startup()
		}
		return nil
	}
	if e.tx != nil {
		if err := fatal(e.tx.Update(), "transmitter update"); err != nil {
			return err
		}
	}
	return e.render()
}

func (e *Engine) mainList(name string) {
	if e.Playlists == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n, err := e.Playlists.PlaylistLength(ctx, name)
	if err != nil {
		log.Warn().Err(err).Str("playlist", name).Msg("couldn't get playlist length")
		return
	}
	e.Ctx.Values.Set(values.Count, strconv.Itoa(n))
}

// render rebuilds PS and RT from the styles and hands them to the
// transmitter.
func (e *Engine) render() error {
	cfg := e.cfg()
	e.ps = style.Render(cfg.PS.Style, e.Ctx.Values, rds.PSFragmentSize)
	e.rt = style.Render(cfg.RT.Style, e.Ctx.Values, cfg.RT.Size)
	log.Info().Str("ps", e.ps).Str("rt", e.rt).Msg("rendered")
	log.Debug().Str("values", e.Ctx.Values.String()).Msg("from")

	if e.tx != nil {
		if err := fatal(e.tx.UpdateText(e.ps, e.rt), "updating text"); err != nil {
			return err
		}
	}
	e.publish()
	return nil
}

// Snapshot reports what is on air.
func (e *Engine) Snapshot() status.Snapshot {
	s := status.Snapshot{
		Time:        e.Now(),
		Transmitter: config.TransmitterNone,
		PS:          e.ps,
		RT:          e.rt,
		Values:      e.Ctx.Values.Map(),
		Chip:        e.chip,
	}
	if e.tx != nil {
		s.Transmitter = e.tx.Name()
		s.Active = e.tx.Active()
		ps, rt := e.tx.Buffers()
		s.PSFragments = ps.Fragments()
		s.RTFragments = rt.Fragments()
		s.Groups = status.EncodeGroups(e.tx.Recent())
	}
	return s
}

func (e *Engine) publish() {
	if e.Publisher == nil {
		return
	}
	if err := e.Publisher.Publish(e.Snapshot()); err != nil {
		log.Warn().Err(err).Msg("couldn't publish status")
	}
}

// poll reads the chip status every status interval.
func (e *Engine) poll() {
	every := e.cfg().StatusInterval()
	if every <= 0 || e.Now().Sub(e.lastStatus) < every {
		return
	}
	e.lastStatus = e.Now()
	st, err := e.tx.Status()
	if err != nil {
		log.Warn().Err(err).Msg("couldn't read transmitter status")
		return
	}
	e.chip = st
	e.publish()
}

// Run is the command loop. Pending lines always go first; otherwise an
// active transmitter sends its next group, an idle one waits for a line.
// It returns nil after EXIT or when lines is closed.
func (e *Engine) Run(ctx context.Context, lines <-chan string) error {
	handle := func(line string, ok bool) (bool, error) {
		if !ok {
			log.Info().Msg("command channel closed")
			e.shutdown()
			return true, nil
		}
		exit, err := e.Handle(line)
		if err != nil {
			e.shutdown()
		}
		return exit, err
	}

	for {
		if e.tx == nil || !e.tx.Active() {
			select {
			case <-ctx.Done():
				e.shutdown()
				return ctx.Err()
			case line, ok := <-lines:
				if exit, err := handle(line, ok); exit || err != nil {
					return err
				}
			}
			continue
		}

		select {
		case <-ctx.Done():
			e.shutdown()
			return ctx.Err()
		case line, ok := <-lines:
			if exit, err := handle(line, ok); exit || err != nil {
				return err
			}
		default:
			if err := fatal(e.tx.SendNextGroup(), "sending group"); err != nil {
				e.shutdown()
				return err
			}
			e.poll()
		}
	}
}
