// Package monitor is a terminal view of what the engine is putting on air.
// It reads the status snapshot and decodes the recent wire groups the way a
// receiver would.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/gdamore/tcell"
	"github.com/rs/zerolog/log"

	"github.com/bartgrantham/dynrds/internal/rds"
	"github.com/bartgrantham/dynrds/internal/status"
)

type Monitor struct {
	Path      string
	Frequency float64
	RBDS      bool
	Interval  time.Duration

	// Big renders the frequency and Medium the PS. Either may be nil.
	Big    *FIGfont
	Medium *FIGfont
}

// View is one screenful, decoded from a snapshot.
type View struct {
	Frequency   string
	ProgramType string
	CallSign    string
	PS          string
	RT          string
	State       string
	Chip        string
	Values      string
}

// Decode replays the snapshot's groups through a receiver.
func Decode(s status.Snapshot) *rds.Decoder {
	var r rds.Decoder
	groups := status.DecodeGroups(s.Groups)
	// the decoder commits text only after seeing it repeat
	for pass := 0; pass < 3; pass++ {
		for _, g := range groups {
			r.DecodeQN8066(g)
		}
	}
	return &r
}

func (m *Monitor) View(s status.Snapshot, err error) View {
	v := View{Frequency: fmt.Sprintf("%.1f", m.Frequency)}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			v.State = "waiting for the engine"
		} else {
			v.State = err.Error()
		}
		return v
	}

	r := Decode(s)
	v.PS = strings.TrimRight(r.ProgramService, "\x00")
	v.RT = strings.TrimRight(r.Radiotext, "\x00")
	if r.Groups > 0 {
		v.ProgramType = rds.ProgramTypeName(r.ProgramType, m.RBDS)
		if m.RBDS {
			v.CallSign = strings.TrimRight(string(r.CallSign[:]), "\x00")
		}
	}
	if v.PS == "" {
		v.PS = s.PS
	}
	if v.RT == "" {
		v.RT = s.RT
	}

	onAir := "off air"
	if s.Active {
		onAir = "on air"
	}
	v.State = fmt.Sprintf("%s %s  (%s)", s.Transmitter, onAir, s.Time.Format(time.TimeOnly))
	v.Chip = pairs(s.Chip)
	v.Values = pairs(s.Values)
	return v
}

func pairs[V any](m map[string]V) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		if b.Len() > 0 {
			b.WriteString("  ")
		}
		fmt.Fprintf(&b, "%s=%v", k, m[k])
	}
	return b.String()
}

func render(f *FIGfont, s string) []string {
	if f == nil {
		return []string{s}
	}
	return f.Render(s)
}

func (m *Monitor) draw(scr tcell.Screen, v View) {
	black := tcell.Color(int32(232))
	white := tcell.Color(int32(255))
	freqStyle := tcell.StyleDefault.Foreground(white).Background(black).Bold(true)
	style := tcell.StyleDefault

	scr.Clear()
	y := DrawCentered(scr, 1, freqStyle, render(m.Big, v.Frequency))
	y = DrawCentered(scr, y+1, style, render(m.Medium, v.PS))
	y = DrawCentered(scr, y+1, style, []string{strings.TrimSpace(v.CallSign + "  " + v.ProgramType)})
	y = DrawCentered(scr, y+1, style, []string{"- - - = = =  " + v.RT + "  = = = - - -"})
	y = DrawCentered(scr, y+1, style, []string{"(" + v.PS + ")"})
	y = DrawCentered(scr, y+2, style, []string{v.State})
	y = DrawCentered(scr, y, style, []string{v.Chip})
	DrawCentered(scr, y, style, []string{v.Values})
	scr.Show()
}

// Run draws until ctx is done or the user quits with Ctrl-C, Esc or q.
func (m *Monitor) Run(ctx context.Context, scr tcell.Screen) error {
	if err := scr.Init(); err != nil {
		return fmt.Errorf("couldn't init screen: %w", err)
	}
	defer scr.Fini()

	every := m.Interval
	if every <= 0 {
		every = time.Second
	}
	tick := time.NewTicker(every)
	defer tick.Stop()

	event := make(chan tcell.Event, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			e := scr.PollEvent()
			if e == nil {
				return
			}
			select {
			case event <- e:
			case <-done:
				return
			}
		}
	}()

	refresh := func() {
		s, err := status.Read(m.Path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Debug().Err(err).Msg("reading status")
		}
		m.draw(scr, m.View(s, err))
	}
	refresh()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			refresh()
		case e := <-event:
			switch e := e.(type) {
			case *tcell.EventKey:
				if e.Key() == tcell.KeyCtrlC || e.Key() == tcell.KeyEscape || e.Rune() == 'q' {
					return nil
				}
			case *tcell.EventResize:
				scr.Sync()
				refresh()
			}
		}
	}
}
