package rds

/*
A Buffer holds one display string (PS or RT) and walks it out group by group.

* Data     : the whole rendered string, replaced on every track change
* Fragment : one screenful, 8 chars for PS, 32 (up to 64) for RT
* Group    : one RDS group worth of characters, 2 or 4

Fragments rotate on a timer, but only when the next group to go out is group
0, so a receiver always gets a complete fragment before it changes.
*/

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bartgrantham/dynrds/internal/charset"
)

type Kind int

const (
	PS Kind = iota
	RT
)

func (k Kind) String() string {
	if k == RT {
		return "RT"
	}
	return "PS"
}

const (
	PSFragmentSize    = 8
	RTGroupSize       = 4
	RTMaxFragmentSize = 64 // 16 groups, the 4 bit segment address in 2A

	// EndOfText marks the end of a RadioText message (carriage return).
	EndOfText = 0x0d
)

type Buffer struct {
	Kind         Kind
	FragmentSize int
	GroupSize    int
	Delay        time.Duration
	Now          func() time.Time

	fragments [][]byte
	current   int
	group     int
	last      time.Time
	ab        bool
}

// NewPS returns a Program Service buffer. groupSize is 2 on the QN8066 (0B
// groups carry 2 characters) and 4 on the Si4713 (4 character PS slots).
func NewPS(groupSize int, delay time.Duration) *Buffer {
	if groupSize <= 0 || PSFragmentSize%groupSize != 0 {
		groupSize = 2
	}
	b := &Buffer{Kind: PS, FragmentSize: PSFragmentSize, GroupSize: groupSize, Delay: delay, Now: time.Now}
	b.SetData("")
	return b
}

// NewRT returns a RadioText buffer. The fragment size is kept a multiple of
// the group size and within what a 2A segment address can reach.
func NewRT(fragmentSize int, delay time.Duration) *Buffer {
	fragmentSize -= fragmentSize % RTGroupSize
	if fragmentSize <= 0 {
		fragmentSize = 32
	}
	if fragmentSize > RTMaxFragmentSize {
		fragmentSize = RTMaxFragmentSize
	}
	b := &Buffer{Kind: RT, FragmentSize: fragmentSize, GroupSize: RTGroupSize, Delay: delay, Now: time.Now}
	b.SetData("")
	return b
}

// SetData replaces the contents and resets fragment, group and timer.
func (b *Buffer) SetData(text string) {
	data := charset.Bytes(text)
	b.fragments = b.fragments[:0]
	for i := 0; i < len(data); i += b.FragmentSize {
		end := i + b.FragmentSize
		if end > len(data) {
			end = len(data)
		}
		frag := make([]byte, end-i, b.FragmentSize+1)
		copy(frag, data[i:end])
		b.fragments = append(b.fragments, frag)
	}
	if len(b.fragments) == 0 {
		b.fragments = append(b.fragments, make([]byte, 0, b.FragmentSize+1))
	}

	lastIdx := len(b.fragments) - 1
	last := b.fragments[lastIdx]
	switch b.Kind {
	case PS:
		for len(last) < b.FragmentSize {
			last = append(last, ' ')
		}
	case RT:
		if len(last) < b.FragmentSize {
			last = append(last, EndOfText)
		}
		// new content, let receivers know
		b.ab = !b.ab
	}
	b.fragments[lastIdx] = last

	b.current = 0
	b.group = 0
	b.last = b.now()
}

// AdvanceIfDue moves to the next fragment once Delay has passed, but only
// while the buffer sits at group 0. It reports whether it rotated.
func (b *Buffer) AdvanceIfDue() bool {
	if b.group != 0 || b.now().Sub(b.last) < b.Delay {
		return false
	}
	b.current = (b.current + 1) % len(b.fragments)
	b.last = b.now()
	if b.Kind == RT {
		b.ab = !b.ab
	}
	log.Debug().Str("buffer", b.Kind.String()).Str("fragment", printable(b.fragments[b.current])).Msg("next fragment")
	return true
}

// NextGroup returns the index of the group about to be sent and its
// characters, space padded to GroupSize, then advances to the next group.
func (b *Buffer) NextGroup() (int, []byte) {
	frag := b.fragments[b.current]
	idx := b.group
	out := make([]byte, b.GroupSize)
	for i := range out {
		p := idx*b.GroupSize + i
		if p < len(frag) {
			out[i] = frag[p]
		} else {
			out[i] = ' '
		}
	}
	b.group++
	if b.group*b.GroupSize >= len(frag) {
		b.group = 0
	}
	return idx, out
}

// AB is the RadioText A/B flag.
func (b *Buffer) AB() bool { return b.ab }

// Current returns the fragment and group indexes.
func (b *Buffer) Current() (fragment, group int) { return b.current, b.group }

// Fragment returns the fragment being sent.
func (b *Buffer) Fragment() []byte { return b.fragments[b.current] }

// Fragments returns every fragment as text.
func (b *Buffer) Fragments() []string {
	out := make([]string, len(b.fragments))
	for i, f := range b.fragments {
		out[i] = string(f)
	}
	return out
}

func (b *Buffer) String() string {
	parts := make([]string, len(b.fragments))
	for i, f := range b.fragments {
		parts[i] = "'" + printable(f) + "'"
	}
	return b.Kind.String() + " [" + strings.Join(parts, " ") + "]"
}

func (b *Buffer) now() time.Time {
	if b.Now == nil {
		return time.Now()
	}
	return b.Now()
}

// printable shows the RT terminator so it is visible in logs
func printable(f []byte) string {
	return strings.ReplaceAll(string(f), "\r", "<0d>")
}
