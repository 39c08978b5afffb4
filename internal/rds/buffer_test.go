package rds

import (
	"reflect"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func newClock() *fakeClock { return &fakeClock{t: time.Unix(1700000000, 0)} }

func (c *fakeClock) now() time.Time      { return c.t }
func (c *fakeClock) add(d time.Duration) { c.t = c.t.Add(d) }

func withClock(b *Buffer, c *fakeClock) *Buffer {
	b.Now = c.now
	return b
}

func TestPSPadding(t *testing.T) {
	b := NewPS(2, 4*time.Second)
	b.SetData("HELLO")
	if got := b.Fragments(); !reflect.DeepEqual(got, []string{"HELLO   "}) {
		t.Fatalf("fragments = %q", got)
	}
	b.SetData("1234567890")
	if got := b.Fragments(); !reflect.DeepEqual(got, []string{"12345678", "90      "}) {
		t.Fatalf("fragments = %q", got)
	}
}

func TestRTTerminator(t *testing.T) {
	b := NewRT(8, 7*time.Second)
	b.SetData("HELLO")
	if got := b.Fragments(); !reflect.DeepEqual(got, []string{"HELLO\r"}) {
		t.Fatalf("fragments = %q", got)
	}
	// exact multiple: no terminator
	b.SetData("ABCDEFGH")
	if got := b.Fragments(); !reflect.DeepEqual(got, []string{"ABCDEFGH"}) {
		t.Fatalf("fragments = %q", got)
	}
}

func TestEmptyData(t *testing.T) {
	ps := NewPS(2, time.Second)
	if got := ps.Fragments(); !reflect.DeepEqual(got, []string{"        "}) {
		t.Fatalf("ps fragments = %q", got)
	}
	rt := NewRT(32, time.Second)
	if got := rt.Fragments(); !reflect.DeepEqual(got, []string{"\r"}) {
		t.Fatalf("rt fragments = %q", got)
	}
	idx, data := rt.NextGroup()
	if idx != 0 || string(data) != "\r   " {
		t.Fatalf("group %d %q", idx, data)
	}
	if _, g := rt.Current(); g != 0 {
		t.Fatalf("short fragment must wrap to group 0, got %d", g)
	}
}

func TestPSGroupCycling(t *testing.T) {
	b := NewPS(2, time.Hour)
	b.SetData("ABCDEFGH")
	want := []string{"AB", "CD", "EF", "GH", "AB"}
	for i, w := range want {
		idx, data := b.NextGroup()
		if idx != i%4 || string(data) != w {
			t.Fatalf("call %d: got (%d, %q), want (%d, %q)", i, idx, data, i%4, w)
		}
	}
}

func TestRTGroupsPadAndWrap(t *testing.T) {
	b := NewRT(32, time.Hour)
	b.SetData("HELLO WORLD")
	want := []string{"HELL", "O WO", "RLD\r"}
	for i, w := range want {
		idx, data := b.NextGroup()
		if idx != i || string(data) != w {
			t.Fatalf("call %d: got (%d, %q)", i, idx, data)
		}
	}
	if idx, _ := b.NextGroup(); idx != 0 {
		t.Fatalf("expected wrap to 0, got %d", idx)
	}

	b.SetData("HELLO")
	b.NextGroup()
	if _, data := b.NextGroup(); string(data) != "O\r  " {
		t.Fatalf("padding: %q", data)
	}
}

func TestAdvanceOnlyAtGroupZero(t *testing.T) {
	c := newClock()
	b := withClock(NewPS(2, 4*time.Second), c)
	b.SetData("AAAAAAAABBBBBBBB")

	b.NextGroup() // group 1 is next
	c.add(5 * time.Second)
	if b.AdvanceIfDue() {
		t.Fatalf("rotated mid fragment")
	}
	b.NextGroup()
	b.NextGroup()
	b.NextGroup() // back at group 0
	if !b.AdvanceIfDue() {
		t.Fatalf("expected rotation at group 0")
	}
	if f, g := b.Current(); f != 1 || g != 0 {
		t.Fatalf("current = %d/%d", f, g)
	}
	if string(b.Fragment()) != "BBBBBBBB" {
		t.Fatalf("fragment = %q", b.Fragment())
	}
	if b.AdvanceIfDue() {
		t.Fatalf("timer must reset after rotation")
	}
	c.add(4 * time.Second)
	if !b.AdvanceIfDue() {
		t.Fatalf("expected rotation after delay")
	}
	if f, _ := b.Current(); f != 0 {
		t.Fatalf("expected wrap to fragment 0, got %d", f)
	}
}

func TestABFlipsOncePerRotation(t *testing.T) {
	c := newClock()
	b := withClock(NewRT(8, 7*time.Second), c)
	b.SetData("ABCDEFGHIJKL")
	ab := b.AB()
	for i := 0; i < 10; i++ {
		b.AdvanceIfDue()
		b.NextGroup()
		if b.AB() != ab {
			t.Fatalf("A/B changed between groups")
		}
	}
	for b.group != 0 {
		b.NextGroup()
	}
	c.add(7 * time.Second)
	if !b.AdvanceIfDue() {
		t.Fatalf("expected rotation")
	}
	if b.AB() == ab {
		t.Fatalf("A/B did not flip on rotation")
	}
}

func TestSetDataIdempotent(t *testing.T) {
	c := newClock()
	b := withClock(NewRT(32, time.Second), c)
	b.SetData("Some radiotext that spans more than one fragment")
	first := b.Fragments()
	b.NextGroup()
	c.add(2 * time.Second)
	b.SetData("Some radiotext that spans more than one fragment")
	if !reflect.DeepEqual(first, b.Fragments()) {
		t.Fatalf("fragments differ")
	}
	if f, g := b.Current(); f != 0 || g != 0 {
		t.Fatalf("counters not reset: %d/%d", f, g)
	}
	if b.AdvanceIfDue() {
		t.Fatalf("timer not reset")
	}
}

func TestRTSizeClamp(t *testing.T) {
	if b := NewRT(30, time.Second); b.FragmentSize != 28 {
		t.Fatalf("size %d", b.FragmentSize)
	}
	if b := NewRT(128, time.Second); b.FragmentSize != RTMaxFragmentSize {
		t.Fatalf("size %d", b.FragmentSize)
	}
}
