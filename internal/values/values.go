// Package values holds the raw track fields that templates are rendered from.
package values

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Field tokens, as used in templates ({T}) and on the command channel (T...).
const (
	Title    byte = 'T'
	Artist   byte = 'A'
	Album    byte = 'B'
	Genre    byte = 'G'
	TrackNum byte = 'N'
	Length   byte = 'L'
	Count    byte = 'C'
	Position byte = 'P'
)

// Keys is the fixed token set. Every key is always present in a Store.
var Keys = []byte{Title, Artist, Album, Genre, TrackNum, Length, Count, Position}

// Store maps field tokens to text. Absence of data is an empty string, never
// a missing key.
type Store struct {
	m map[byte]string
}

func New() *Store {
	s := &Store{m: make(map[byte]string, len(Keys))}
	s.Clear()
	return s
}

// Get returns the value for key, or "" for unknown tokens.
func (s *Store) Get(key byte) string {
	return s.m[key]
}

// Set stores v under key. It reports whether the value changed. Unknown keys
// are ignored.
func (s *Store) Set(key byte, v string) bool {
	old, ok := s.m[key]
	if !ok {
		return false
	}
	s.m[key] = v
	return old != v
}

// SetLength stores a track length given in seconds as minutes:seconds.
// An empty or unparsable payload clears the field.
func (s *Store) SetLength(seconds string) bool {
	return s.Set(Length, FormatLength(seconds))
}

// Clear resets every field to "".
func (s *Store) Clear() {
	for _, k := range Keys {
		s.m[k] = ""
	}
}

// Map returns a copy keyed by the token as a string, for status output.
func (s *Store) Map() map[string]string {
	out := make(map[string]string, len(s.m))
	for k, v := range s.m {
		out[string(k)] = v
	}
	return out
}

func (s *Store) String() string {
	keys := make([]string, 0, len(s.m))
	for k := range s.m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%q", k, s.m[k[0]])
	}
	return b.String()
}

// FormatLength turns "245" (or "245.3") into "4:05".
func FormatLength(seconds string) string {
	seconds = strings.TrimSpace(seconds)
	if seconds == "" {
		return ""
	}
	f, err := strconv.ParseFloat(seconds, 64)
	if err != nil || f < 0 {
		return ""
	}
	n := int(f)
	return fmt.Sprintf("%d:%02d", n/60, n%60)
}

// IsKey reports whether c is one of the field tokens.
func IsKey(c byte) bool {
	for _, k := range Keys {
		if k == c {
			return true
		}
	}
	return false
}
