// Package style renders the PS and RT display strings from a style template.
//
// Template syntax:
//
//	\X     literal X
//	{X}    value of field X, folded to the RDS character set
//	[ ]    conditional region, dropped entirely when a field inside is empty
//	|      pad with spaces up to the next multiple of the chunk size
//
// Regions do not nest. Only the most recent '[' is tracked. A region whose
// placeholder is empty and that has no closing ']' ends rendering there. A
// ']' with no open region is copied as is.
package style

import (
	"strings"
	"unicode/utf8"

	"github.com/bartgrantham/dynrds/internal/charset"
)

// Values is the read side of the value store.
type Values interface {
	Get(key byte) string
}

// Render builds a display string from tmpl. chunkSize is the fragment width
// of the display the string is destined for (8 for PS, the RT size for RT).
func Render(tmpl string, v Values, chunkSize int) string {
	t := []rune(tmpl)
	var out strings.Builder
	n := 0         // runes emitted so far
	rollback := -1 // output length at the last '[', -1 when no region is open
	rollbackBytes := 0

	emit := func(s string) {
		out.WriteString(s)
		n += utf8.RuneCountInString(s)
	}

	for i := 0; i < len(t); {
		c := t[i]
		switch {
		case c == '\\':
			if i+1 < len(t) {
				emit(string(t[i+1]))
			}
			i += 2

		case c == '{' && i+2 < len(t) && t[i+2] == '}':
			val := lookup(v, t[i+1])
			if rollback >= 0 && val == "" {
				// drop the whole region, including literals already emitted
				s := out.String()[:rollbackBytes]
				out.Reset()
				out.WriteString(s)
				n = rollback
				rollback = -1
				end := indexRune(t, ']', i+2)
				if end < 0 {
					return out.String()
				}
				i = end + 1
				continue
			}
			emit(val)
			i += 3

		case c == '[':
			rollback = n
			rollbackBytes = out.Len()
			i++

		case c == ']' && rollback >= 0:
			rollback = -1
			i++

		case c == '|':
			if chunkSize > 0 && n%chunkSize != 0 {
				emit(strings.Repeat(" ", chunkSize-n%chunkSize))
			}
			i++

		default:
			emit(string(c))
			i++
		}
	}
	return out.String()
}

func lookup(v Values, key rune) string {
	if v == nil || key >= utf8.RuneSelf {
		return ""
	}
	return charset.Fold(v.Get(byte(key)))
}

func indexRune(t []rune, r rune, from int) int {
	for j := from; j < len(t); j++ {
		if t[j] == r {
			return j
		}
	}
	return -1
}
