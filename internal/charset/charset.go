// Package charset reduces arbitrary Unicode text to what the transmitter
// chips can put on air.
//
// Both chip families are fed single bytes per character and most receivers
// only render the printable ASCII subset of the RDS basic character set
// faithfully, so everything is folded down to that.
package charset

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// letters NFKD does not decompose
var ligatures = strings.NewReplacer(
	"ß", "ss",
	"Æ", "AE", "æ", "ae",
	"Œ", "OE", "œ", "oe",
	"Ø", "O", "ø", "o",
	"Đ", "D", "đ", "d",
	"Ł", "L", "ł", "l",
	"Þ", "Th", "þ", "th",
	"‘", "'", "’", "'",
	"“", "\"", "”", "\"",
	"–", "-", "—", "-",
	"…", "...",
)

func printable(r rune) bool {
	return r >= 0x20 && r <= 0x7e
}

func folder() transform.Transformer {
	return transform.Chain(
		norm.NFKD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.Predicate(func(r rune) bool { return !printable(r) })),
	)
}

// Fold decomposes s and reduces it to printable ASCII. Characters without a
// reasonable ASCII form are dropped, so the result may be shorter than s.
func Fold(s string) string {
	if isASCII(s) {
		return s
	}
	out, _, err := transform.String(folder(), ligatures.Replace(s))
	if err != nil {
		return ""
	}
	return out
}

// Bytes converts s to chip bytes, exactly one byte per rune. ASCII (control
// characters included, the RadioText terminator must survive) passes through;
// anything else becomes the first byte of its folded form, or '?'.
func Bytes(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r < 0x80 {
			out = append(out, byte(r))
			continue
		}
		if f := Fold(string(r)); f != "" {
			out = append(out, f[0])
		} else {
			out = append(out, '?')
		}
	}
	return out
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if !printable(rune(s[i])) {
			return false
		}
	}
	return true
}
