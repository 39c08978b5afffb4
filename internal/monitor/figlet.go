package monitor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// See: figfont.txt

type FIGfont struct {
	Name      string
	Height    int
	hardblank byte
	baseline  int
	maxlen    int
	oldlayout int
	comments  int
	direction int
	layout    int
	codetags  int
	chars     map[rune][]string
}

var ErrInvalidFont = errors.New("invalid FIGfont")
var ErrParse = errors.New("couldn't parse FIGfont")

// the required characters, in file order
var charorder = ` !"#$%&'()*+,-./` + `0123456789:;<=>?` + `@ABCDEFGHIJKLMNO` +
	`PQRSTUVWXYZ[\]^_` + "`abcdefghijklmno" + "pqrstuvwxyz{|}~" +
	"ÄÖÜäöüß"

func (f *FIGfont) String() string {
	return f.Name
}

func NewFIGfont(r io.Reader) (*FIGfont, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrParse
	}

	header := strings.Fields(lines[0])
	if len(header) == 0 || len(header[0]) < 6 || header[0][0:5] != "flf2a" {
		return nil, ErrParse
	}

	var params []int
	for _, s := range header[1:] {
		i, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("%w: header %q: %w", ErrParse, s, err)
		}
		params = append(params, i)
	}
	param := func(n int) int {
		if len(params) > n {
			return params[n]
		}
		return 0
	}

	f := FIGfont{
		hardblank: header[0][5],
		Height:    param(0),
		baseline:  param(1),
		maxlen:    param(2),
		oldlayout: param(3),
		comments:  param(4),
		direction: param(5),
		layout:    param(6),
		codetags:  param(7),
	}
	if f.Height < 1 || f.comments < 0 {
		return nil, ErrInvalidFont
	}
	if f.comments > 0 {
		f.Name = strings.TrimSpace(lines[1])
	}

	f.chars = map[rune][]string{}
	i := 0
	for _, c := range charorder {
		idx := 1 + f.comments + i*f.Height
		i++
		// the German characters are optional
		if idx+f.Height > len(lines) {
			if c > '~' {
				break
			}
			return nil, ErrInvalidFont
		}
		last := lines[idx]
		if last == "" {
			return nil, ErrInvalidFont
		}
		endmark := last[len(last)-1:]
		for j := 0; j < f.Height; j++ {
			f.chars[c] = append(f.chars[c], strings.TrimRight(lines[idx+j], endmark))
		}
	}
	return &f, nil
}

// Render lays the glyphs of s side by side. It does _not_ do FIGlet's
// kerning or smushing. Runes the font lacks are skipped.
func (f *FIGfont) Render(s string) []string {
	out := make([]string, f.Height)
	hardblank := string([]byte{f.hardblank})
	for _, c := range s {
		if c == 0 {
			break
		}
		fig, ok := f.chars[c]
		if !ok {
			continue
		}
		for i := 0; i < f.Height; i++ {
			out[i] += strings.ReplaceAll(fig[i], hardblank, " ")
		}
	}
	for i := range out {
		out[i] = strings.TrimRight(out[i], " ")
	}
	return out
}

// Width is the widest rendered line.
func Width(lines []string) int {
	w := 0
	for _, l := range lines {
		if n := len([]rune(l)); n > w {
			w = n
		}
	}
	return w
}
