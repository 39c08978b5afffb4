package monitor

import (
	"github.com/gdamore/tcell"
)

func Clear(scr tcell.Screen, x, y, h, w int, c rune, style tcell.Style) {
	for j := y; j < y+h; j++ {
		for i := x; i < x+w; i++ {
			scr.SetContent(i, j, c, nil, style)
		}
	}
}

func DrawLines(scr tcell.Screen, x, y int, style tcell.Style, lines []string) {
	for j, line := range lines {
		i := 0
		for _, c := range line {
			scr.SetContent(x+i, y+j, c, nil, style)
			i++
		}
	}
}

// DrawCentered draws lines centered on a full width band starting at row y
// and returns the row below them.
func DrawCentered(scr tcell.Screen, y int, style tcell.Style, lines []string) int {
	w, _ := scr.Size()
	Clear(scr, 0, y, len(lines), w, ' ', style)
	x := (w - Width(lines)) / 2
	if x < 0 {
		x = 0
	}
	DrawLines(scr, x, y, style, lines)
	return y + len(lines)
}
