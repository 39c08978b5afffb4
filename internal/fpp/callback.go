// Package fpp turns Falcon Player (fppd) plugin callbacks into engine command
// lines, and asks the FPP API about playlists.
package fpp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Callbacks is the answer to --list: the event types this plugin wants.
const Callbacks = "media,playlist"

// text accepts a JSON string or number, fppd sends track and length as either.
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = text(s)
		return nil
	}
	if _, err := strconv.ParseFloat(string(b), 64); err != nil {
		return fmt.Errorf("not a string or number: %s", b)
	}
	*t = text(b)
	return nil
}

type Media struct {
	Type   *string `json:"type"`
	Title  *text   `json:"title"`
	Artist *text   `json:"artist"`
	Album  *text   `json:"album"`
	Genre  *text   `json:"genre"`
	Track  *text   `json:"track"`
	Length *text   `json:"length"`
}

type Playlist struct {
	Action  *string `json:"Action"`
	Section string  `json:"Section"`
	Name    string  `json:"name"`
}

func or(t *text, def string) string {
	if t == nil {
		return def
	}
	return string(*t)
}

// count is a track number or length, "" when fppd sends none or zero.
func count(t *text) string {
	v := strings.TrimSpace(or(t, ""))
	if f, err := strconv.ParseFloat(v, 64); err == nil && f == 0 {
		return ""
	}
	return v
}

// MediaLines translates a media event. Length always goes last.
func MediaLines(data []byte) ([]string, error) {
	var m Media
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("media json: %w", err)
	}
	kind := "pause"
	if m.Type != nil {
		kind = *m.Type
	}
	log.Debug().Str("type", kind).Str("title", or(m.Title, "")).Str("artist", or(m.Artist, "")).
		Str("track", count(m.Track)).Str("length", count(m.Length)).Msg("media")

	var lines []string
	switch kind {
	case "pause", "event":
		// no track playing
		lines = append(lines, "T", "A")
	default:
		lines = append(lines, "T"+or(m.Title, ""), "A"+or(m.Artist, ""))
	}
	if m.Album != nil {
		lines = append(lines, "B"+string(*m.Album))
	}
	if m.Genre != nil {
		lines = append(lines, "G"+string(*m.Genre))
	}
	lines = append(lines, "N"+count(m.Track), "L"+count(m.Length))
	return lines, nil
}

// PlaylistLines translates a playlist event. A missing action means stop.
func PlaylistLines(data []byte) ([]string, error) {
	var p Playlist
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("playlist json: %w", err)
	}
	action := "stop"
	if p.Action != nil {
		action = *p.Action
	}
	log.Info().Str("action", action).Str("section", p.Section).Str("name", p.Name).Msg("playlist")

	var lines []string
	switch action {
	case "start":
		lines = append(lines, "START")
	case "stop":
		lines = append(lines, "STOP")
	}
	if p.Section == "MainPlaylist" {
		lines = append(lines, "MAINLIST"+p.Name)
	}
	return lines, nil
}
