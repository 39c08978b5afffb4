package fpp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Client talks to the FPP REST API, normally http://localhost/api.
type Client struct {
	API  string
	HTTP *http.Client
}

func NewClient(api string) *Client {
	return &Client{API: strings.TrimRight(api, "/"), HTTP: &http.Client{Timeout: 5 * time.Second}}
}

// PlaylistLength returns how many entries the main section of the named
// playlist holds.
func (c *Client) PlaylistLength(ctx context.Context, name string) (int, error) {
	u := c.API + "/playlist/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, fmt.Errorf("playlist %q: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("playlist %q: %s", name, resp.Status)
	}

	var pl struct {
		MainPlaylist []json.RawMessage `json:"mainPlaylist"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&pl); err != nil {
		return 0, fmt.Errorf("playlist %q: %w", name, err)
	}
	log.Debug().Str("playlist", name).Int("entries", len(pl.MainPlaylist)).Msg("main playlist length")
	return len(pl.MainPlaylist), nil
}
