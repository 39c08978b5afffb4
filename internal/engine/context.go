package engine

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/bartgrantham/dynrds/internal/config"
	"github.com/bartgrantham/dynrds/internal/values"
)

// Context is the mutable state shared by the dispatcher and the renderer.
// Config is only replaced by Reload, which the engine calls on INIT, RESET
// and UPDATE.
type Context struct {
	Path   string
	Config *config.Config
	Values *values.Store
}

func NewContext(path string, cfg *config.Config) *Context {
	return &Context{Path: path, Config: cfg, Values: values.New()}
}

// Reload re-reads Path. An invalid file leaves the current config in place.
// Holders of Config see the new values, the pointer doesn't change.
func (c *Context) Reload() error {
	if c.Path == "" {
		return nil
	}
	cfg, err := config.Load(c.Path)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config %s: %w", c.Path, err)
	}
	*c.Config = *cfg
	log.Debug().Str("path", c.Path).Msg("config reloaded")
	return nil
}
