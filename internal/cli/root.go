// Package cli implements the plannerctl commands.
package cli

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"planforge/internal/infra"
)

// Context is passed to every command's Run method.
type Context struct {
	Config *infra.Config
	Logger zerolog.Logger
	Out    io.Writer
	Err    io.Writer
}

func (c *Context) printJSON(v any) error {
	enc := json.NewEncoder(c.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withStore returns a validated copy of the config using driver when it is set.
func (c *Context) withStore(driver string) (*infra.Config, error) {
	cfg := *c.Config
	if d := strings.ToLower(strings.TrimSpace(driver)); d != "" {
		cfg.StoreDriver = d
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
