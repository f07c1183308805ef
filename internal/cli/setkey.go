package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"planforge/internal/infra"
	"planforge/internal/infra/credentials"
)

// SetKeyCmd stores a provider API key in the integration_tokens table.
type SetKeyCmd struct {
	Provider string `arg:"" help:"Provider to configure." enum:"gemini,openai" default:"gemini"`
	Key      string `help:"API key; falls back to GEMINI_API_KEY or OPENAI_API_KEY."`
}

func (c *SetKeyCmd) Run(ctx *Context) error {
	key := strings.TrimSpace(c.Key)
	if key == "" {
		switch c.Provider {
		case credentials.ProviderOpenAI:
			key = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		default:
			key = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
		}
	}
	if key == "" {
		return fmt.Errorf("%s API key is required via --key or environment", strings.ToUpper(c.Provider))
	}
	if ctx.Config.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	runCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := infra.NewDBPool(runCtx, ctx.Config)
	if err != nil {
		return err
	}
	defer pool.Close()

	logger := ctx.Logger.With().Str("cmd", "set-key").Str("provider", c.Provider).Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))
	if err := store.SetToken(runCtx, c.Provider, key); err != nil {
		return err
	}
	logger.Info().Msg("api key stored")
	fmt.Fprintf(ctx.Out, "%s api key stored\n", c.Provider)
	return nil
}
