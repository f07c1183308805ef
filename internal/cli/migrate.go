package cli

import (
	"context"
	"fmt"
	"time"

	"planforge/internal/infra"
)

type MigrateCmd struct {
	Store string `help:"Store driver (sqlite or postgres); defaults to STORE_DRIVER."`
}

func (c *MigrateCmd) Run(ctx *Context) error {
	cfg, err := ctx.withStore(c.Store)
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	switch cfg.StoreDriver {
	case infra.StorePostgres:
		n, err := infra.MigratePostgres(runCtx, cfg.DatabaseURL, ctx.Logger)
		if err != nil {
			return err
		}
		fmt.Fprintf(ctx.Out, "postgres: %d migration(s) applied\n", n)
	case infra.StoreSQLite:
		db, err := infra.OpenSQLite(runCtx, cfg.SQLitePath, ctx.Logger)
		if err != nil {
			return err
		}
		defer func() {
			_ = db.Close()
		}()
		fmt.Fprintf(ctx.Out, "sqlite: %s is up to date\n", cfg.SQLitePath)
	default:
		return fmt.Errorf("store %q has no migrations", cfg.StoreDriver)
	}
	return nil
}
