package cli

import (
	"context"
	"time"

	"planforge/internal/bootstrap"
)

type ShowCmd struct {
	ID    string `arg:"" help:"Plan id."`
	Store string `help:"Store driver (sqlite or postgres); defaults to STORE_DRIVER."`
}

func (c *ShowCmd) Run(ctx *Context) error {
	runCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cfg, err := ctx.withStore(c.Store)
	if err != nil {
		return err
	}
	stores, err := bootstrap.OpenStores(runCtx, cfg, ctx.Logger)
	if err != nil {
		return err
	}
	defer stores.Close()
	plan, err := stores.Plans.GetByID(runCtx, c.ID)
	if err != nil {
		return err
	}
	return ctx.printJSON(plan)
}
