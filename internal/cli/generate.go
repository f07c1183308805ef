package cli

import (
	"context"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"

	"planforge/internal/bootstrap"
	"planforge/internal/domain"
	"planforge/internal/pipeline"
	"planforge/internal/planning"
)

type GenerateCmd struct {
	Idea           string `help:"Business idea (at least 10 characters)." xor:"source"`
	Document       string `help:"Read the business idea from a text or PDF file." type:"existingfile" xor:"source"`
	Industry       string `help:"Industry." required:""`
	TargetMarket   string `help:"Target market." required:""`
	TimeCommitment string `help:"Weekly time commitment."`
	Budget         string `help:"Available budget."`
	Context        string `help:"Additional context for the plan."`
	Locale         string `help:"Output language (BCP 47)."`
	Store          string `help:"Store driver (memory, sqlite or postgres); defaults to STORE_DRIVER."`
}

func (c *GenerateCmd) Run(ctx *Context) error {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := ctx.withStore(c.Store)
	if err != nil {
		return err
	}
	stores, err := bootstrap.OpenStores(runCtx, cfg, ctx.Logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	gen, err := bootstrap.NewGenerator(runCtx, cfg, stores.Credentials, ctx.Logger)
	if err != nil {
		return err
	}
	svc, err := bootstrap.NewPlanning(cfg, gen, stores.Plans, ctx.Logger)
	if err != nil {
		return err
	}

	info := domain.BusinessInfo{
		BusinessIdea:      c.Idea,
		Industry:          c.Industry,
		TargetMarket:      c.TargetMarket,
		TimeCommitment:    c.TimeCommitment,
		Budget:            c.Budget,
		AdditionalContext: c.Context,
		Locale:            c.Locale,
	}
	if c.Document != "" {
		if info, err = documentInfo(runCtx, svc, c.Document, info); err != nil {
			return err
		}
	}

	result, err := svc.Generate(runCtx, info, cfg.DefaultLocale, func(p pipeline.Progress) {
		fmt.Fprintf(ctx.Err, "progress: %s\n", p)
	})
	if err != nil {
		return err
	}
	if !result.Persisted {
		fmt.Fprintln(ctx.Err, "warning: plan was generated but could not be stored")
	}
	return ctx.printJSON(map[string]any{
		"planId":    result.PlanID,
		"persisted": result.Persisted,
		"plan":      result.Plan,
	})
}

func documentInfo(ctx context.Context, svc *planning.Service, path string, info domain.BusinessInfo) (domain.BusinessInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return info, err
	}
	defer f.Close()
	return svc.DocumentInfo(ctx, planning.DocumentRequest{
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Body:        f,
		Info:        info,
	})
}
