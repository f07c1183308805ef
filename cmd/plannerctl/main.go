package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"planforge/internal/cli"
	"planforge/internal/infra"
)

var CLI struct {
	Version  kong.VersionFlag
	Generate cli.GenerateCmd `cmd:"" help:"Generate a 30-day launch plan."`
	Show     cli.ShowCmd     `cmd:"" help:"Print a stored plan."`
	Migrate  cli.MigrateCmd  `cmd:"" help:"Apply database migrations."`
	SetKey   cli.SetKeyCmd   `cmd:"" name:"set-key" help:"Store a provider API key."`
	LintSQL  cli.LintSQLCmd  `cmd:"" name:"lint-sql" help:"Check SQL constants for audit markers."`
}

func main() {
	_ = godotenv.Load()

	ctx := kong.Parse(&CLI,
		kong.Name("plannerctl"),
		kong.Description("Launch plan generator tooling"),
		kong.UsageOnError(),
		kong.Vars{"version": "v0.1.0"},
	)

	cfg := infra.ReadConfig()
	logger := infra.NewLogger(cfg.AppEnv, infra.LogOptions{Out: os.Stderr, File: cfg.LogFile}).
		With().Str("cmd", ctx.Command()).Logger()

	appCtx := &cli.Context{Config: cfg, Logger: logger, Out: os.Stdout, Err: os.Stderr}
	if err := ctx.Run(appCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
