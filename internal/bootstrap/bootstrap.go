// Package bootstrap assembles the plan service from configuration. Both the
// API server and plannerctl start from here.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"planforge/internal/adapter/repo"
	"planforge/internal/domain"
	"planforge/internal/extract"
	"planforge/internal/infra"
	"planforge/internal/infra/credentials"
	"planforge/internal/pipeline"
	"planforge/internal/planning"
	"planforge/internal/providers/llm"
	"planforge/internal/reconcile"
)

// Stores holds the repositories for the configured driver.
type Stores struct {
	Plans domain.PlanRepository
	// Credentials is nil unless the driver is postgres.
	Credentials domain.CredentialRepository
	close       func()
}

func (s *Stores) Close() {
	if s != nil && s.close != nil {
		s.close()
	}
}

// OpenStores connects the configured store. Postgres migrations run only
// when cfg.AutoMigrate is set; sqlite always migrates on open.
func OpenStores(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (*Stores, error) {
	switch cfg.StoreDriver {
	case infra.StorePostgres:
		if cfg.AutoMigrate {
			n, err := infra.MigratePostgres(ctx, cfg.DatabaseURL, logger)
			if err != nil {
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
			logger.Info().Int("applied", n).Msg("postgres migrations applied")
		}
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		runner := infra.NewSQLRunner(pool, logger)
		return &Stores{
			Plans:       repo.NewPlanRepositoryPG(runner),
			Credentials: credentials.NewStore(runner),
			close:       pool.Close,
		}, nil
	case infra.StoreSQLite:
		db, err := infra.OpenSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Plans: repo.NewPlanRepositorySQLite(infra.NewSQLiteRunner(db, logger)),
			close: func() { _ = db.Close() },
		}, nil
	case infra.StoreMemory:
		logger.Warn().Msg("memory store selected; plans are lost on restart")
		return &Stores{Plans: repo.NewPlanRepositoryMemory()}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// NewGenerator builds the configured provider client wrapped with the call
// policy. The key comes from the environment first, then the credential store.
func NewGenerator(ctx context.Context, cfg *infra.Config, creds domain.CredentialRepository, logger zerolog.Logger) (llm.Generator, error) {
	key, err := credentials.ResolveKey(ctx, creds, cfg.LLMProvider, cfg.LLMAPIKey())
	if err != nil {
		return nil, err
	}
	client := &http.Client{}

	var gen llm.Generator
	switch cfg.LLMProvider {
	case credentials.ProviderOpenAI:
		gen, err = llm.NewOpenAIGenerator(llm.OpenAIOptions{
			APIKey:       key,
			Model:        cfg.OpenAIModel,
			BaseURL:      cfg.OpenAIBaseURL,
			Organization: cfg.OpenAIOrg,
			HTTPClient:   client,
			OnWarning: func(reason, detail string) {
				logger.Warn().Str("reason", reason).Str("detail", detail).Msg("openai model normalized")
			},
		})
	default:
		gen, err = llm.NewGeminiGenerator(llm.GeminiOptions{
			APIKey:     key,
			Model:      cfg.GeminiModel,
			BaseURL:    cfg.GeminiBaseURL,
			HTTPClient: client,
		})
	}
	if err != nil {
		return nil, err
	}
	llmLogger := logger.With().Str("component", "llm").Str("provider", gen.Name()).Logger()
	return llm.NewResilient(gen, llm.Policy{
		Timeout:     cfg.LLMCallTimeout,
		MaxAttempts: cfg.LLMMaxAttempts,
		Backoff:     cfg.LLMBackoff,
	}, &llmLogger), nil
}

// PromptBook loads the configured prompt book or the embedded default.
func PromptBook(cfg *infra.Config) (*pipeline.PromptBook, error) {
	if cfg.PromptBookPath != "" {
		return pipeline.LoadPromptBook(cfg.PromptBookPath)
	}
	return pipeline.DefaultPromptBook()
}

// NewPlanning wires the pipeline, reconciler and extractor around plans.
func NewPlanning(cfg *infra.Config, gen llm.Generator, plans domain.PlanRepository, logger zerolog.Logger) (*planning.Service, error) {
	book, err := PromptBook(cfg)
	if err != nil {
		return nil, fmt.Errorf("load prompt book: %w", err)
	}
	rec := reconcile.New(reconcile.DefaultValues(), reconcile.ParseOrphanPolicy(cfg.OrphanPostPolicy))
	pipeLogger := logger.With().Str("component", "pipeline").Logger()
	svcLogger := logger.With().Str("component", "planning").Logger()
	return planning.NewService(planning.Options{
		Pipeline:   pipeline.Build(gen, book, rec, &pipeLogger),
		Repo:       plans,
		Reconciler: rec,
		Extractor: extract.New(extract.Options{
			URL:      cfg.ExtractorURL,
			MaxBytes: cfg.DocumentMaxBytes,
		}),
		ShareBasePath: cfg.ShareBasePath,
		Logger:        &svcLogger,
	}), nil
}
