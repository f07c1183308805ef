package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"planforge/internal/bootstrap"
	"planforge/internal/http/handlers"
	httpapi "planforge/internal/http/httpapi"
	"planforge/internal/infra"
	"planforge/internal/infra/geoip"
	"planforge/internal/middleware"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, infra.LogOptions{File: cfg.LogFile})

	ctx := context.Background()
	stores, err := bootstrap.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
	}
	defer stores.Close()

	gen, err := bootstrap.NewGenerator(ctx, cfg, stores.Credentials, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("provider", cfg.LLMProvider).Msg("failed to configure generator")
	}
	plans, err := bootstrap.NewPlanning(cfg, gen, stores.Plans, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build planning service")
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer func() {
		_ = resolver.Close()
	}()

	app := handlers.NewApp(plans, logger, cfg.StreamKeepAlive, cfg.DocumentMaxBytes)
	app.GenerationDeadline = cfg.GenerationDeadline()
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		CORSOrigins:     cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Locales:         middleware.NewLocales(cfg.SupportedLocales, cfg.DefaultLocale),
		CountryLookup:   resolver.Lookup(),
	})

	server := infra.NewHTTPServer(cfg, router, logger)

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("store", cfg.StoreDriver).
			Str("generator", gen.Name()).
			Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	// Streams hold connections open; give them the idle window to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout+5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
