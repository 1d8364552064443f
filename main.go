package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/isdelr/notekeeper/internal/app"
	"github.com/isdelr/notekeeper/internal/config"
	"github.com/isdelr/notekeeper/internal/logger"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init(cfg.LogLevel, !cfg.Production())

	application, err := app.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	if cfg.Mode() == config.ModeHandler {
		log.Info().Msg("Production mode: the platform entry point is api.Handler; listening anyway for local use")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.ListenAndServe(ctx); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		application.Close()
		os.Exit(1)
	}
	log.Info().Msg("Server exiting")
}
