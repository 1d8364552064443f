// Package handler exposes the application as a single serverless function.
package handler

import (
	"net/http"
	"sync"

	"github.com/isdelr/notekeeper/internal/app"
	"github.com/isdelr/notekeeper/internal/config"
	"github.com/isdelr/notekeeper/internal/logger"
	"github.com/rs/zerolog/log"
)

var (
	once        sync.Once
	application *app.App
	root        http.Handler
	initErr     error
)

func setup() {
	cfg, err := config.Load()
	if err != nil {
		initErr = err
		return
	}
	logger.Init(cfg.LogLevel, false)

	application, err = app.New(cfg)
	if err != nil {
		initErr = err
		return
	}
	root = application.ServerlessHandler()
}

// Handler serves one request, building the application on first use.
func Handler(w http.ResponseWriter, r *http.Request) {
	once.Do(setup)
	if initErr != nil {
		log.Error().Err(initErr).Msg("Application failed to start")
		http.Error(w, "Something went wrong", http.StatusInternalServerError)
		return
	}
	root.ServeHTTP(w, r)
}
