// Package app wires configuration, storage, sessions and routes into one
// http.Handler that can be served standalone or handed to a platform.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/isdelr/notekeeper/internal/api"
	"github.com/isdelr/notekeeper/internal/auth"
	"github.com/isdelr/notekeeper/internal/config"
	"github.com/isdelr/notekeeper/internal/database"
	"github.com/isdelr/notekeeper/internal/monitoring"
	"github.com/isdelr/notekeeper/internal/services"
	"github.com/isdelr/notekeeper/internal/session"
	"github.com/isdelr/notekeeper/internal/view"
	"github.com/rs/zerolog/log"
)

// App is a fully wired application.
type App struct {
	cfg     *config.Config
	db      *sql.DB
	sweeper *monitoring.Sweeper
	handler http.Handler
}

// Option customises New.
type Option func(*options)

type options struct {
	hashCost int
}

// WithHashCost sets the bcrypt cost used for new passwords.
func WithHashCost(cost int) Option {
	return func(o *options) { o.hashCost = cost }
}

// New builds the application. A database that cannot be reached at start-up
// is logged and not fatal: session loads degrade instead of failing, and the
// schema is applied on the first request after the database comes back.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.SessionSecretDerived {
		log.Warn().Msg("SESSION_SECRET is not set; using a random secret, sessions will not survive a restart")
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	schema := database.NewSchema(db)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := schema.Ensure(ctx); err != nil {
		log.Error().Err(err).Msg("Database is not ready; migrations will be retried on the next request")
	} else {
		log.Info().Msg("Database ready")
	}

	var store session.Store
	switch cfg.SessionStore {
	case "memory":
		store = session.NewMemoryStore(cfg.SessionTouchAfter)
	default:
		store, err = session.NewSQLiteStore(db, cfg.SessionSecret, cfg.SessionTouchAfter)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	sweeper, err := monitoring.NewSweeper(store, cfg.SessionSweepSchedule)
	if err != nil {
		db.Close()
		return nil, err
	}

	userService := services.NewUserService(db)
	if o.hashCost > 0 {
		userService.WithHashCost(o.hashCost)
	}
	noteService := services.NewNoteService(db)

	views, err := view.NewRenderer()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	authenticator := auth.NewAuthenticator(userService, auth.NewLocalStrategy(userService))
	sessions := session.NewManager(store, session.Options{
		CookieName:        cfg.SessionCookieName,
		MaxAge:            cfg.SessionMaxAge,
		Secure:            cfg.Production(),
		Secret:            cfg.SessionSecret,
		SaveUninitialized: true,
	})

	router := api.NewRouter(cfg, sessions, authenticator, views, userService, noteService)
	return &App{
		cfg:     cfg,
		db:      db,
		sweeper: sweeper,
		handler: schema.Middleware(router),
	}, nil
}

// Handler returns the root handler for the standalone server, where the
// sweeper runs on its own schedule.
func (a *App) Handler() http.Handler {
	return a.handler
}

// ServerlessHandler returns the root handler for hosts that only run code
// while a request is in flight. Expired sessions are swept in line with
// requests, at most once per sweep schedule.
func (a *App) ServerlessHandler() http.Handler {
	return a.sweeper.Middleware(a.handler)
}

// ListenAndServe serves on cfg.ListenAddr until ctx is cancelled, then shuts
// down gracefully.
func (a *App) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.ListenAddr(),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.sweeper.Start()
	defer a.sweeper.Stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server starting")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Close releases the database.
func (a *App) Close() error {
	return a.db.Close()
}
