package database

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Schema applies Migrate until it succeeds once. A database that is down at
// start-up gets its tables as soon as it comes back.
type Schema struct {
	db    *sql.DB
	ready atomic.Bool
	mu    sync.Mutex
}

// NewSchema creates a Schema for db.
func NewSchema(db *sql.DB) *Schema {
	return &Schema{db: db}
}

// Ready reports whether the migration has been applied.
func (s *Schema) Ready() bool {
	return s.ready.Load()
}

// Ensure pings the database and applies the migration if that has not
// happened yet.
func (s *Schema) Ensure(ctx context.Context) error {
	if s.ready.Load() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready.Load() {
		return nil
	}

	if err := Ping(ctx, s.db); err != nil {
		return err
	}
	if err := Migrate(ctx, s.db); err != nil {
		return err
	}
	s.ready.Store(true)
	return nil
}

// Middleware retries the migration before requests until it succeeds. A
// failure is logged and the request goes on; it degrades like any other
// store outage.
func (s *Schema) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			if err := s.Ensure(ctx); err != nil {
				log.Error().Err(err).Msg("Database schema is not ready")
			} else {
				log.Info().Msg("Database ready")
			}
			cancel()
		}
		next.ServeHTTP(w, r)
	})
}
