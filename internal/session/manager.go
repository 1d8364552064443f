package session

import (
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Options configure a Manager.
type Options struct {
	CookieName string
	// MaxAge is fixed when a session is issued; later requests do not extend it.
	MaxAge time.Duration
	Secure bool
	Secret string
	// SaveUninitialized persists new sessions even when nothing was stored in them.
	SaveUninitialized bool
}

// Manager loads a session before the request is handled and saves it right
// before the response header is written.
type Manager struct {
	store *ServerStore
	name  string
}

// NewManager creates a Manager whose sessions live in backend.
func NewManager(backend Store, opts Options) *Manager {
	if opts.CookieName == "" {
		opts.CookieName = "notes.sid"
	}
	return &Manager{store: NewServerStore(backend, opts), name: opts.CookieName}
}

// Store returns the sessions.Store the manager reads and writes through.
func (m *Manager) Store() *ServerStore { return m.store }

// Middleware attaches a *Session to every request context.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := m.store.Get(r, m.name)
		if err != nil {
			log.Error().Err(err).Msg("Session store unavailable, serving request without a persistent session")
		}
		if raw == nil {
			raw = m.store.fresh(m.name)
			stateOf(raw).degraded = true
		}
		s := &Session{raw: raw, store: m.store}

		cw := &commitWriter{ResponseWriter: w}
		cw.commit = func() {
			if err := raw.Save(r, w); err != nil {
				log.Error().Err(err).Str("session_id", raw.ID).Msg("Failed to save session")
			}
		}

		next.ServeHTTP(cw, r.WithContext(NewContext(r.Context(), s)))
		cw.once.Do(cw.commit)
	})
}

// commitWriter runs commit once, before the first byte of the response.
type commitWriter struct {
	http.ResponseWriter
	once   sync.Once
	commit func()
}

func (cw *commitWriter) WriteHeader(code int) {
	cw.once.Do(cw.commit)
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *commitWriter) Write(b []byte) (int, error) {
	cw.once.Do(cw.commit)
	return cw.ResponseWriter.Write(b)
}

func (cw *commitWriter) Flush() {
	cw.once.Do(cw.commit)
	if f, ok := cw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (cw *commitWriter) Unwrap() http.ResponseWriter {
	return cw.ResponseWriter
}
