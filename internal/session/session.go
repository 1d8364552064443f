package session

import (
	"context"
	"time"

	"github.com/gorilla/sessions"
)

const (
	userIDKey   = "userId"
	flashPrefix = "flash:"
)

type contextKey struct{}

// Session is a typed view of the request's *sessions.Session. It is not
// safe for concurrent use; it lives for one request.
type Session struct {
	raw   *sessions.Session
	store *ServerStore
}

// ID returns the session id.
func (s *Session) ID() string { return s.raw.ID }

// IsNew reports whether the session was created for this request.
func (s *Session) IsNew() bool { return s.raw.IsNew }

// Degraded reports whether the store was unreachable and the session will
// not be persisted.
func (s *Session) Degraded() bool { return stateOf(s.raw).degraded }

// Expires is the absolute expiry of the session cookie.
func (s *Session) Expires() time.Time { return stateOf(s.raw).expires }

// UserID returns the serialized user id, or "" when nobody is logged in.
func (s *Session) UserID() string {
	id, _ := s.raw.Values[userIDKey].(string)
	return id
}

// SetUserID stores the serialized user id. An empty id logs the user out.
func (s *Session) SetUserID(id string) {
	if id == "" {
		delete(s.raw.Values, userIDKey)
		return
	}
	s.raw.Values[userIDKey] = id
}

// AddFlash queues a one-time message under category.
func (s *Session) AddFlash(category, msg string) {
	s.raw.AddFlash(msg, flashPrefix+category)
}

// Flashes drains and returns the messages queued under category.
func (s *Session) Flashes(category string) []string {
	var msgs []string
	for _, f := range s.raw.Flashes(flashPrefix + category) {
		if msg, ok := f.(string); ok {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

// Regenerate replaces the session id, clears its contents and issues a new
// cookie. The old record is destroyed when the session is saved.
func (s *Session) Regenerate() {
	s.store.regenerate(s.raw)
}

// Destroy removes the session from the store and clears the cookie.
func (s *Session) Destroy() {
	s.raw.Options.MaxAge = -1
}

// NewContext returns a copy of ctx carrying s.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session attached by Manager.Middleware, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(contextKey{}).(*Session)
	return s
}
