package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/isdelr/notekeeper/internal/models"
	"github.com/isdelr/notekeeper/internal/services"
	"github.com/isdelr/notekeeper/internal/session"
	"github.com/rs/zerolog/log"
)

type contextKey string

const userContextKey = contextKey("user")

// UserLoader rehydrates a user from its serialized id.
type UserLoader interface {
	GetUserByID(ctx context.Context, id string) (models.User, error)
}

// Authenticator keeps the registered strategies and moves users in and out
// of the session.
type Authenticator struct {
	users      UserLoader
	strategies map[string]Strategy
}

// NewAuthenticator creates an Authenticator with the given strategies.
func NewAuthenticator(users UserLoader, strategies ...Strategy) *Authenticator {
	a := &Authenticator{users: users, strategies: make(map[string]Strategy)}
	for _, s := range strategies {
		a.Use(s)
	}
	return a
}

// Use registers a strategy under its name, replacing any previous one.
func (a *Authenticator) Use(s Strategy) {
	a.strategies[s.Name()] = s
}

// Authenticate runs the named strategy against the request.
func (a *Authenticator) Authenticate(name string, r *http.Request) (models.User, error) {
	s, ok := a.strategies[name]
	if !ok {
		return models.User{}, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	return s.Authenticate(r)
}

// SerializeUser returns what is kept in the session for user.
func (a *Authenticator) SerializeUser(user models.User) string {
	return user.ID
}

// DeserializeUser loads the user behind a serialized id.
func (a *Authenticator) DeserializeUser(ctx context.Context, id string) (models.User, error) {
	return a.users.GetUserByID(ctx, id)
}

// Login starts an authenticated session for user. The session id is
// replaced so an id handed out before login cannot be reused.
func (a *Authenticator) Login(r *http.Request, user models.User) error {
	s := session.FromContext(r.Context())
	if s == nil {
		return errors.New("login requires a session")
	}
	s.Regenerate()
	s.SetUserID(a.SerializeUser(user))
	return nil
}

// Logout drops the user from the session and replaces the session id.
func (a *Authenticator) Logout(r *http.Request) {
	s := session.FromContext(r.Context())
	if s == nil {
		return
	}
	s.Regenerate()
}

// Middleware resolves the session's user id and attaches the user to the
// request context. A user that no longer exists is removed from the session;
// any other lookup failure is handed to fail.
func (a *Authenticator) Middleware(fail func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := session.FromContext(r.Context())
			if s == nil || s.UserID() == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := a.DeserializeUser(r.Context(), s.UserID())
			if errors.Is(err, services.ErrUserNotFound) {
				log.Warn().Str("user_id", s.UserID()).Msg("Session refers to a missing user")
				s.SetUserID("")
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				fail(w, r, fmt.Errorf("deserialize user: %w", err))
				return
			}

			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), &user)))
		})
	}
}

// NewContext returns a copy of ctx carrying the authenticated user.
func NewContext(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// CurrentUser returns the authenticated user, or nil.
func CurrentUser(ctx context.Context) *models.User {
	u, _ := ctx.Value(userContextKey).(*models.User)
	return u
}
