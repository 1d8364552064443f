// Package auth verifies credentials and ties the authenticated user to the
// session. Only the user id is kept in the session; the full user is loaded
// again on every request.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/isdelr/notekeeper/internal/models"
	"github.com/isdelr/notekeeper/internal/services"
)

var (
	// ErrInvalidCredentials is the only failure callers see for a bad
	// username or password.
	ErrInvalidCredentials = errors.New("Password or username is incorrect")
	// ErrMissingCredentials is returned when the login form is incomplete.
	ErrMissingCredentials = errors.New("Missing credentials")
	// ErrUnknownStrategy is returned when no strategy is registered under a name.
	ErrUnknownStrategy = errors.New("unknown authentication strategy")
)

// Strategy verifies a login attempt carried by a request.
type Strategy interface {
	Name() string
	Authenticate(r *http.Request) (models.User, error)
}

// CredentialChecker is the persistence primitive behind LocalStrategy.
type CredentialChecker interface {
	AuthenticateUser(ctx context.Context, username, password string) (models.User, error)
}

// LocalStrategy checks a username and password posted in a form.
type LocalStrategy struct {
	users         CredentialChecker
	usernameField string
	passwordField string
}

// NewLocalStrategy creates a LocalStrategy reading the "username" and
// "password" form fields.
func NewLocalStrategy(users CredentialChecker) *LocalStrategy {
	return &LocalStrategy{users: users, usernameField: "username", passwordField: "password"}
}

func (s *LocalStrategy) Name() string { return "local" }

// Authenticate never reveals whether the user exists.
func (s *LocalStrategy) Authenticate(r *http.Request) (models.User, error) {
	username := strings.TrimSpace(r.FormValue(s.usernameField))
	password := r.FormValue(s.passwordField)
	if username == "" || password == "" {
		return models.User{}, ErrMissingCredentials
	}

	user, err := s.users.AuthenticateUser(r.Context(), username, password)
	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, services.ErrUserNotFound), errors.Is(err, services.ErrWrongPassword):
		return models.User{}, ErrInvalidCredentials
	default:
		return models.User{}, err
	}
}
