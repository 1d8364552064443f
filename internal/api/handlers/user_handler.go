package handlers

import (
	"errors"
	"net/http"

	"github.com/isdelr/notekeeper/internal/auth"
	"github.com/isdelr/notekeeper/internal/services"
	"github.com/isdelr/notekeeper/internal/session"
	"github.com/isdelr/notekeeper/internal/view"
	"github.com/rs/zerolog/log"
)

// UserHandler handles signup, login and logout.
type UserHandler struct {
	service services.UserServiceProvider
	auth    *auth.Authenticator
	views   *view.Renderer
	appName string
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(service services.UserServiceProvider, authenticator *auth.Authenticator, views *view.Renderer, appName string) *UserHandler {
	return &UserHandler{service: service, auth: authenticator, views: views, appName: appName}
}

// SignupForm renders the registration page.
func (h *UserHandler) SignupForm(w http.ResponseWriter, r *http.Request) error {
	h.views.Render(w, r, http.StatusOK, "users/signup.html", view.Page{Title: "Sign up"})
	return nil
}

// Signup handles new user registration and logs the new user in.
func (h *UserHandler) Signup(w http.ResponseWriter, r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return NewError(http.StatusBadRequest, "Invalid form submission")
	}
	s := session.FromContext(r.Context())

	user, err := h.service.CreateUser(r.Context(), r.PostFormValue("username"), r.PostFormValue("email"), r.PostFormValue("password"))
	if errors.Is(err, services.ErrUserExists) || errors.Is(err, services.ErrInvalidUser) || errors.Is(err, services.ErrPasswordTooLong) {
		s.AddFlash("error", err.Error())
		http.Redirect(w, r, "/auth/signup", http.StatusFound)
		return nil
	}
	if err != nil {
		return err
	}

	if err := h.auth.Login(r, user); err != nil {
		return err
	}
	log.Info().Str("user_id", user.ID).Msg("User registered")
	s.AddFlash("success", "Welcome to "+h.appName+"!")
	http.Redirect(w, r, "/", http.StatusFound)
	return nil
}

// LoginForm renders the login page.
func (h *UserHandler) LoginForm(w http.ResponseWriter, r *http.Request) error {
	if auth.CurrentUser(r.Context()) != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return nil
	}
	h.views.Render(w, r, http.StatusOK, "users/login.html", view.Page{Title: "Log in"})
	return nil
}

// Login checks the posted credentials with the local strategy.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) error {
	s := session.FromContext(r.Context())

	user, err := h.auth.Authenticate("local", r)
	if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrMissingCredentials) {
		log.Warn().Err(err).Msg("Failed authentication attempt")
		s.AddFlash("error", err.Error())
		http.Redirect(w, r, "/auth/login", http.StatusFound)
		return nil
	}
	if err != nil {
		return err
	}

	if err := h.auth.Login(r, user); err != nil {
		return err
	}
	s.AddFlash("success", "Welcome back to "+h.appName+"!")
	http.Redirect(w, r, "/", http.StatusFound)
	return nil
}

// Logout ends the authenticated session.
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) error {
	h.auth.Logout(r)
	if s := session.FromContext(r.Context()); s != nil {
		s.AddFlash("success", "You are logged out!")
	}
	http.Redirect(w, r, "/", http.StatusFound)
	return nil
}
