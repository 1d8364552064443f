package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/isdelr/notekeeper/internal/view"
	"github.com/rs/zerolog/log"
)

const (
	defaultErrorTitle   = "Something went wrong"
	defaultErrorMessage = "Something went wrong"
)

// Error is an error that knows how it should be shown to the client.
// A zero StatusCode means 500 and an empty Message the generic text.
type Error struct {
	StatusCode int
	Message    string
	Err        error
}

// NewError creates an Error with an explicit status and message.
func NewError(status int, message string) *Error {
	return &Error{StatusCode: status, Message: message}
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case e.Message != "":
		return e.Message
	}
	return http.StatusText(e.status())
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) status() int {
	if e.StatusCode == 0 {
		return http.StatusInternalServerError
	}
	return e.StatusCode
}

// HandlerFunc is an http.HandlerFunc that may fail.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// ErrorHandler is the terminal handler for unmatched routes and failed requests.
type ErrorHandler struct {
	views *view.Renderer
}

// NewErrorHandler creates a new ErrorHandler.
func NewErrorHandler(views *view.Renderer) *ErrorHandler {
	return &ErrorHandler{views: views}
}

// Wrap adapts fn to http.HandlerFunc, sending its error to Handle.
func (h *ErrorHandler) Wrap(fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			h.Handle(w, r, err)
		}
	}
}

// NotFound renders the 404 page.
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.views.Render(w, r, http.StatusNotFound, "notes/404.html", view.Page{Title: "Page not found"})
}

// Handle logs err and renders the error page. It never panics and never
// returns the error to the caller.
func (h *ErrorHandler) Handle(w http.ResponseWriter, r *http.Request, err error) {
	status, message := http.StatusInternalServerError, defaultErrorMessage
	var appErr *Error
	if errors.As(err, &appErr) {
		status = appErr.status()
		if appErr.Message != "" {
			message = appErr.Message
		}
	}

	event := log.Error()
	if status < http.StatusInternalServerError {
		event = log.Warn()
	}
	event.Err(err).Int("status", status).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed")

	h.views.Render(w, r, status, "notes/error.html", view.Page{Title: defaultErrorTitle, Data: message})
}

// Recover turns a panic in next into a rendered 500 page.
func (h *ErrorHandler) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				h.Handle(w, r, fmt.Errorf("panic: %v", rvr))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
