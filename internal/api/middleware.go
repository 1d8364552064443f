package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/isdelr/notekeeper/internal/auth"
	"github.com/isdelr/notekeeper/internal/config"
	"github.com/isdelr/notekeeper/internal/session"
	"github.com/isdelr/notekeeper/internal/view"
	"github.com/rs/zerolog/log"
)

// requestLogger writes one zerolog line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			log.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("Request handled")
		}()
		next.ServeHTTP(ww, r)
	})
}

// methodOverride lets HTML forms reach PUT, PATCH and DELETE routes with
// POST /path?_method=VERB.
func methodOverride(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			switch m := strings.ToUpper(r.URL.Query().Get("_method")); m {
			case http.MethodPut, http.MethodPatch, http.MethodDelete:
				r.Method = m
			}
		}
		next.ServeHTTP(w, r)
	})
}

// siteLocals exposes the values every page needs, including pages rendered
// before the user is known.
func siteLocals(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			locals := view.Locals{AppName: cfg.AppName, Domain: cfg.BaseURL(r)}
			next.ServeHTTP(w, r.WithContext(view.WithLocals(r.Context(), locals)))
		})
	}
}

// populateLocals adds the current user and drains the flash queue into the
// request-scoped template values.
func populateLocals(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		locals := view.LocalsFrom(r.Context())
		locals.CurrUser = auth.CurrentUser(r.Context())
		if s := session.FromContext(r.Context()); s != nil {
			locals.Success = s.Flashes("success")
			locals.Error = s.Flashes("error")
			locals.Deleted = s.Flashes("deleted")
		}
		next.ServeHTTP(w, r.WithContext(view.WithLocals(r.Context(), locals)))
	})
}
