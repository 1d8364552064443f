package auth

import (
	"encoding/json"
	"net/http"

	"github.com/isdelr/notekeeper/internal/session"
)

// RequireUser redirects anonymous visitors to loginPath with an error flash.
func RequireUser(loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if CurrentUser(r.Context()) == nil {
				if s := session.FromContext(r.Context()); s != nil {
					s.AddFlash("error", "You must be logged in first!")
				}
				http.Redirect(w, r, loginPath, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireUserJSON answers 401 with a JSON body for anonymous API calls.
func RequireUserJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CurrentUser(r.Context()) == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "authentication required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
