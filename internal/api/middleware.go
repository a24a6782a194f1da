// Package api implements the local NoteHub gateway using chi.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AuthConfig guards the gateway. The token only admits local callers; the
// upstream NoteHub token never leaves the client.
type AuthConfig struct {
	Enabled bool
	Token   string
}

// AuthMiddleware returns middleware that requires "Authorization: Bearer
// <token>" when cfg is enabled. Disabled mode passes every request through.
func AuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}
			got, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok || !tokenMatches(got, cfg.Token) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="notehub"`)
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the credentials of a Bearer authorization header.
// The scheme is case-insensitive.
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// tokenMatches compares in constant time. An empty expected token matches
// nothing.
func tokenMatches(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
