package web

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/basket/decoy/internal/audit"
)

// AdminAuth guards the destructive operator endpoints with a single
// bearer token. An empty token disables the endpoints outright rather
// than leaving them open.
type AdminAuth struct {
	token string
}

func NewAdminAuth(token string) *AdminAuth {
	return &AdminAuth{token: strings.TrimSpace(token)}
}

// Enabled reports whether a token is configured.
func (a *AdminAuth) Enabled() bool { return a.token != "" }

// Wrap wraps an http.Handler with bearer-token checking.
func (a *AdminAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			http.Error(w, "admin endpoints disabled", http.StatusNotFound)
			return
		}
		if !a.authorize(r) {
			audit.Record(audit.EventAuthDenied, clientIP(r), r.URL.Path)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authorize uses constant-time comparison to prevent timing attacks.
func (a *AdminAuth) authorize(r *http.Request) bool {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return false
	}
	candidate := strings.TrimSpace(strings.TrimPrefix(authz, prefix))
	if candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(a.token)) == 1
}
