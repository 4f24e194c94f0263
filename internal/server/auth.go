package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/docqa-go/internal/logging"
)

// authRealm names the protection space in WWW-Authenticate challenges.
const authRealm = "docqa"

// authMiddleware requires "Authorization: Bearer <apiKey>" on every request
// to next. An empty apiKey disables the check; New logs that once at startup.
// Token values are never logged.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	want := []byte(apiKey)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, present := bearerToken(r)
		switch {
		case !present:
			reject(w, r, "", "authorization required")
		case subtle.ConstantTimeCompare([]byte(token), want) != 1:
			reject(w, r, "invalid_token", "invalid token")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// reject writes a 401 with a Bearer challenge. code is the RFC 6750 error
// code, empty when no credentials were sent.
func reject(w http.ResponseWriter, r *http.Request, code, detail string) {
	logging.FromContext(r.Context()).Warn("auth: request rejected",
		slog.String("path", r.URL.Path),
		slog.String("reason", detail),
	)
	challenge := `Bearer realm="` + authRealm + `"`
	if code != "" {
		challenge += ` error="` + code + `"`
	}
	w.Header().Set("WWW-Authenticate", challenge)
	writeJSON(w, r, http.StatusUnauthorized, errorResponse{Error: "unauthenticated", Detail: detail})
}

// bearerToken extracts the token of an "Authorization: Bearer <token>"
// header. present is false when the header is absent, uses another scheme,
// or carries an empty token.
func bearerToken(r *http.Request) (token string, present bool) {
	scheme, rest, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(rest)
	return token, token != ""
}
