// Package transport exposes the dispatcher over HTTP (POST /api) and
// WebSocket (GET /ws), both funneling into the same dispatch.Dispatch call.
package transport

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
)

// tokenSource supplies the current bearer token, abstracting over
// authtoken.Store so the token can rotate without rebuilding the
// Authenticator.
type tokenSource interface {
	Token() string
}

// Authenticator gates requests with a bearer token, except for connections
// originating from the loopback interface, which are trusted implicitly —
// the backend only ever listens on localhost.
type Authenticator struct {
	tokens tokenSource
}

// NewAuthenticator builds an Authenticator checking against whatever token
// tokens currently holds.
func NewAuthenticator(tokens tokenSource) *Authenticator {
	return &Authenticator{tokens: tokens}
}

// Allow reports whether r is authorized: either it comes from loopback, or
// it carries a correct bearer token via the Authorization header or a
// ?token= query parameter.
func (a *Authenticator) Allow(r *http.Request) bool {
	if !a.RequiresAuth(r) {
		return true
	}
	return a.ValidToken(candidateToken(r))
}

// RequiresAuth reports whether r must carry a valid token at all — false
// for loopback clients, which are trusted implicitly since the backend only
// ever listens on localhost by default.
func (a *Authenticator) RequiresAuth(r *http.Request) bool {
	return !isLoopback(remoteIP(r))
}

// ValidToken reports whether token matches the current in-memory token,
// using a constant-time comparison. It is also used to validate the bare
// token carried in the WebSocket post-upgrade auth handshake.
func (a *Authenticator) ValidToken(token string) bool {
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(a.tokens.Token())) == 1
}

// candidateToken extracts a bearer token from r, preferring the
// Authorization header and falling back to a ?token= query parameter.
func candidateToken(r *http.Request) string {
	const prefix = "Bearer "
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, prefix) {
		return strings.TrimSpace(strings.TrimPrefix(header, prefix))
	}
	return r.URL.Query().Get("token")
}

// Middleware wraps next, rejecting unauthorized requests with 401.
func (a *Authenticator) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.Allow(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// remoteIP resolves the client's real address, preferring the first entry
// of X-Forwarded-For if present (e.g. behind a local reverse proxy) and
// falling back to the TCP peer address.
func remoteIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return host == "localhost"
	}
	return ip.IsLoopback()
}
