package dispatch

import (
	"context"

	"github.com/pi-agent/session-manager/internal/apperr"
)

// handleAuthStatus reports whether a bearer token is configured, without
// ever returning the token itself.
func handleAuthStatus(_ context.Context, d *Dispatcher, _ Payload) (any, error) {
	if d.AuthTokens == nil {
		return nil, apperr.New(apperr.Unsupported, "auth token store not configured")
	}
	return map[string]any{"hasToken": d.AuthTokens.Token() != ""}, nil
}

// handleAuthGenerateToken rotates the bearer token and returns the new
// value once, so the caller can display or copy it. Every client still
// holding the old token is rejected starting with its next request.
func handleAuthGenerateToken(_ context.Context, d *Dispatcher, _ Payload) (any, error) {
	if d.AuthTokens == nil {
		return nil, apperr.New(apperr.Unsupported, "auth token store not configured")
	}
	token, err := d.AuthTokens.Regenerate()
	if err != nil {
		return nil, apperr.Wrap(apperr.IO, "regenerating auth token", err)
	}
	return map[string]any{"token": token}, nil
}
