// Package identity verifies provider-issued bearer tokens. The application
// never issues tokens of its own; every identity assertion comes from the
// configured external provider and is checked here before any store access.
package identity

import (
	"context"
	"net/http"
	"strings"
)

// Claims is the decoded identity claim set attached to a verified request.
type Claims struct {
	// UID is the provider's stable subject identifier (opaque, immutable).
	UID   string
	Email string
	Name  string
}

// Verifier validates a bearer credential and extracts its claims.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// TokenFromRequest extracts the bearer credential from an HTTP request.
// The websocket handshake also accepts a ?token= query parameter because
// browser WebSocket clients cannot set headers.
func TokenFromRequest(r *http.Request) (string, bool) {
	const bearerPrefix = "Bearer "
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix); ok && after != "" {
		return after, true
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok, true
	}
	return "", false
}
