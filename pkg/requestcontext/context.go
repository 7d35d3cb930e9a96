// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values. Middleware sets them; services read them without
// importing net/http.
package requestcontext

import (
	"context"
	"time"
)

// Context key types (unexported for encapsulation).
type (
	userIDKey      struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for tests that need context.WithValue directly.
var (
	ContextKeyUserID      = userIDKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// UserID retrieves the verified provider UID from the context. Empty when the
// request did not pass auth middleware.
func UserID(ctx context.Context) string {
	if uid, ok := ctx.Value(ContextKeyUserID).(string); ok {
		return uid
	}
	return ""
}

// WithUserID injects a verified provider UID into the context.
func WithUserID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, uid)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, id)
}

// Now returns the request timestamp when one was injected, else time.Now().
// Tests pin time with WithTime; services must use this instead of time.Now
// so throttle-window logic stays deterministic under test.
func Now(ctx context.Context) time.Time {
	if ts, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return ts
	}
	return time.Now()
}

// WithTime pins the request timestamp in the context.
func WithTime(ctx context.Context, ts time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, ts)
}
