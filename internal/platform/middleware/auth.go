package middleware

import (
	"log/slog"
	"net/http"

	"bloomence/internal/identity"
	dErrors "bloomence/pkg/domain-errors"
	"bloomence/pkg/requestcontext"
)

// RequireAuth verifies the bearer credential on every request before any
// handler runs. Verification failures short-circuit; no store access happens
// for unauthenticated requests.
func RequireAuth(verifier identity.Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := identity.TokenFromRequest(r)
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				dErrors.WriteHTTP(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
				return
			}

			claims, err := verifier.Verify(ctx, token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				dErrors.WriteHTTP(w, err)
				return
			}

			ctx = requestcontext.WithUserID(ctx, claims.UID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
