package auth

import (
	"context"
	"net/http"

	appErrors "github.com/frahmantamala/backoffice/internal"
	"github.com/frahmantamala/backoffice/internal/transport"
	"github.com/frahmantamala/backoffice/pkg/logger"
)

type contextKey string

const identityKey contextKey = "auth.identity"

func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	ctx = context.WithValue(ctx, identityKey, id)
	return appErrors.ContextWithActor(ctx, id.UserID)
}

// IdentityFromContext returns the identity attached by Authenticate.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok && id != nil
}

// Authenticate verifies the bearer token with verifier and attaches the
// resulting identity. Requests without a valid token never reach next.
func Authenticate(verifier TokenVerifier, base *transport.BaseHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := transport.ExtractTokenFromHeader(r)
			if token == "" {
				base.WriteAppError(w, appErrors.ErrMissingToken)
				return
			}

			id, err := verifier.Verify(r.Context(), token)
			if err != nil {
				logger.From(r.Context()).Warn("token verification failed", "verifier", verifier.Name(), "error", err)
				base.HandleServiceError(w, err)
				return
			}

			ctx := ContextWithIdentity(r.Context(), id)
			ctx = logger.With(ctx, "user_id", id.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
