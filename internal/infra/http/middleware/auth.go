package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/openctemio/authz/pkg/apierror"
	"github.com/openctemio/authz/pkg/domain/shared"
	"github.com/openctemio/authz/pkg/domain/user"
	"github.com/openctemio/authz/pkg/jwt"
	"github.com/openctemio/authz/pkg/logger"
)

// Auth-related context keys.
const (
	UserIDKey      = logger.ContextKeyUserID // string form, read by the logger
	localUserIDKey = logger.ContextKey("local_user_id")
)

// TokenVerifier validates bearer tokens issued by the identity provider.
type TokenVerifier interface {
	Verify(token string) (*jwt.Identity, error)
}

// IdentitySyncer maps a verified identity to a local user, creating or
// claiming one on first sight.
type IdentitySyncer interface {
	SyncFromIdentity(ctx context.Context, externalID, email, name string) (*user.User, error)
}

// Authenticate verifies the bearer token, resolves the local user and stores
// its id in the request context. Requests without a valid token get 401.
func Authenticate(verifier TokenVerifier, users IdentitySyncer, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := jwt.ExtractBearer(r.Header.Get("Authorization"))
			if !ok {
				RecordAuthFailure("missing_token")
				apierror.Unauthorized("Missing bearer token").WriteJSON(w)
				return
			}

			identity, err := verifier.Verify(token)
			if err != nil {
				reason := "invalid_token"
				if errors.Is(err, jwt.ErrExpiredToken) {
					reason = "expired_token"
				}
				RecordAuthFailure(reason)
				apierror.Unauthorized("Invalid or expired token").WriteJSON(w)
				return
			}

			u, err := users.SyncFromIdentity(r.Context(), identity.Subject, identity.Email, identity.Name)
			if err != nil {
				log.WithContext(r.Context()).Error("failed to sync user from identity",
					"subject", identity.Subject,
					"error", err,
				)
				apierror.FromError(err).WriteJSON(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), u.ID())))
		})
	}
}

// WithUserID stores the authenticated user id in ctx.
func WithUserID(ctx context.Context, id shared.ID) context.Context {
	ctx = context.WithValue(ctx, localUserIDKey, id)
	return context.WithValue(ctx, UserIDKey, id.String())
}

// UserIDFromContext returns the authenticated user id.
func UserIDFromContext(ctx context.Context) (shared.ID, bool) {
	id, ok := ctx.Value(localUserIDKey).(shared.ID)
	return id, ok && !id.IsZero()
}
