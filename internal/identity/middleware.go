package identity

import (
	"log/slog"
	"net/http"
	"strings"

	"kgcore/internal/permission"
	dErrors "kgcore/pkg/domain-errors"
	"kgcore/pkg/platform/httputil"
	"kgcore/pkg/requestcontext"
)

// Authenticator turns a bearer token into a principal.
type Authenticator interface {
	Authenticate(token string) (*permission.Principal, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// principal, user id and client id in the request context.
func RequireAuth(auth Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			principal, err := auth.Authenticate(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, err)
				return
			}

			ctx = permission.WithPrincipal(ctx, principal)
			ctx = requestcontext.WithUserID(ctx, principal.UserID())
			if principal.ClientID() != "" {
				ctx = requestcontext.WithClientID(ctx, principal.ClientID())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
