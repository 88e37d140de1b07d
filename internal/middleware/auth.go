package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"basekit/internal/domain"
)

type actorKey struct{}

// WithActor stores the request actor in the context.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext extracts the actor from the context. Requests that never
// passed through the auth middleware resolve to the anonymous actor.
func ActorFromContext(ctx context.Context) domain.Actor {
	if actor, ok := ctx.Value(actorKey{}).(domain.Actor); ok {
		return actor
	}
	return domain.Anonymous()
}

// ClaimMapping names the JWT claims that carry application identity.
type ClaimMapping struct {
	RoleClaim string // claim holding the application role
	OrgClaim  string // claim holding the organization ID
}

// Authenticator resolves the Bearer token on each request into an actor.
// Requests without a token pass through as the anonymous actor; whether
// anonymous access is allowed is decided per table and operation by the
// permission engine, not here. A token that is present but invalid is
// rejected immediately with 401.
func Authenticator(validator JWTValidator, mapping ClaimMapping, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), domain.Anonymous())))
				return
			}

			tokenStr, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok {
				writeUnauthenticated(w, "Authorization header must use the Bearer scheme")
				return
			}

			claims, err := validator.Validate(r.Context(), tokenStr)
			if err != nil {
				logger.Debug("token rejected", "error", err, "request_id", RequestIDFromContext(r.Context()))
				writeUnauthenticated(w, "invalid or expired token")
				return
			}
			if claims.Subject == "" {
				writeUnauthenticated(w, "token is missing the sub claim")
				return
			}

			actor := domain.Actor{
				UserID:         claims.Subject,
				Role:           claims.StringClaim(mapping.RoleClaim),
				OrganizationID: claims.StringClaim(mapping.OrgClaim),
				Authenticated:  true,
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// RequireRole gates a route subtree on an exact actor role. Anonymous actors
// get 401, authenticated actors with a different role get 403.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := ActorFromContext(r.Context())
			if !actor.Authenticated {
				writeUnauthenticated(w, "authentication required")
				return
			}
			if actor.Role != role {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"error":   "forbidden",
					"message": "insufficient role",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthenticated(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   "unauthenticated",
		"message": message,
	})
}
