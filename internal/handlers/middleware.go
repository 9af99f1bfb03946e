package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prudhvinik1/edgerelay/internal/models"
	"github.com/prudhvinik1/edgerelay/internal/services"
)

// Authenticator resolves a bearer token to the identity it was issued for.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.UserID, error)
}

type ctxKey struct{}

// UserIDFromContext returns the identity stored by RequireAuth.
func UserIDFromContext(ctx context.Context) (models.UserID, bool) {
	id, ok := ctx.Value(ctxKey{}).(models.UserID)
	return id, ok && id != ""
}

func withUserID(ctx context.Context, id models.UserID) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// tokenFromRequest reads the bearer token from the Authorization header, the
// x-auth-token header, or the token query parameter (browsers cannot set
// headers on a WebSocket upgrade).
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if token := r.Header.Get("x-auth-token"); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

// RequireAuth rejects requests without a valid token.
func RequireAuth(auth Authenticator, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "missing token")
				return
			}

			id, err := auth.Authenticate(r.Context(), token)
			if errors.Is(err, services.ErrInvalidToken) {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if err != nil {
				log.Error("Failed to authenticate request", "error", err)
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), id)))
		})
	}
}
