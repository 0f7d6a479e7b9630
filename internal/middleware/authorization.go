package middleware

import (
	"net/http"
	"strings"

	"fotoljay/internal/domain"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// RequireRole lets through actors holding one of roles. Anonymous callers get
// 401 and other roles 403.
func RequireRole(logger *zap.Logger, roles ...domain.Role) func(http.Handler) http.Handler {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	denied := "reserved to " + strings.Join(names, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := GetActor(r.Context())
			if !ok {
				RespondWithError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if actor.HasRole(roles...) {
				next.ServeHTTP(w, r)
				return
			}

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			logger.Info("Role denied",
				zap.String("user_id", actor.ID.String()),
				zap.String("role", string(actor.Role)),
				zap.String("route", r.Method+" "+route),
			)
			RespondWithError(w, http.StatusForbidden, denied)
		})
	}
}
