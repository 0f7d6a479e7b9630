package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"fotoljay/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const ActorKey contextKey = "actor"

var (
	errMissingToken = errors.New("missing authorization token")
	errTokenFormat  = errors.New("invalid authorization header format")
	errTokenClaims  = errors.New("invalid token claims")
)

// CookieName is the cookie carrying the access token of a role, e.g. token_vendeur
func CookieName(role domain.Role) string {
	return "token_" + strings.ToLower(string(role))
}

// cookieRoles is the lookup order when several role cookies are present
var cookieRoles = []domain.Role{domain.RoleAdmin, domain.RoleModerator, domain.RoleSeller}

// tokenFromRequest reads the bearer token, falling back to the role cookies
func tokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return "", errTokenFormat
		}
		return parts[1], nil
	}

	for _, role := range cookieRoles {
		if c, err := r.Cookie(CookieName(role)); err == nil && c.Value != "" {
			return c.Value, nil
		}
	}
	return "", errMissingToken
}

// actorClaims is the subset of the access token the middleware reads
type actorClaims struct {
	UserID uuid.UUID   `json:"user_id"`
	Role   domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// parseActor validates the token signature and expiry and builds the actor
func parseActor(jwtSecret, tokenString string) (domain.Actor, error) {
	var claims actorClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte(jwtSecret), nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return domain.Actor{}, err
	}
	if claims.UserID == uuid.Nil || !claims.Role.Valid() {
		return domain.Actor{}, errTokenClaims
	}
	return domain.Actor{ID: claims.UserID, Role: claims.Role}, nil
}

// AuthMiddleware validates JWT tokens and puts the actor in the request context
func AuthMiddleware(jwtSecret string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := tokenFromRequest(r)
			if err != nil {
				logger.Debug("Rejected unauthenticated request", zap.Error(err))
				RespondWithError(w, http.StatusUnauthorized, err.Error())
				return
			}

			actor, err := parseActor(jwtSecret, tokenString)
			if err != nil {
				logger.Debug("Token validation failed", zap.Error(err))
				if errors.Is(err, jwt.ErrTokenExpired) {
					RespondWithError(w, http.StatusUnauthorized, "token expired")
				} else {
					RespondWithError(w, http.StatusUnauthorized, "invalid token")
				}
				return
			}

			logger.Debug("User authenticated",
				zap.String("user_id", actor.ID.String()),
				zap.String("role", string(actor.Role)),
			)

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// OptionalAuth attaches the actor when a valid token is present and lets
// anonymous requests through otherwise
func OptionalAuth(jwtSecret string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := tokenFromRequest(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			actor, err := parseActor(jwtSecret, tokenString)
			if err != nil {
				logger.Debug("Ignoring invalid optional token", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// WithActor stores the authenticated actor in ctx
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	noteActor(ctx, actor.ID.String())
	return context.WithValue(ctx, ActorKey, actor)
}

// GetActor extracts the authenticated actor from request context
func GetActor(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(ActorKey).(domain.Actor)
	return actor, ok
}
