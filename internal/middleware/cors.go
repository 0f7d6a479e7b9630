package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// corsOptions lets the web clients send the role cookies and read the limiter
// headers. Without configured origins, development accepts any localhost port
// and other environments refuse every cross-origin request.
func corsOptions(allowedOrigins []string, isDevelopment bool) cors.Options {
	var originFunc func(r *http.Request, origin string) bool
	if len(allowedOrigins) == 0 {
		if isDevelopment {
			allowedOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}
		} else {
			originFunc = func(*http.Request, string) bool { return false }
		}
	}
	return cors.Options{
		AllowOriginFunc: originFunc,
		AllowedOrigins:  allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{
			"X-Request-Id", "Retry-After",
			"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset",
		},
		AllowCredentials: true,
		MaxAge:           600,
	}
}

func CORSMiddleware(allowedOrigins []string, isDevelopment bool) func(http.Handler) http.Handler {
	return cors.Handler(corsOptions(allowedOrigins, isDevelopment))
}

// BaseStack runs ahead of every route
func BaseStack() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		middleware.RequestID,
		echoRequestID,
		middleware.RealIP,
		middleware.CleanPath,
		middleware.Recoverer,
	}
}

// echoRequestID returns the request id so clients can quote it in reports
func echoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set("X-Request-Id", id)
		}
		next.ServeHTTP(w, r)
	})
}
