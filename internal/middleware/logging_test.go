package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fotoljay/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAccessLogCarriesRouteAndUser(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	m := metrics.New()

	r := chi.NewRouter()
	r.Use(LoggingMiddleware(zap.New(core), m))
	r.With(AuthMiddleware(testSecret, zap.NewNop())).Get("/api/products/{id}/history", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {})

	userID := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/api/products/"+uuid.NewString()+"/history", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, userID, "VENDEUR", time.Hour))
	r.ServeHTTP(httptest.NewRecorder(), req)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	entries := logs.All()
	require.Len(t, entries, 2)

	fields := entries[0].ContextMap()
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "/api/products/{id}/history", fields["route"])
	assert.Equal(t, userID, fields["user_id"])
	assert.EqualValues(t, http.StatusOK, fields["status"])

	// implicit 200 and debug level for health checks
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
	assert.EqualValues(t, http.StatusOK, entries[1].ContextMap()["status"])
	_, hasUser := entries[1].ContextMap()["user_id"]
	assert.False(t, hasUser)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.True(t, strings.Contains(w.Body.String(), `route="/api/products/{id}/history"`))
}
