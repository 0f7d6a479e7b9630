package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fotoljay/internal/domain"
	"fotoljay/internal/middleware"
	"fotoljay/internal/repository"
	"fotoljay/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func newTestUserHandler() (*UserHandler, service.UserService) {
	userService := service.NewUserService(
		repository.NewMemoryUserRepository(),
		repository.NewMemoryRefreshTokenRepository(),
		service.TokenSettings{Secret: testSecret},
	)
	logger := zap.NewNop()
	notifications := service.NewNotificationService(repository.NewMemoryNotificationRepository(), nil, logger)
	handler := NewUserHandler(userService, nil, notifications, time.Hour, false, logger)
	return handler, userService
}

func postJSON(t *testing.T, path string, payload interface{}) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestProperty_InvalidRegistrationDataIsRejected(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("registration with invalid data returns validation errors", prop.ForAll(
		func(invalidCase int) bool {
			handler, _ := newTestUserHandler()

			short := "ab"
			var reqBody RegisterRequest
			switch invalidCase % 4 {
			case 0:
				reqBody = RegisterRequest{Email: "", Password: "ValidPass123"}
			case 1:
				reqBody = RegisterRequest{Email: "not-an-email", Password: "ValidPass123"}
			case 2:
				reqBody = RegisterRequest{Email: "test@example.com", Password: "short"}
			case 3:
				reqBody = RegisterRequest{Email: "test@example.com", Password: "ValidPass123", Username: &short}
			}

			w := httptest.NewRecorder()
			handler.Register(w, postJSON(t, "/api/auth/register", reqBody))

			if w.Code != http.StatusBadRequest {
				t.Logf("FAIL: Expected 400 status code, got %d", w.Code)
				return false
			}

			var response map[string]interface{}
			if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
				t.Logf("FAIL: Could not decode error response: %v", err)
				return false
			}
			if _, exists := response["error"]; !exists {
				t.Logf("FAIL: Response missing 'error' field")
				return false
			}
			return true
		},
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_RegistrationCreatesSeller(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("registration returns an active seller profile", prop.ForAll(
		func(email string, password string) bool {
			handler, _ := newTestUserHandler()

			w := httptest.NewRecorder()
			handler.Register(w, postJSON(t, "/api/auth/register", RegisterRequest{Email: email, Password: password}))
			if w.Code != http.StatusCreated {
				t.Logf("FAIL: Expected 201 status code, got %d", w.Code)
				return false
			}

			var profile UserProfile
			if err := json.NewDecoder(w.Body).Decode(&profile); err != nil {
				t.Logf("FAIL: Could not decode response: %v", err)
				return false
			}
			if _, err := uuid.Parse(profile.ID); err != nil {
				t.Logf("FAIL: Profile ID is not a valid UUID: %v", err)
				return false
			}
			return profile.Email == email &&
				profile.Role == string(domain.RoleSeller) &&
				profile.IsActive
		},
		gen.RegexMatch(`[a-z]{3,10}@[a-z]{3,8}\.(com|org|net)`),
		gen.RegexMatch(`[A-Za-z0-9!@#$%]{8,20}`),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_ValidLoginSetsRoleCookie(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("valid login returns both tokens and the seller cookie", prop.ForAll(
		func(email string, password string) bool {
			handler, userService := newTestUserHandler()

			if _, err := userService.Register(context.Background(), service.RegisterInput{Email: email, Password: password}); err != nil {
				t.Logf("FAIL: register: %v", err)
				return false
			}

			w := httptest.NewRecorder()
			handler.Login(w, postJSON(t, "/api/auth/login", LoginRequest{Email: email, Password: password}))
			if w.Code != http.StatusOK {
				t.Logf("FAIL: Expected 200 status code, got %d", w.Code)
				return false
			}

			var loginResp LoginResponse
			if err := json.NewDecoder(w.Body).Decode(&loginResp); err != nil {
				t.Logf("FAIL: Could not decode login response: %v", err)
				return false
			}
			if loginResp.AccessToken == "" || loginResp.RefreshToken == "" {
				t.Logf("FAIL: Missing token in login response")
				return false
			}

			var cookie *http.Cookie
			for _, c := range w.Result().Cookies() {
				if c.Name == middleware.CookieName(domain.RoleSeller) {
					cookie = c
				}
			}
			if cookie == nil || cookie.Value != loginResp.AccessToken || !cookie.HttpOnly {
				t.Logf("FAIL: token_vendeur cookie not set correctly")
				return false
			}

			claims, err := userService.ValidateToken(loginResp.AccessToken)
			if err != nil {
				t.Logf("FAIL: Access token validation failed: %v", err)
				return false
			}
			return claims.UserID.String() == loginResp.User.ID && claims.Role == domain.RoleSeller
		},
		gen.RegexMatch(`[a-z]{3,10}@[a-z]{3,8}\.(com|org|net)`),
		gen.RegexMatch(`[A-Za-z0-9!@#$%]{8,20}`),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestUserHandler_DuplicateRegistration(t *testing.T) {
	handler, _ := newTestUserHandler()
	body := RegisterRequest{Email: "awa@example.com", Password: "Password123"}

	w := httptest.NewRecorder()
	handler.Register(w, postJSON(t, "/api/auth/register", body))
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	handler.Register(w, postJSON(t, "/api/auth/register", body))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "already exists")
}

func TestUserHandler_LoginFailures(t *testing.T) {
	handler, userService := newTestUserHandler()
	ctx := context.Background()

	user, err := userService.Register(ctx, service.RegisterInput{Email: "moussa@example.com", Password: "Password123"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	handler.Login(w, postJSON(t, "/api/auth/login", LoginRequest{Email: "moussa@example.com", Password: "wrong-password"}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	_, err = userService.Deactivate(ctx, user.ID)
	require.NoError(t, err)

	w = httptest.NewRecorder()
	handler.Login(w, postJSON(t, "/api/auth/login", LoginRequest{Email: "moussa@example.com", Password: "Password123"}))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUserHandler_ProfileRequiresToken(t *testing.T) {
	handler, userService := newTestUserHandler()
	ctx := context.Background()

	router := newTestRouter(func(r chi.Router) {
		handler.RegisterRoutes(r, middleware.AuthMiddleware(testSecret, zap.NewNop()))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	_, err := userService.Register(ctx, service.RegisterInput{Email: "fatou@example.com", Password: "Password123"})
	require.NoError(t, err)
	session, err := userService.Login(ctx, "fatou@example.com", "Password123")
	require.NoError(t, err)
	access := session.AccessToken

	// the role cookie alone authenticates
	req = httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil)
	req.AddCookie(&http.Cookie{Name: middleware.CookieName(domain.RoleSeller), Value: access})
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var profile UserProfile
	require.NoError(t, json.NewDecoder(w.Body).Decode(&profile))
	assert.Equal(t, "fatou@example.com", profile.Email)

	displayName := "Fatou D."
	body, err := json.Marshal(UpdateProfileRequest{DisplayName: &displayName})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPut, "/api/auth/profile", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+access)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&profile))
	require.NotNil(t, profile.DisplayName)
	assert.Equal(t, displayName, *profile.DisplayName)
}

func TestUserHandler_RefreshRotatesTokens(t *testing.T) {
	handler, userService := newTestUserHandler()
	ctx := context.Background()

	_, err := userService.Register(ctx, service.RegisterInput{Email: "ousmane@example.com", Password: "Password123"})
	require.NoError(t, err)
	session, err := userService.Login(ctx, "ousmane@example.com", "Password123")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	handler.RefreshToken(w, postJSON(t, "/api/auth/refresh", RefreshRequest{RefreshToken: session.RefreshToken}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rotated RefreshResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&rotated))
	assert.NotEmpty(t, rotated.AccessToken)
	assert.NotEqual(t, session.RefreshToken, rotated.RefreshToken)

	var renewed bool
	for _, c := range w.Result().Cookies() {
		renewed = renewed || (c.Name == middleware.CookieName(domain.RoleSeller) && c.Value == rotated.AccessToken)
	}
	assert.True(t, renewed, "role cookie should carry the new access token")

	// replaying the old token fails
	w = httptest.NewRecorder()
	handler.RefreshToken(w, postJSON(t, "/api/auth/refresh", RefreshRequest{RefreshToken: session.RefreshToken}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUserHandler_ListUsersForAdmins(t *testing.T) {
	handler, userService := newTestUserHandler()
	ctx := context.Background()
	router := newTestRouter(func(r chi.Router) {
		handler.RegisterRoutes(r, middleware.AuthMiddleware(testSecret, zap.NewNop()))
	})

	for _, email := range []string{"awa@example.com", "moussa@example.com"} {
		_, err := userService.Register(ctx, service.RegisterInput{Email: email, Password: "Password123"})
		require.NoError(t, err)
	}
	admin := domain.Actor{ID: uuid.New(), Role: domain.RoleAdmin}
	seller := domain.Actor{ID: uuid.New(), Role: domain.RoleSeller}

	get := func(actor *domain.Actor, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if actor != nil {
			req.Header.Set("Authorization", "Bearer "+tokenFor(t, *actor))
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, get(nil, "/api/users").Code)
	assert.Equal(t, http.StatusForbidden, get(&seller, "/api/users").Code)

	w := get(&admin, "/api/users?role=VENDEUR&isActive=true")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page UserPage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&page))
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Users, 2)
	assert.Equal(t, repository.DefaultUserPageSize, page.Limit)
	for _, u := range page.Users {
		assert.Equal(t, string(domain.RoleSeller), u.Role)
	}

	w = get(&admin, "/api/users?role=GUEST")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "role must be one of VENDEUR, MODERATEUR, ADMIN")
}
