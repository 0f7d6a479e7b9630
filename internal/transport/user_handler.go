package transport

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"fotoljay/internal/domain"
	"fotoljay/internal/middleware"
	"fotoljay/internal/repository"
	"fotoljay/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// RegisterRequest represents the registration request payload
type RegisterRequest struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=8"`
	Username *string `json:"username" validate:"omitempty,min=3,max=50"`
	Phone    *string `json:"phone" validate:"omitempty,max=30"`
}

// LoginRequest represents the login request payload
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest represents the token refresh request payload
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// UpdateProfileRequest carries the editable profile fields
type UpdateProfileRequest struct {
	Username    *string `json:"username" validate:"omitempty,min=3,max=50"`
	DisplayName *string `json:"display_name" validate:"omitempty,max=100"`
	Phone       *string `json:"phone" validate:"omitempty,max=30"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	User         UserProfile `json:"user"`
}

// RefreshResponse carries the rotated token pair
type RefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// UserProfile represents user profile data
type UserProfile struct {
	ID          string  `json:"id"`
	Email       string  `json:"email"`
	Username    *string `json:"username,omitempty"`
	DisplayName *string `json:"display_name,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Role        string  `json:"role"`
	IsActive    bool    `json:"is_active"`
}

// UserQuery holds the admin directory query string
type UserQuery struct {
	Role     string `json:"role" validate:"omitempty,oneof=VENDEUR MODERATEUR ADMIN"`
	IsActive string `json:"isActive" validate:"omitempty,boolean"`
}

// UserPage is the admin directory response
type UserPage struct {
	Users  []UserProfile `json:"users"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// UserStats summarises a seller's activity
type UserStats struct {
	Products            int `json:"products"`
	UnreadNotifications int `json:"unread_notifications"`
}

func toProfile(user *domain.User) UserProfile {
	return UserProfile{
		ID:          user.ID.String(),
		Email:       user.Email,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		Phone:       user.Phone,
		Role:        string(user.Role),
		IsActive:    user.IsActive,
	}
}

// UserHandler handles HTTP requests for account operations
type UserHandler struct {
	userService         service.UserService
	listingService      service.ListingService
	notificationService service.NotificationService
	accessExpiry        time.Duration
	secureCookies       bool
	logger              *zap.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(
	userService service.UserService,
	listingService service.ListingService,
	notificationService service.NotificationService,
	accessExpiry time.Duration,
	secureCookies bool,
	logger *zap.Logger,
) *UserHandler {
	return &UserHandler{
		userService:         userService,
		listingService:      listingService,
		notificationService: notificationService,
		accessExpiry:        accessExpiry,
		secureCookies:       secureCookies,
		logger:              logger,
	}
}

// RegisterRoutes registers all account routes
func (h *UserHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/refresh", h.RefreshToken)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Post("/logout", h.Logout)
			r.Get("/profile", h.GetProfile)
			r.Put("/profile", h.UpdateProfile)
			r.Delete("/profile", h.Deactivate)
			r.Get("/profile/stats", h.GetStats)
		})
	})

	r.With(authMiddleware, middleware.RequireRole(h.logger, domain.RoleAdmin)).Get("/api/users", h.ListUsers)
}

func (h *UserHandler) setTokenCookie(w http.ResponseWriter, role domain.Role, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.CookieName(role),
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// Register handles seller registration
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Registration validation failed", zap.Error(err))
		middleware.RespondWithDecodeError(w, err)
		return
	}

	user, err := h.userService.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
		Phone:    req.Phone,
	})
	if err != nil {
		if err == repository.ErrUserAlreadyExists {
			middleware.RespondWithError(w, http.StatusBadRequest, "user with this email already exists")
			return
		}
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}

	h.logger.Info("User registered successfully", zap.String("user_id", user.ID.String()))
	middleware.RespondWithJSON(w, http.StatusCreated, toProfile(user))
}

// Login handles user authentication and sets the role cookie
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Login validation failed", zap.Error(err))
		middleware.RespondWithDecodeError(w, err)
		return
	}

	session, err := h.userService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Debug("Login failed", zap.Error(err))
		switch err {
		case service.ErrInvalidCredentials:
			middleware.RespondWithError(w, http.StatusUnauthorized, "invalid email or password")
		case service.ErrAccountDisabled:
			middleware.RespondWithError(w, http.StatusForbidden, "account is deactivated")
		default:
			middleware.RespondWithDomainError(w, err, h.logger)
		}
		return
	}

	h.setTokenCookie(w, session.User.Role, session.AccessToken, int(h.accessExpiry.Seconds()))

	h.logger.Info("User logged in", zap.String("user_id", session.User.ID.String()))
	middleware.RespondWithJSON(w, http.StatusOK, LoginResponse{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		User:         toProfile(session.User),
	})
}

// Logout revokes the refresh token and clears the role cookie
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debug("Logout decode failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.userService.Logout(r.Context(), req.RefreshToken); err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}

	if actor, ok := middleware.GetActor(r.Context()); ok {
		h.setTokenCookie(w, actor.Role, "", -1)
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "logged out successfully"})
}

// RefreshToken rotates the refresh token and renews the role cookie
func (h *UserHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Refresh token validation failed", zap.Error(err))
		middleware.RespondWithDecodeError(w, err)
		return
	}

	session, err := h.userService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.logger.Debug("Token refresh failed", zap.Error(err))
		switch err {
		case service.ErrInvalidToken:
			middleware.RespondWithError(w, http.StatusUnauthorized, "invalid refresh token")
		case service.ErrTokenExpired:
			middleware.RespondWithError(w, http.StatusUnauthorized, "refresh token expired")
		case service.ErrAccountDisabled:
			middleware.RespondWithError(w, http.StatusForbidden, "account is deactivated")
		default:
			middleware.RespondWithDomainError(w, err, h.logger)
		}
		return
	}

	h.setTokenCookie(w, session.User.Role, session.AccessToken, int(h.accessExpiry.Seconds()))
	middleware.RespondWithJSON(w, http.StatusOK, RefreshResponse{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
	})
}

// GetProfile returns the caller's account
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	user, err := h.userService.GetUserByID(r.Context(), actor.ID)
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, toProfile(user))
}

// UpdateProfile edits the caller's username, display name or phone
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	user, err := h.userService.UpdateProfile(r.Context(), actor.ID, service.ProfileInput{
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Phone:       req.Phone,
	})
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, toProfile(user))
}

// Deactivate disables the caller's account
func (h *UserHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	user, err := h.userService.Deactivate(r.Context(), actor.ID)
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}
	h.setTokenCookie(w, actor.Role, "", -1)

	h.logger.Info("User deactivated", zap.String("user_id", user.ID.String()))
	middleware.RespondWithJSON(w, http.StatusOK, toProfile(user))
}

// GetStats returns the caller's product and unread notification counts
func (h *UserHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	_, products, err := h.listingService.List(r.Context(), repository.ListingFilter{SellerID: &actor.ID, Limit: 1})
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}
	unread, err := h.notificationService.UnreadCount(r.Context(), actor.ID)
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, UserStats{Products: products, UnreadNotifications: unread})
}

// ListUsers pages through the accounts for admins
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	query := UserQuery{Role: q.Get("role"), IsActive: q.Get("isActive")}
	if err := middleware.ValidateRequest(&query); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	filter := repository.UserFilter{}
	if query.Role != "" {
		role := domain.Role(query.Role)
		filter.Role = &role
	}
	if query.IsActive != "" {
		active, _ := strconv.ParseBool(query.IsActive)
		filter.IsActive = &active
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	filter = filter.Normalize()

	users, total, err := h.userService.List(r.Context(), actor, filter)
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}

	page := UserPage{Users: make([]UserProfile, 0, len(users)), Total: total, Limit: filter.Limit, Offset: filter.Offset}
	for _, u := range users {
		page.Users = append(page.Users, toProfile(u))
	}
	middleware.RespondWithJSON(w, http.StatusOK, page)
}
