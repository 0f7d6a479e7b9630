package server

import (
	"fmt"
	"net/http"
	"time"

	"fotoljay/internal/config"
	"fotoljay/internal/metrics"
	custommiddleware "fotoljay/internal/middleware"
	"fotoljay/internal/service"
	"fotoljay/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Dependencies are the wired services behind the HTTP API
type Dependencies struct {
	Users         service.UserService
	Listings      service.ListingService
	Notifications service.NotificationService
	Metrics       *metrics.Metrics
	// Redis enables rate limiting when set.
	Redis *redis.Client
	// Health reports backing store status for /health.
	Health func() map[string]string
	// Closers run in order on Close.
	Closers []func() error
}

type Server struct {
	*http.Server
	config  *config.Config
	logger  *zap.Logger
	closers []func() error
}

// NewRouter builds the chi router with every route and middleware
func NewRouter(cfg *config.Config, logger *zap.Logger, deps Dependencies) http.Handler {
	router := chi.NewRouter()

	for _, mw := range custommiddleware.BaseStack() {
		router.Use(mw)
	}
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, cfg.Server.IsDevelopment()))
	router.Use(custommiddleware.LoggingMiddleware(logger, deps.Metrics))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok"}
		if deps.Health != nil {
			for k, v := range deps.Health() {
				status["db_"+k] = v
			}
			if status["db_status"] == "down" {
				custommiddleware.RespondWithJSON(w, http.StatusServiceUnavailable, status)
				return
			}
		}
		custommiddleware.RespondWithJSON(w, http.StatusOK, status)
	})
	if deps.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)
	optionalAuth := custommiddleware.OptionalAuth(cfg.JWT.Secret, logger)

	userHandler := transport.NewUserHandler(
		deps.Users,
		deps.Listings,
		deps.Notifications,
		time.Duration(cfg.JWT.AccessExpiry)*time.Minute,
		!cfg.Server.IsDevelopment(),
		logger,
	)
	listingHandler := transport.NewListingHandler(deps.Listings, cfg.Listing.MaxUploadBytes, logger)
	notificationHandler := transport.NewNotificationHandler(deps.Notifications, logger)

	router.Group(func(r chi.Router) {
		if deps.Redis != nil && cfg.RateLimit.Enabled {
			// optional auth first so the limiter can key on the user
			r.Use(optionalAuth)
			limiter := custommiddleware.NewRateLimiter(deps.Redis, "fotoljay:ratelimit", deps.Metrics, logger,
				custommiddleware.RateRule{
					Name:       "auth",
					Method:     http.MethodPost,
					PathPrefix: "/api/auth/login",
					Limit:      cfg.RateLimit.AuthRequestsPerWindow,
					Window:     cfg.RateLimit.Window,
				},
				custommiddleware.RateRule{
					Name:       "register",
					Method:     http.MethodPost,
					PathPrefix: "/api/auth/register",
					Limit:      cfg.RateLimit.AuthRequestsPerWindow,
					Window:     cfg.RateLimit.Window,
				},
				custommiddleware.RateRule{
					Name:   "api",
					Limit:  cfg.RateLimit.RequestsPerWindow,
					Window: cfg.RateLimit.Window,
				},
			)
			r.Use(limiter.Middleware)
		}

		userHandler.RegisterRoutes(r, authMiddleware)
		listingHandler.RegisterRoutes(r, authMiddleware, optionalAuth)
		notificationHandler.RegisterRoutes(r, authMiddleware)
	})

	return router
}

func NewServer(cfg *config.Config, logger *zap.Logger, deps Dependencies) *Server {
	return &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      NewRouter(cfg, logger, deps),
			IdleTimeout:  time.Minute,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		config:  cfg,
		logger:  logger,
		closers: deps.Closers,
	}
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			s.logger.Error("Failed to close resource", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
