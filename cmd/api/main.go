package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"fotoljay/internal/config"
	"fotoljay/internal/database"
	"fotoljay/internal/events"
	"fotoljay/internal/logger"
	"fotoljay/internal/metrics"
	"fotoljay/internal/repository"
	"fotoljay/internal/server"
	"fotoljay/internal/service"
	"fotoljay/internal/storage"
	"fotoljay/internal/worker"
	"fotoljay/migrations"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type repositories struct {
	users         repository.UserRepository
	refreshTokens repository.RefreshTokenRepository
	listings      repository.ListingRepository
	notifications repository.NotificationRepository
	health        func() map[string]string
	close         func() error
}

func openRepositories(cfg *config.Config, log *zap.Logger) (*repositories, error) {
	if cfg.Database.Driver == "memory" {
		log.Warn("Using in-memory repositories, data is lost on restart")
		return &repositories{
			users:         repository.NewMemoryUserRepository(),
			refreshTokens: repository.NewMemoryRefreshTokenRepository(),
			listings:      repository.NewMemoryListingRepository(),
			notifications: repository.NewMemoryNotificationRepository(),
			close:         func() error { return nil },
		}, nil
	}

	dbService, err := database.New(cfg.Database)
	if err != nil {
		return nil, err
	}
	db := dbService.DB()
	log.Info("Database health check", zap.Any("health", dbService.Health()))

	if _, err := database.Migrate(context.Background(), db, migrations.FS, log); err != nil {
		dbService.Close()
		return nil, err
	}

	return &repositories{
		users:         repository.NewUserRepository(db),
		refreshTokens: repository.NewRefreshTokenRepository(db),
		listings:      repository.NewListingRepository(db),
		notifications: repository.NewNotificationRepository(db),
		health:        dbService.Health,
		close:         dbService.Close,
	}, nil
}

// connectRedis returns nil when Redis is not configured or unreachable
func connectRedis(cfg config.RedisConfig, log *zap.Logger) *redis.Client {
	if cfg.Host == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("Redis unavailable, rate limiting disabled and orphan queue kept in memory", zap.Error(err))
		client.Close()
		return nil
	}
	return client
}

func openPhotoStore(cfg *config.Config, log *zap.Logger) (storage.PhotoStore, error) {
	if cfg.Storage.AccessKey == "" {
		log.Warn("No object storage credentials, keeping photos in memory")
		return storage.NewMemoryPhotoStore(cfg.Storage.PublicURL), nil
	}
	return storage.NewMinioPhotoStore(cfg.Storage, log)
}

func openPublisher(cfg config.NATSConfig, log *zap.Logger) (events.Publisher, func() error, error) {
	if cfg.URL == "" {
		log.Info("NATS not configured, listing events are not published")
		return events.NewNopPublisher(), func() error { return nil }, nil
	}

	conn, err := events.Connect(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	publisher, err := events.NewNATSPublisher(conn, cfg.SubjectPrefix)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return publisher, conn.Drain, nil
}

func gracefulShutdown(apiServer *server.Server, log *zap.Logger, stopWorker context.CancelFunc, done chan bool) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	log.Info("Shutting down gracefully, press Ctrl+C again to force")
	stop()
	stopWorker()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	if err := apiServer.Close(); err != nil {
		log.Error("Error closing server resources", zap.Error(err))
	}

	log.Info("Server exiting")
	done <- true
}

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logger.New(cfg.Server.Env, cfg.Server.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()
	defer logger.CaptureStdLog(log)()

	log.Info("Starting fotoljay API",
		zap.String("port", cfg.Server.Port),
		zap.String("db_driver", cfg.Database.Driver),
	)

	if cfg.JWT.Secret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	m := metrics.New()

	repos, err := openRepositories(cfg, log)
	if err != nil {
		log.Fatal("Failed to open repositories", zap.Error(err))
	}

	redisClient := connectRedis(cfg.Redis, log)
	orphans := storage.NewMemoryOrphanQueue()
	if redisClient != nil {
		orphans = storage.NewRedisOrphanQueue(redisClient, storage.DefaultOrphanKey)
	}

	photos, err := openPhotoStore(cfg, log)
	if err != nil {
		log.Fatal("Failed to open photo storage", zap.Error(err))
	}

	publisher, closePublisher, err := openPublisher(cfg.NATS, log)
	if err != nil {
		log.Fatal("Failed to connect to NATS", zap.Error(err))
	}

	userService := service.NewUserService(repos.users, repos.refreshTokens, service.TokenSettings{
		Secret:        cfg.JWT.Secret,
		AccessExpiry:  time.Duration(cfg.JWT.AccessExpiry) * time.Minute,
		RefreshExpiry: time.Duration(cfg.JWT.RefreshExpiry) * 24 * time.Hour,
	})
	notificationService := service.NewNotificationService(repos.notifications, m, log)
	listingService := service.NewListingService(
		repos.listings,
		notificationService,
		photos,
		orphans,
		publisher,
		m,
		log,
		service.ListingSettings{
			RepublishDays:  cfg.Listing.RepublishDays,
			DefaultVipDays: cfg.Listing.DefaultVipDays,
			MaxVipDays:     cfg.Listing.MaxVipDays,
		},
	)

	closers := []func() error{closePublisher}
	if redisClient != nil {
		closers = append(closers, redisClient.Close)
	}
	closers = append(closers, repos.close)

	srv := server.NewServer(cfg, log, server.Dependencies{
		Users:         userService,
		Listings:      listingService,
		Notifications: notificationService,
		Metrics:       m,
		Redis:         redisClient,
		Health:        repos.health,
		Closers:       closers,
	})

	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	if cfg.Worker.Enabled {
		maintenance := service.NewMaintenanceService(repos.listings, notificationService, photos, orphans, m, log, service.MaintenanceSettings{
			ReminderWindow: time.Duration(cfg.Listing.ReminderWindowDays) * 24 * time.Hour,
			CleanupBatch:   cfg.Worker.CleanupBatch,
		})
		w := worker.NewMaintenanceWorker(maintenance, worker.Intervals{
			Reminder: cfg.Worker.ReminderInterval,
			Vip:      cfg.Worker.VipInterval,
			Cleanup:  cfg.Worker.CleanupInterval,
		}, log)
		w.Add(worker.Job{
			Name:     "refresh_token_cleanup",
			Interval: cfg.Worker.TokenCleanupInterval,
			Run:      userService.PurgeExpiredTokens,
		})
		go func() {
			defer close(workerDone)
			if err := w.Run(workerCtx); err != nil {
				log.Error("Maintenance worker stopped", zap.Error(err))
			}
		}()
	} else {
		close(workerDone)
	}

	done := make(chan bool, 1)
	go gracefulShutdown(srv, log, stopWorker, done)

	log.Info("Server listening", zap.String("addr", srv.Addr))

	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		log.Fatal("HTTP server error", zap.Error(err))
	}

	<-done
	<-workerDone
	log.Info("Graceful shutdown complete")
}
