package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Storage   StorageConfig
	NATS      NATSConfig
	Listing   ListingConfig
	Worker    WorkerConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
}

// IsDevelopment reports whether the server runs outside production
func (s ServerConfig) IsDevelopment() bool {
	return s.Env != "production"
}

type DatabaseConfig struct {
	Driver   string // "postgres" or "memory"
	Host     string
	Port     string
	User     string
	Password string
	Database string
	Schema   string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret        string
	AccessExpiry  int // in minutes
	RefreshExpiry int // in days
}

// StorageConfig points at the S3-compatible bucket holding listing photos
type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

type ListingConfig struct {
	RepublishDays      int
	DefaultVipDays     int
	MaxVipDays         int
	ReminderWindowDays int
	MaxUploadBytes     int64
}

type WorkerConfig struct {
	Enabled              bool
	ReminderInterval     time.Duration
	VipInterval          time.Duration
	CleanupInterval      time.Duration
	CleanupBatch         int
	TokenCleanupInterval time.Duration
}

type RateLimitConfig struct {
	Enabled           bool
	RequestsPerWindow int
	// AuthRequestsPerWindow budgets login and registration separately. Zero
	// leaves them on the general budget.
	AuthRequestsPerWindow int
	Window                time.Duration
}

func Load() *Config {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_ENV", "development")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", []string{"http://localhost:4200"})
	viper.SetDefault("DB_DRIVER", "postgres")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SCHEMA", "public")
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("JWT_ACCESS_EXPIRY", 60)
	viper.SetDefault("JWT_REFRESH_EXPIRY", 7)
	viper.SetDefault("STORAGE_ENDPOINT", "localhost:9000")
	viper.SetDefault("STORAGE_BUCKET", "fotoljay-photos")
	viper.SetDefault("STORAGE_USE_SSL", false)
	viper.SetDefault("NATS_SUBJECT_PREFIX", "fotoljay")
	viper.SetDefault("LISTING_REPUBLISH_DAYS", 30)
	viper.SetDefault("LISTING_DEFAULT_VIP_DAYS", 30)
	viper.SetDefault("LISTING_MAX_VIP_DAYS", 365)
	viper.SetDefault("LISTING_REMINDER_WINDOW_DAYS", 3)
	viper.SetDefault("LISTING_MAX_UPLOAD_BYTES", 5*1024*1024)
	viper.SetDefault("WORKER_ENABLED", true)
	viper.SetDefault("WORKER_REMINDER_INTERVAL", time.Hour)
	viper.SetDefault("WORKER_VIP_INTERVAL", 15*time.Minute)
	viper.SetDefault("WORKER_CLEANUP_INTERVAL", 10*time.Minute)
	viper.SetDefault("WORKER_CLEANUP_BATCH", 50)
	viper.SetDefault("WORKER_TOKEN_CLEANUP_INTERVAL", 6*time.Hour)
	viper.SetDefault("RATE_LIMIT_ENABLED", true)
	viper.SetDefault("RATE_LIMIT_REQUESTS", 120)
	viper.SetDefault("RATE_LIMIT_AUTH_REQUESTS", 10)
	viper.SetDefault("RATE_LIMIT_WINDOW", time.Minute)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Could not read config file: %v", err)
	}

	return &Config{
		Server: ServerConfig{
			Port:           viper.GetString("SERVER_PORT"),
			Env:            viper.GetString("SERVER_ENV"),
			LogLevel:       viper.GetString("LOG_LEVEL"),
			AllowedOrigins: viper.GetStringSlice("CORS_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Driver:   viper.GetString("DB_DRIVER"),
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			Database: viper.GetString("DB_DATABASE"),
			Schema:   viper.GetString("DB_SCHEMA"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret:        viper.GetString("JWT_SECRET"),
			AccessExpiry:  viper.GetInt("JWT_ACCESS_EXPIRY"),
			RefreshExpiry: viper.GetInt("JWT_REFRESH_EXPIRY"),
		},
		Storage: StorageConfig{
			Endpoint:  viper.GetString("STORAGE_ENDPOINT"),
			AccessKey: viper.GetString("STORAGE_ACCESS_KEY"),
			SecretKey: viper.GetString("STORAGE_SECRET_KEY"),
			Bucket:    viper.GetString("STORAGE_BUCKET"),
			UseSSL:    viper.GetBool("STORAGE_USE_SSL"),
			PublicURL: viper.GetString("STORAGE_PUBLIC_URL"),
		},
		NATS: NATSConfig{
			URL:           viper.GetString("NATS_URL"),
			SubjectPrefix: viper.GetString("NATS_SUBJECT_PREFIX"),
		},
		Listing: ListingConfig{
			RepublishDays:      viper.GetInt("LISTING_REPUBLISH_DAYS"),
			DefaultVipDays:     viper.GetInt("LISTING_DEFAULT_VIP_DAYS"),
			MaxVipDays:         viper.GetInt("LISTING_MAX_VIP_DAYS"),
			ReminderWindowDays: viper.GetInt("LISTING_REMINDER_WINDOW_DAYS"),
			MaxUploadBytes:     viper.GetInt64("LISTING_MAX_UPLOAD_BYTES"),
		},
		Worker: WorkerConfig{
			Enabled:              viper.GetBool("WORKER_ENABLED"),
			ReminderInterval:     viper.GetDuration("WORKER_REMINDER_INTERVAL"),
			VipInterval:          viper.GetDuration("WORKER_VIP_INTERVAL"),
			CleanupInterval:      viper.GetDuration("WORKER_CLEANUP_INTERVAL"),
			CleanupBatch:         viper.GetInt("WORKER_CLEANUP_BATCH"),
			TokenCleanupInterval: viper.GetDuration("WORKER_TOKEN_CLEANUP_INTERVAL"),
		},
		RateLimit: RateLimitConfig{
			Enabled:               viper.GetBool("RATE_LIMIT_ENABLED"),
			RequestsPerWindow:     viper.GetInt("RATE_LIMIT_REQUESTS"),
			AuthRequestsPerWindow: viper.GetInt("RATE_LIMIT_AUTH_REQUESTS"),
			Window:                viper.GetDuration("RATE_LIMIT_WINDOW"),
		},
	}
}
