package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	Booking      BookingConfig
	Cancellation CancellationConfig
	Availability AvailabilityConfig
	Reviews      ReviewsConfig
	Notify       NotifyConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedHeaders []string
	AllowedMethods []string
	MaxAge         time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// BookingConfig governs slot reservation holds and their expiry sweep.
type BookingConfig struct {
	HoldTTL         time.Duration
	HoldTokenSecret string
	SweepInterval   time.Duration
	SweepBatchSize  int
}

// CancellationConfig defines the late-cancellation penalty policy. The
// threshold and fee are configuration, never constants in code.
type CancellationConfig struct {
	FreeThreshold time.Duration
	FeePercent    int
}

// AvailabilityConfig tunes the cached availability listing.
type AvailabilityConfig struct {
	CacheTTL time.Duration
}

// ReviewsConfig bounds accepted ratings.
type ReviewsConfig struct {
	MinRating int
	MaxRating int
}

// NotifyConfig configures the in-process notification dispatcher.
type NotifyConfig struct {
	Enabled    bool
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{
		AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS")),
		AllowedHeaders: splitAndTrim(v.GetString("CORS_ALLOWED_HEADERS")),
		AllowedMethods: splitAndTrim(v.GetString("CORS_ALLOWED_METHODS")),
		MaxAge:         parseDuration(v.GetString("CORS_MAX_AGE"), 10*time.Minute),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Booking = BookingConfig{
		HoldTTL:         parseDuration(v.GetString("BOOKING_HOLD_TTL"), 10*time.Minute),
		HoldTokenSecret: v.GetString("BOOKING_HOLD_TOKEN_SECRET"),
		SweepInterval:   parseDuration(v.GetString("BOOKING_SWEEP_INTERVAL"), time.Minute),
		SweepBatchSize:  v.GetInt("BOOKING_SWEEP_BATCH_SIZE"),
	}

	cfg.Cancellation = CancellationConfig{
		FreeThreshold: parseDuration(v.GetString("CANCELLATION_FREE_THRESHOLD"), 24*time.Hour),
		FeePercent:    v.GetInt("CANCELLATION_FEE_PERCENT"),
	}

	cfg.Availability = AvailabilityConfig{
		CacheTTL: parseDuration(v.GetString("AVAILABILITY_CACHE_TTL"), time.Minute),
	}

	cfg.Reviews = ReviewsConfig{
		MinRating: v.GetInt("REVIEW_MIN_RATING"),
		MaxRating: v.GetInt("REVIEW_MAX_RATING"),
	}

	cfg.Notify = NotifyConfig{
		Enabled:    v.GetBool("ENABLE_NOTIFICATIONS"),
		Workers:    v.GetInt("NOTIFY_WORKERS"),
		MaxRetries: v.GetInt("NOTIFY_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("NOTIFY_RETRY_DELAY"), 5*time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "famcare")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Requested-With,X-Request-ID")
	v.SetDefault("CORS_ALLOWED_METHODS", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	v.SetDefault("CORS_MAX_AGE", "10m")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("BOOKING_HOLD_TTL", "10m")
	v.SetDefault("BOOKING_HOLD_TOKEN_SECRET", "dev_hold_secret")
	v.SetDefault("BOOKING_SWEEP_INTERVAL", "1m")
	v.SetDefault("BOOKING_SWEEP_BATCH_SIZE", 100)

	v.SetDefault("CANCELLATION_FREE_THRESHOLD", "24h")
	v.SetDefault("CANCELLATION_FEE_PERCENT", 50)

	v.SetDefault("AVAILABILITY_CACHE_TTL", "1m")

	v.SetDefault("REVIEW_MIN_RATING", 1)
	v.SetDefault("REVIEW_MAX_RATING", 5)

	v.SetDefault("ENABLE_NOTIFICATIONS", true)
	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_MAX_RETRIES", 3)
	v.SetDefault("NOTIFY_RETRY_DELAY", "5s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
