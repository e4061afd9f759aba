package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Auth modes accepted by AUTH_MODE.
const (
	AuthModeJWT    = "jwt"
	AuthModeHeader = "header"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database       DatabaseConfig
	Redis          RedisConfig
	Auth           AuthConfig
	CORS           CORSConfig
	Log            LogConfig
	Services       ServicesConfig
	Cache          CacheConfig
	Redistribution RedistributionConfig
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

// AuthConfig selects how inbound identity is established. Token issuance lives in the auth server.
type AuthConfig struct {
	Mode      string
	JWTSecret string
	Issuer    string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ServicesConfig enumerates the downstream base URLs consumed by the eligibility
// verifier and the distribution dispatcher. An empty URL disables the matching check
// or distribution without affecting the others.
type ServicesConfig struct {
	LoginStreakURL    string
	ReferralURL       string
	QuestURL          string
	PaymentURL        string
	PointsURL         string
	InventoryURL      string
	CouponURL         string
	RequestTimeout    time.Duration
	EvaluationTimeout time.Duration
}

// CacheConfig governs the read-through cache for event and reward lookups.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// RedistributionConfig tunes the worker pool that retries failed distributions.
type RedistributionConfig struct {
	Workers    int
	BufferSize int
	LockTTL    time.Duration
	BatchLimit int
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
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

	mode := strings.ToLower(strings.TrimSpace(v.GetString("AUTH_MODE")))
	if mode != AuthModeHeader {
		mode = AuthModeJWT
	}
	cfg.Auth = AuthConfig{
		Mode:      mode,
		JWTSecret: v.GetString("JWT_SECRET"),
		Issuer:    v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Services = ServicesConfig{
		LoginStreakURL:    trimURL(v.GetString("LOGIN_STREAK_SERVICE_URL")),
		ReferralURL:       trimURL(v.GetString("REFERRAL_SERVICE_URL")),
		QuestURL:          trimURL(v.GetString("QUEST_SERVICE_URL")),
		PaymentURL:        trimURL(v.GetString("PAYMENT_SERVICE_URL")),
		PointsURL:         trimURL(v.GetString("POINTS_SERVICE_URL")),
		InventoryURL:      trimURL(v.GetString("INVENTORY_SERVICE_URL")),
		CouponURL:         trimURL(v.GetString("COUPON_SERVICE_URL")),
		RequestTimeout:    parseDuration(v.GetString("DOWNSTREAM_TIMEOUT"), 3*time.Second),
		EvaluationTimeout: parseDuration(v.GetString("ELIGIBILITY_TIMEOUT"), 5*time.Second),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("CACHE_ENABLED"),
		TTL:     parseDuration(v.GetString("CACHE_TTL"), time.Minute),
	}

	cfg.Redistribution = RedistributionConfig{
		Workers:    v.GetInt("REDISTRIBUTION_WORKERS"),
		BufferSize: v.GetInt("REDISTRIBUTION_BUFFER"),
		LockTTL:    parseDuration(v.GetString("REDISTRIBUTION_LOCK_TTL"), 30*time.Second),
		BatchLimit: v.GetInt("REDISTRIBUTION_BATCH_LIMIT"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "event_rewards")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("AUTH_MODE", AuthModeJWT)
	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LOGIN_STREAK_SERVICE_URL", "")
	v.SetDefault("REFERRAL_SERVICE_URL", "")
	v.SetDefault("QUEST_SERVICE_URL", "")
	v.SetDefault("PAYMENT_SERVICE_URL", "")
	v.SetDefault("POINTS_SERVICE_URL", "")
	v.SetDefault("INVENTORY_SERVICE_URL", "")
	v.SetDefault("COUPON_SERVICE_URL", "")
	v.SetDefault("DOWNSTREAM_TIMEOUT", "3s")
	v.SetDefault("ELIGIBILITY_TIMEOUT", "5s")

	v.SetDefault("CACHE_ENABLED", true)
	v.SetDefault("CACHE_TTL", "1m")

	v.SetDefault("REDISTRIBUTION_WORKERS", 2)
	v.SetDefault("REDISTRIBUTION_BUFFER", 64)
	v.SetDefault("REDISTRIBUTION_LOCK_TTL", "30s")
	v.SetDefault("REDISTRIBUTION_BATCH_LIMIT", 100)
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

func trimURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
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
