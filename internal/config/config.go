// Package config loads catalogd settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Admin     AdminConfig
}

type ServerConfig struct {
	Port         string
	MaxBodyBytes int64
}

// RedisConfig is the optional shared backend. Options is nil when REDIS_URL is unset.
type RedisConfig struct {
	Options *redis.Options
	Timeout time.Duration
}

// Enabled reports whether a Redis backend was configured.
func (c RedisConfig) Enabled() bool {
	return c.Options != nil
}

type RateLimitConfig struct {
	Window            time.Duration
	LoginMaxAttempts  int
	CreateMaxRequests int
}

type CacheConfig struct {
	ArticleTTL time.Duration
	ProductTTL time.Duration
	MaxEntries int
}

type AdminConfig struct {
	Email      string
	Password   string
	SessionTTL time.Duration
}

func Load() (Config, error) {
	_ = godotenv.Load()

	var errs []error
	intVar := func(key string, fallback int) int {
		n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
			return fallback
		}
		if n < 0 {
			errs = append(errs, fmt.Errorf("invalid %s: must not be negative", key))
			return fallback
		}
		return n
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			MaxBodyBytes: int64(intVar("MAX_BODY_BYTES", 1<<20)),
		},
		Redis: RedisConfig{
			Timeout: time.Duration(intVar("REDIS_TIMEOUT_MS", 250)) * time.Millisecond,
		},
		RateLimit: RateLimitConfig{
			Window:            time.Duration(intVar("RATE_LIMIT_WINDOW_SECONDS", 900)) * time.Second,
			LoginMaxAttempts:  intVar("LOGIN_MAX_ATTEMPTS", 5),
			CreateMaxRequests: intVar("CREATE_MAX_REQUESTS", 10),
		},
		Cache: CacheConfig{
			ArticleTTL: time.Duration(intVar("ARTICLE_CACHE_TTL_SECONDS", 300)) * time.Second,
			ProductTTL: time.Duration(intVar("PRODUCT_CACHE_TTL_SECONDS", 60)) * time.Second,
			MaxEntries: intVar("CACHE_MAX_ENTRIES", 10000),
		},
		Admin: AdminConfig{
			Email:      getEnv("ADMIN_EMAIL", ""),
			Password:   os.Getenv("ADMIN_PASSWORD"),
			SessionTTL: time.Duration(intVar("SESSION_TTL_MINUTES", 720)) * time.Minute,
		},
	}

	if raw := getEnv("REDIS_URL", ""); raw != "" {
		opts, err := redis.ParseURL(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid REDIS_URL: %w", err))
		} else {
			cfg.Redis.Options = opts
		}
	}

	if cfg.RateLimit.Window == 0 {
		errs = append(errs, errors.New("invalid RATE_LIMIT_WINDOW_SECONDS: must be positive"))
	}
	if cfg.Admin.Email == "" || cfg.Admin.Password == "" {
		errs = append(errs, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD are required"))
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
