package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrMissingJWTSecret = errors.New("JWT_SECRET must be set")

type Config struct {
	Env  string
	Port int

	DBURL        string
	DBMaxConns   int32
	DBMigrate    bool
	StoreDriver  string
	MaxBodyBytes int64

	JWTSecret string
	TokenTTL  time.Duration

	BcryptCost      int
	HashConcurrency int

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	SearchCacheTTL time.Duration

	OTELEndpoint    string
	OTELSampleRatio float64
	StaticDir       string
	CORSOrigins     []string
}

// Load reads a .env file when present, then the environment. It is called
// once at startup; the returned value is never mutated afterwards.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Env:  getEnv("APP_ENV", "dev"),
		Port: getEnvInt("PORT", 3000),

		DBURL:        getEnv("DATABASE_URL", buildDBURL()),
		DBMaxConns:   int32(getEnvInt("DB_MAX_CONNS", 10)),
		DBMigrate:    getEnvBool("DB_MIGRATE", true),
		StoreDriver:  strings.ToLower(getEnv("STORE_DRIVER", "postgres")),
		MaxBodyBytes: int64(getEnvInt("MAX_BODY_BYTES", 1<<20)),

		JWTSecret: os.Getenv("JWT_SECRET"),
		TokenTTL:  time.Duration(getEnvInt("JWT_TTL_MINUTES", 60)) * time.Minute,

		BcryptCost:      getEnvInt("BCRYPT_COST", 10),
		HashConcurrency: getEnvInt("HASH_CONCURRENCY", runtime.NumCPU()),

		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		SearchCacheTTL: time.Duration(getEnvInt("SEARCH_CACHE_TTL_SECONDS", 30)) * time.Second,

		OTELEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTELSampleRatio: getEnvFloat("OTEL_SAMPLE_RATIO", 1),
		StaticDir:       os.Getenv("STATIC_DIR"),
		CORSOrigins:     getEnvList("CORS_ALLOWED_ORIGINS"),
	}
}

// Validate reports configuration the process cannot start with.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}

	switch c.StoreDriver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("STORE_DRIVER %q: want postgres or memory", c.StoreDriver)
	}

	if c.StoreDriver == "postgres" && c.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive, got %d", c.DBMaxConns)
	}

	if c.TokenTTL <= 0 {
		return fmt.Errorf("JWT_TTL_MINUTES must be positive")
	}

	return nil
}

func buildDBURL() string {
	host := getEnv("PG_HOST", "127.0.0.1")
	port := getEnv("PG_PORT", "5432")
	user := getEnv("PG_USER", "identityhub")
	pass := getEnv("PG_PASSWORD", "identityhub")
	name := getEnv("PG_DATABASE", "identityhub")
	ssl := getEnv("PG_SSLMODE", "disable")

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, pass),
		Host:     host + ":" + port,
		Path:     "/" + name,
		RawQuery: "sslmode=" + url.QueryEscape(ssl),
	}

	return u.String()
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			slog.Warn("invalid integer in environment, using default", "key", key, "value", v, "default", fallback)
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)

		if err != nil {
			slog.Warn("invalid boolean in environment, using default", "key", key, "value", v, "default", fallback)
			return fallback
		}

		return b
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)

		if err != nil {
			slog.Warn("invalid number in environment, using default", "key", key, "value", v, "default", fallback)
			return fallback
		}

		return f
	}
	return fallback
}

func getEnvList(key string) []string {
	var out []string

	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
