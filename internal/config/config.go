package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	// Database
	PostgresDSN string
	DBMaxConns  int
	DBMinConns  int
	RedisURL    string

	// Remote execution backend
	BackendURL     string
	BackendAPIKey  string
	BackendTimeout time.Duration

	// Default pacing for single-session sends and transfers
	SendDelayMin        time.Duration
	SendDelayMax        time.Duration
	MaxPerDayPerSession int

	// Worker
	SchedulerInterval    time.Duration
	SchedulerConcurrency int

	// Auth
	JWTSecret string

	// Server
	APIPort         string
	RateLimitPerMin int
	CORSOrigins     string
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		PostgresDSN: getEnv("POSTGRES_DSN", ""),
		DBMaxConns:  getEnvInt("DB_MAX_CONNS", 20),
		DBMinConns:  getEnvInt("DB_MIN_CONNS", 2),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),

		BackendURL:     strings.TrimRight(getEnv("BACKEND_URL", ""), "/"),
		BackendAPIKey:  getEnv("BACKEND_API_KEY", ""),
		BackendTimeout: time.Duration(getEnvInt("BACKEND_TIMEOUT_SECONDS", 45)) * time.Second,

		SendDelayMin:        time.Duration(getEnvInt("SEND_DELAY_MIN_SECONDS", 3)) * time.Second,
		SendDelayMax:        time.Duration(getEnvInt("SEND_DELAY_MAX_SECONDS", 8)) * time.Second,
		MaxPerDayPerSession: getEnvInt("MAX_PER_DAY_PER_SESSION", 50),

		SchedulerInterval:    time.Duration(getEnvInt("SCHEDULER_INTERVAL_SECONDS", 60)) * time.Second,
		SchedulerConcurrency: getEnvInt("SCHEDULER_CONCURRENCY", 4),

		JWTSecret: getEnv("JWT_SECRET", "change-me-in-production"),

		APIPort:         getEnv("API_PORT", "3000"),
		RateLimitPerMin: getEnvInt("RATE_LIMIT_PER_MINUTE", 100),
		CORSOrigins:     getEnv("CORS_ORIGINS", "*"),
	}
}

// Validate returns an error for settings the process cannot run without and
// logs warnings for the ones that only weaken it.
func (c *Config) Validate(log *zap.Logger) error {
	var errs []error
	if c.PostgresDSN == "" {
		errs = append(errs, errors.New("POSTGRES_DSN is required"))
	}
	if c.BackendURL == "" {
		errs = append(errs, errors.New("BACKEND_URL is required"))
	}
	if c.BackendTimeout <= 0 {
		errs = append(errs, errors.New("BACKEND_TIMEOUT_SECONDS must be positive"))
	}
	if c.SendDelayMin < 0 || c.SendDelayMax < c.SendDelayMin {
		errs = append(errs, errors.New("SEND_DELAY_MIN_SECONDS must be >= 0 and <= SEND_DELAY_MAX_SECONDS"))
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		errs = append(errs, errors.New("DB_MIN_CONNS must be >= 0 and <= DB_MAX_CONNS"))
	}
	if c.SchedulerInterval <= 0 {
		errs = append(errs, errors.New("SCHEDULER_INTERVAL_SECONDS must be positive"))
	}
	if c.SchedulerConcurrency <= 0 {
		errs = append(errs, errors.New("SCHEDULER_CONCURRENCY must be positive"))
	}

	if c.BackendAPIKey == "" {
		log.Warn("BACKEND_API_KEY is not set")
	}
	if c.JWTSecret == "change-me-in-production" {
		log.Warn("JWT_SECRET is default, change in production")
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}
