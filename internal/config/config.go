package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

const (
	StoreModeRedis  = "redis"
	StoreModeMemory = "memory"
)

type Config struct {
	HTTPAddr   string
	HealthAddr string

	LogLevel string
	LogFile  string
	LogJSON  bool

	StoreMode     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int

	WorkerID          string
	WorkerPollTimeout time.Duration
	WorkerLeaseTTL    time.Duration
	CommitTimeout     time.Duration
	RecoveryInterval  time.Duration

	PostgresDSN string

	StatusPolicyPath string
	StatusCacheSize  int

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitFailClosed    bool
	RateLimitMaxKeys       int
}

func FromEnv() Config {
	return Config{
		HTTPAddr:               envDefault("HTTP_ADDR", ":8080"),
		HealthAddr:             envDefault("HEALTH_ADDR", ":8090"),
		LogLevel:               envDefault("LOG_LEVEL", "info"),
		LogFile:                os.Getenv("LOG_FILE"),
		LogJSON:                envBoolDefault("LOG_JSON", false),
		StoreMode:              strings.ToLower(envDefault("STORE_MODE", StoreModeRedis)),
		RedisAddr:              envDefault("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                envIntDefault("REDIS_DB", 0),
		RedisPoolSize:          envIntDefault("REDIS_POOL_SIZE", 0),
		WorkerID:               os.Getenv("WORKER_ID"),
		WorkerPollTimeout:      envDurationDefault("WORKER_POLL_TIMEOUT", 5*time.Second),
		WorkerLeaseTTL:         envDurationDefault("WORKER_LEASE_TTL", 30*time.Second),
		CommitTimeout:          envDurationDefault("COMMIT_TIMEOUT", 5*time.Second),
		RecoveryInterval:       envDurationDefault("RECOVERY_INTERVAL", 10*time.Second),
		PostgresDSN:            os.Getenv("POSTGRES_DSN"),
		StatusPolicyPath:       os.Getenv("STATUS_POLICY_PATH"),
		StatusCacheSize:        envIntDefault("STATUS_CACHE_SIZE", 4096),
		RateLimitRequests:      envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds: envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitFailClosed:    envBoolDefault("RATE_LIMIT_FAIL_CLOSED", false),
		RateLimitMaxKeys:       envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
	}
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var result *multierror.Error
	switch c.StoreMode {
	case StoreModeRedis:
		if c.RedisAddr == "" {
			result = multierror.Append(result, errors.New("REDIS_ADDR is required in redis store mode"))
		}
	case StoreModeMemory:
	default:
		result = multierror.Append(result, fmt.Errorf("unsupported STORE_MODE %q", c.StoreMode))
	}
	if c.WorkerLeaseTTL > 0 && c.WorkerLeaseTTL < 3*time.Second {
		result = multierror.Append(result, errors.New("WORKER_LEASE_TTL must be at least 3s"))
	}
	if c.WorkerPollTimeout > 0 && c.WorkerPollTimeout < time.Second {
		result = multierror.Append(result, errors.New("WORKER_POLL_TIMEOUT must be at least 1s"))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		result = multierror.Append(result, fmt.Errorf("unsupported LOG_LEVEL %q", c.LogLevel))
	}
	return result.ErrorOrNil()
}

func (c Config) RateLimitWindow() time.Duration {
	if c.RateLimitWindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}

func envDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
