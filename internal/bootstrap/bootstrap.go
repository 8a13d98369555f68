package bootstrap

import (
	"context"
	"fmt"

	"sigqueue/internal/config"
	"sigqueue/internal/domain"
	"sigqueue/internal/infra/memstore"
	"sigqueue/internal/infra/ratelimit"
	"sigqueue/internal/infra/redisstore"
	"sigqueue/internal/usecase"

	"go.uber.org/zap"
)

// Backend is everything the binaries need from the shared store.
type Backend interface {
	usecase.AccountRepository
	usecase.StatusRepository
	usecase.WorkQueue
	usecase.IdentityLeaser
	usecase.PoisonSink
	ListPoison(ctx context.Context, limit int) ([]domain.PoisonMessage, error)
	Ping(ctx context.Context) error
	Close() error
}

// OpenBackend connects the configured store and pings it. A store that does
// not answer is a startup failure.
func OpenBackend(ctx context.Context, cfg config.Config, log *zap.Logger) (Backend, error) {
	var backend Backend
	switch cfg.StoreMode {
	case config.StoreModeMemory:
		log.Warn("using in-memory store; queue state is lost on exit")
		backend = memstore.New(memstore.Config{})
	case config.StoreModeRedis:
		store, err := redisstore.New(redisstore.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: cfg.RedisPoolSize,
		})
		if err != nil {
			return nil, err
		}
		backend = store
	default:
		return nil, fmt.Errorf("unsupported store mode %q", cfg.StoreMode)
	}

	if err := backend.Ping(ctx); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("store %s unreachable: %w", cfg.StoreMode, err)
	}
	log.Info("store connected", zap.String("mode", cfg.StoreMode), zap.String("addr", cfg.RedisAddr))
	return backend, nil
}

// NewRateLimiter shares counters through Redis when the backend is Redis and
// falls back to a per-process limiter otherwise. It returns nil when rate
// limiting is disabled.
func NewRateLimiter(cfg config.Config, backend Backend) (domain.RateLimiter, error) {
	if cfg.RateLimitRequests <= 0 {
		return nil, nil
	}
	if store, ok := backend.(*redisstore.Store); ok {
		return ratelimit.NewRedis(store.Client(), nil)
	}
	return ratelimit.NewMemory(ratelimit.MemoryConfig{MaxKeys: cfg.RateLimitMaxKeys}), nil
}
