package bootstrap

import (
	"context"

	"sigqueue/internal/config"
	"sigqueue/internal/domain"
	"sigqueue/internal/infra/crypto"
	"sigqueue/internal/infra/policyopa"
	"sigqueue/internal/usecase"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WorkerIdentity resolves WORKER_ID. Without one a random identity is used,
// and entries it leaves staged are only recovered through `sigctl stage
// requeue`.
func WorkerIdentity(cfg config.Config, log *zap.Logger) (domain.WorkerIdentity, error) {
	if cfg.WorkerID != "" {
		return domain.NewWorkerIdentity(cfg.WorkerID)
	}
	identity, err := domain.NewWorkerIdentity("worker-" + uuid.NewString())
	if err != nil {
		return domain.WorkerIdentity{}, err
	}
	log.Warn("WORKER_ID not set; using a random identity", zap.String("worker", identity.String()))
	return identity, nil
}

func NewWorker(cfg config.Config, identity domain.WorkerIdentity, backend Backend, poison usecase.PoisonSink, observer usecase.WorkerObserver, log *zap.Logger) *usecase.Worker {
	if poison == nil {
		poison = backend
	}
	return &usecase.Worker{
		Identity:         identity,
		Queue:            backend,
		Statuses:         backend,
		Verifier:         crypto.NewService(),
		Poison:           poison,
		Leases:           backend,
		Observer:         observer,
		Logger:           log,
		PollTimeout:      cfg.WorkerPollTimeout,
		LeaseTTL:         cfg.WorkerLeaseTTL,
		CommitTimeout:    cfg.CommitTimeout,
		RecoveryInterval: cfg.RecoveryInterval,
	}
}

// NewStatusPolicy loads STATUS_POLICY_PATH, or the built-in ownership policy
// when it is unset.
func NewStatusPolicy(ctx context.Context, cfg config.Config) (*policyopa.Engine, error) {
	if cfg.StatusPolicyPath != "" {
		return policyopa.NewEngineFromPath(ctx, cfg.StatusPolicyPath)
	}
	return policyopa.NewDefaultEngine(ctx)
}
