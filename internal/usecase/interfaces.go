package usecase

import (
	"context"
	"time"

	"sigqueue/internal/domain"
)

type AccountRepository interface {
	PutPublicKey(ctx context.Context, accountID, publicKey string) error
	GetPublicKey(ctx context.Context, accountID string) (string, error)
}

// StatusRepository stores verification records and ownership bindings.
// PutPending and CompleteStatus never overwrite a complete record; they
// report false instead. BindOwner keeps the first binding and returns the effective owner.
type StatusRepository interface {
	PutPending(ctx context.Context, transactionID string) (bool, error)
	CompleteStatus(ctx context.Context, record domain.VerificationRecord) (bool, error)
	GetStatus(ctx context.Context, transactionID string) (domain.VerificationRecord, error)
	BindOwner(ctx context.Context, transactionID, accountID string) (string, error)
	GetOwner(ctx context.Context, transactionID string) (string, error)
}

// WorkQueue is the reliable queue contract. Reserve moves the head of the
// global queue onto the tail of the worker's staging list in one step.
type WorkQueue interface {
	Enqueue(ctx context.Context, entry string) error
	Reserve(ctx context.Context, worker domain.WorkerIdentity, wait time.Duration) (string, error)
	Ack(ctx context.Context, worker domain.WorkerIdentity, entry string) error
	Staged(ctx context.Context, worker domain.WorkerIdentity) ([]string, error)
	Requeue(ctx context.Context, worker domain.WorkerIdentity) (int, error)
	Depth(ctx context.Context) (int64, error)
}

type IdentityLeaser interface {
	Claim(ctx context.Context, worker domain.WorkerIdentity, token string, ttl time.Duration) error
	Renew(ctx context.Context, worker domain.WorkerIdentity, token string, ttl time.Duration) error
	Release(ctx context.Context, worker domain.WorkerIdentity, token string) error
}

type PoisonSink interface {
	Record(ctx context.Context, msg domain.PoisonMessage) error
}

type StatusCache interface {
	Get(transactionID string) (CachedStatus, bool)
	Put(transactionID string, status CachedStatus)
}

type CachedStatus struct {
	Record domain.VerificationRecord
	Owner  string
}

type SignatureVerifier interface {
	DecodePublicKey(encoded string) ([]byte, error)
	DecodeSignature(encoded string) ([]byte, error)
	Verify(signature, message, publicKey []byte) (bool, error)
}

type WorkerObserver interface {
	Processed(outcome domain.VerifyOutcome)
	Poisoned(reason string)
	CommitFailed()
	Recovered(count int)
}

type noopObserver struct{}

func (noopObserver) Processed(domain.VerifyOutcome) {}
func (noopObserver) Poisoned(string)                {}
func (noopObserver) CommitFailed()                  {}
func (noopObserver) Recovered(int)                  {}
