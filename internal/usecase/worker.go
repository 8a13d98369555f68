package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sigqueue/internal/domain"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPollTimeout      = 5 * time.Second
	defaultLeaseTTL         = 30 * time.Second
	defaultCommitTimeout    = 5 * time.Second
	defaultRecoveryInterval = 10 * time.Second
	defaultStoreBackoff     = time.Second
	maxStoreBackoff         = 30 * time.Second
)

// Worker consumes the global queue through its own staging list:
// reserve, decode, verify, commit, then ack. An entry leaves the staging
// list only after its terminal record (or poison record) is written.
type Worker struct {
	Identity domain.WorkerIdentity
	Queue    WorkQueue
	Statuses StatusRepository
	Verifier SignatureVerifier
	Poison   PoisonSink
	Leases   IdentityLeaser
	Observer WorkerObserver
	Logger   *zap.Logger

	PollTimeout      time.Duration
	LeaseTTL         time.Duration
	CommitTimeout    time.Duration
	RecoveryInterval time.Duration

	Now   func() time.Time
	NewID func() string
}

func (w *Worker) validate() error {
	var result *multierror.Error
	if w.Identity.IsZero() {
		result = multierror.Append(result, domain.ErrInvalidIdentity)
	}
	if w.Queue == nil {
		result = multierror.Append(result, errors.New("worker queue is required"))
	}
	if w.Statuses == nil {
		result = multierror.Append(result, errors.New("worker status repository is required"))
	}
	if w.Verifier == nil {
		result = multierror.Append(result, errors.New("worker verifier is required"))
	}
	if w.Poison == nil {
		result = multierror.Append(result, errors.New("worker poison sink is required"))
	}
	return result.ErrorOrNil()
}

// Run claims the worker identity, replays anything left in the staging list
// and then consumes until ctx is cancelled. A cancelled context is a clean
// shutdown and returns nil.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.validate(); err != nil {
		return err
	}
	log := w.logger()
	token := w.newID()

	if w.Leases != nil {
		if err := w.Leases.Claim(ctx, w.Identity, token, w.leaseTTL()); err != nil {
			return fmt.Errorf("claim identity %s: %w", w.Identity, err)
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), w.commitTimeout())
			defer cancel()
			if err := w.Leases.Release(releaseCtx, w.Identity, token); err != nil {
				log.Warn("release identity failed", zap.Error(err))
			}
		}()
	}

	log.Info("worker started",
		zap.String("stage", w.Identity.StageKey()),
		zap.Duration("poll_timeout", w.pollTimeout()),
	)

	g, gctx := errgroup.WithContext(ctx)
	if w.Leases != nil {
		g.Go(func() error { return w.heartbeat(gctx, token) })
	}
	g.Go(func() error { return w.consume(gctx) })

	err := g.Wait()
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		log.Info("worker stopped")
		return nil
	}
	return err
}

func (w *Worker) heartbeat(ctx context.Context, token string) error {
	ttl := w.leaseTTL()
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			err := w.Leases.Renew(ctx, w.Identity, token, ttl)
			if errors.Is(err, domain.ErrIdentityClaimed) {
				return fmt.Errorf("lost identity %s: %w", w.Identity, err)
			}
			if err != nil && ctx.Err() == nil {
				w.logger().Warn("renew identity failed", zap.Error(err))
			}
		}
	}
}

func (w *Worker) consume(ctx context.Context) error {
	log := w.logger()
	recoverDue := time.Time{}
	needsRecovery := true
	backoff := defaultStoreBackoff

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if needsRecovery && !w.now().Before(recoverDue) {
			if _, err := w.Recover(ctx); err != nil {
				log.Warn("recovery incomplete", zap.Error(err))
				recoverDue = w.now().Add(w.recoveryInterval())
			} else {
				needsRecovery = false
			}
		}

		entry, err := w.Queue.Reserve(ctx, w.Identity, w.pollTimeout())
		if err != nil {
			if errors.Is(err, domain.ErrQueueEmpty) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("reserve failed", zap.Error(err), zap.Duration("backoff", backoff))
			if err := sleepCtx(ctx, backoff); err != nil {
				return err
			}
			backoff = min(backoff*2, maxStoreBackoff)
			continue
		}
		backoff = defaultStoreBackoff

		if err := w.Process(ctx, entry); err != nil {
			log.Warn("entry left staged", zap.Error(err))
			needsRecovery = true
		}
	}
}

// Recover replays every entry in this worker's staging list. Entries that
// still cannot be committed stay staged and are reported in the error.
func (w *Worker) Recover(ctx context.Context) (int, error) {
	entries, err := w.Queue.Staged(ctx, w.Identity)
	if err != nil {
		return 0, fmt.Errorf("list staged entries: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}
	w.logger().Info("replaying staged entries", zap.Int("count", len(entries)))

	var result *multierror.Error
	recovered := 0
	for _, entry := range entries {
		if err := w.Process(ctx, entry); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		recovered++
	}
	w.observer().Recovered(recovered)
	return recovered, result.ErrorOrNil()
}

// Process handles one staged entry. A nil error means the entry was
// acknowledged and is gone from the staging list.
func (w *Worker) Process(ctx context.Context, entry string) error {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.commitTimeout())
	defer cancel()

	req, err := DecodeVerificationRequest(entry)
	if err != nil {
		return w.poison(commitCtx, entry, err)
	}

	outcome := w.verify(req)
	record := domain.CompletedRecord(req.TransactionID, outcome == domain.OutcomeValid)
	written, err := w.Statuses.CompleteStatus(commitCtx, record)
	if err != nil {
		w.observer().CommitFailed()
		return fmt.Errorf("commit %s: %w", req.TransactionID, err)
	}
	w.observer().Processed(outcome)
	if written {
		w.logger().Debug("verification committed",
			zap.String("transaction_id", req.TransactionID),
			zap.String("outcome", string(outcome)),
		)
	} else {
		// A duplicate request for a transaction that already has a verdict.
		w.logger().Info("verdict already final; duplicate request dropped",
			zap.String("transaction_id", req.TransactionID),
			zap.String("outcome", string(outcome)),
		)
	}

	if err := w.Queue.Ack(commitCtx, w.Identity, entry); err != nil {
		return fmt.Errorf("ack %s: %w", req.TransactionID, err)
	}
	return nil
}

func (w *Worker) verify(req domain.VerificationRequest) domain.VerifyOutcome {
	log := w.logger().With(zap.String("transaction_id", req.TransactionID))
	pubKey, err := w.Verifier.DecodePublicKey(req.PublicKey)
	if err != nil {
		log.Info("public key unusable", zap.Error(err))
		return domain.OutcomeUnverifiable
	}
	sig, err := w.Verifier.DecodeSignature(req.Signature)
	if err != nil {
		log.Info("signature unusable", zap.Error(err))
		return domain.OutcomeUnverifiable
	}
	ok, err := w.Verifier.Verify(sig, []byte(req.Payload), pubKey)
	if err != nil {
		log.Info("signature could not be evaluated", zap.Error(err))
		return domain.OutcomeUnverifiable
	}
	if !ok {
		return domain.OutcomeInvalid
	}
	return domain.OutcomeValid
}

func (w *Worker) poison(ctx context.Context, entry string, cause error) error {
	reason := cause.Error()
	var malformed *domain.MalformedError
	if errors.As(cause, &malformed) {
		reason = malformed.Reason
	}
	msg := domain.PoisonMessage{
		ID:         PoisonID(w.Identity.String(), entry),
		WorkerID:   w.Identity.String(),
		Raw:        entry,
		Reason:     reason,
		ReceivedAt: w.now().UTC(),
	}
	if err := w.Poison.Record(ctx, msg); err != nil {
		return fmt.Errorf("record poison message: %w", err)
	}
	w.observer().Poisoned(reason)
	w.logger().Warn("poison message recorded",
		zap.String("poison_id", msg.ID),
		zap.String("reason", reason),
	)
	if err := w.Queue.Ack(ctx, w.Identity, entry); err != nil {
		return fmt.Errorf("ack poison message %s: %w", msg.ID, err)
	}
	return nil
}

// DecodeVerificationRequest parses a queue entry. It never substitutes
// defaults for a broken entry.
func DecodeVerificationRequest(entry string) (domain.VerificationRequest, error) {
	var req domain.VerificationRequest
	if entry == "" {
		return req, &domain.MalformedError{Reason: "empty entry"}
	}
	if err := json.Unmarshal([]byte(entry), &req); err != nil {
		return req, &domain.MalformedError{Reason: "invalid json", Err: err}
	}
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

func (w *Worker) logger() *zap.Logger {
	if w.Logger == nil {
		return zap.NewNop()
	}
	return w.Logger.With(zap.String("worker", w.Identity.String()))
}

func (w *Worker) observer() WorkerObserver {
	if w.Observer == nil {
		return noopObserver{}
	}
	return w.Observer
}

func (w *Worker) now() time.Time {
	if w.Now == nil {
		return time.Now()
	}
	return w.Now()
}

func (w *Worker) newID() string {
	if w.NewID == nil {
		return uuid.NewString()
	}
	return w.NewID()
}

func (w *Worker) pollTimeout() time.Duration {
	if w.PollTimeout <= 0 {
		return defaultPollTimeout
	}
	return w.PollTimeout
}

func (w *Worker) leaseTTL() time.Duration {
	if w.LeaseTTL <= 0 {
		return defaultLeaseTTL
	}
	return w.LeaseTTL
}

func (w *Worker) commitTimeout() time.Duration {
	if w.CommitTimeout <= 0 {
		return defaultCommitTimeout
	}
	return w.CommitTimeout
}

func (w *Worker) recoveryInterval() time.Duration {
	if w.RecoveryInterval <= 0 {
		return defaultRecoveryInterval
	}
	return w.RecoveryInterval
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
