package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"sigqueue/internal/domain"
)

type SubmitRequest struct {
	AccountID     string
	TransactionID string
	Payload       string
	Signature     string
}

// Admission is the request-facing side of the pipeline. It never waits on
// verification: it only writes records and enqueues work.
type Admission struct {
	Accounts AccountRepository
	Statuses StatusRepository
	Queue    WorkQueue
	Policy   domain.StatusAccessPolicy
	Cache    StatusCache
}

// Register stores publicKey as given. Its format is only checked when a
// signature is verified against it.
func (a *Admission) Register(ctx context.Context, accountID, publicKey string) error {
	if accountID == "" {
		return fmt.Errorf("%w: accountId is required", domain.ErrInvalidInput)
	}
	if err := a.Accounts.PutPublicKey(ctx, accountID, publicKey); err != nil {
		return fmt.Errorf("register account %s: %w", accountID, err)
	}
	return nil
}

// Submit resolves the account key, binds the transaction to the account,
// writes the pending record and enqueues the request. The writes are not
// transactional: a crash after the pending write and before the enqueue
// leaves the transaction pending forever.
func (a *Admission) Submit(ctx context.Context, req SubmitRequest) error {
	if req.AccountID == "" || req.TransactionID == "" {
		return fmt.Errorf("%w: accountId and transactionId are required", domain.ErrInvalidInput)
	}
	pubKey, err := a.Accounts.GetPublicKey(ctx, req.AccountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, req.AccountID)
		}
		return fmt.Errorf("resolve account %s: %w", req.AccountID, err)
	}

	entry, err := json.Marshal(domain.VerificationRequest{
		Payload:       req.Payload,
		Signature:     req.Signature,
		TransactionID: req.TransactionID,
		PublicKey:     pubKey,
	})
	if err != nil {
		return fmt.Errorf("encode verification request: %w", err)
	}

	owner, err := a.Statuses.BindOwner(ctx, req.TransactionID, req.AccountID)
	if err != nil {
		return fmt.Errorf("bind transaction %s: %w", req.TransactionID, err)
	}
	if owner != req.AccountID {
		return fmt.Errorf("%w: %s", domain.ErrTransactionConflict, req.TransactionID)
	}

	created, err := a.Statuses.PutPending(ctx, req.TransactionID)
	if err != nil {
		return fmt.Errorf("write pending record %s: %w", req.TransactionID, err)
	}
	if !created {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyComplete, req.TransactionID)
	}

	if err := a.Queue.Enqueue(ctx, string(entry)); err != nil {
		return fmt.Errorf("enqueue %s: %w", req.TransactionID, err)
	}
	return nil
}

// Status returns the verification record for transactionID as seen by
// accountID. Missing records and records the policy hides are both
// reported as domain.ErrNotFound.
func (a *Admission) Status(ctx context.Context, accountID, transactionID string) (domain.VerificationRecord, error) {
	if transactionID == "" {
		return domain.VerificationRecord{}, fmt.Errorf("%w: transactionId is required", domain.ErrInvalidInput)
	}
	if a.Cache != nil {
		if cached, ok := a.Cache.Get(transactionID); ok {
			if err := a.authorize(ctx, accountID, transactionID, cached); err != nil {
				return domain.VerificationRecord{}, err
			}
			return cached.Record, nil
		}
	}

	record, err := a.Statuses.GetStatus(ctx, transactionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.VerificationRecord{}, fmt.Errorf("verification %s: %w", transactionID, domain.ErrNotFound)
		}
		return domain.VerificationRecord{}, fmt.Errorf("read verification %s: %w", transactionID, err)
	}
	owner, err := a.Statuses.GetOwner(ctx, transactionID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.VerificationRecord{}, fmt.Errorf("read owner %s: %w", transactionID, err)
	}

	status := CachedStatus{Record: record, Owner: owner}
	if err := a.authorize(ctx, accountID, transactionID, status); err != nil {
		return domain.VerificationRecord{}, err
	}
	if record.Complete && a.Cache != nil {
		a.Cache.Put(transactionID, status)
	}
	return record, nil
}

func (a *Admission) authorize(ctx context.Context, accountID, transactionID string, status CachedStatus) error {
	if a.Policy == nil {
		return nil
	}
	decision, err := a.Policy.Evaluate(ctx, domain.StatusAccessInput{
		AccountID:     accountID,
		TransactionID: transactionID,
		Owner:         status.Owner,
		Complete:      status.Record.Complete,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPolicyUnavailable, err)
	}
	if !decision.Allow {
		return fmt.Errorf("verification %s: %w", transactionID, domain.ErrNotFound)
	}
	return nil
}
