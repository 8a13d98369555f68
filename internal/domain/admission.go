package domain

import (
	"context"
	"time"
)

// StatusAccessInput is evaluated by the status access policy before a
// verification record is returned to a caller.
type StatusAccessInput struct {
	AccountID     string `json:"account_id"`
	TransactionID string `json:"transaction_id"`
	Owner         string `json:"owner"`
	Complete      bool   `json:"complete"`
}

type StatusAccessDecision struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason,omitempty"`
}

type StatusAccessPolicy interface {
	Evaluate(ctx context.Context, input StatusAccessInput) (StatusAccessDecision, error)
}

type RateLimitDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (RateLimitDecision, error)
}
