package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrAccountNotFound   = fmt.Errorf("account %w", ErrNotFound)
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrMalformedRequest  = errors.New("malformed verification request")
	ErrQueueEmpty        = errors.New("queue empty")
	ErrIdentityClaimed   = errors.New("worker identity already claimed")
	ErrInvalidIdentity   = errors.New("invalid worker identity")
	ErrInvalidInput      = errors.New("invalid input")
	ErrPolicyUnavailable = errors.New("policy unavailable")
)

var (
	ErrAlreadyComplete     = errors.New("transaction already complete")
	ErrTransactionConflict = errors.New("transaction bound to another account")
)
