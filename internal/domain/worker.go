package domain

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	stageKeyPrefix = "stage:"
	leaseKeyPrefix = "worker:"
	maxIdentityLen = 128
)

// WorkerIdentity names one worker instance. Two live instances must never
// share an identity; the lease key enforces that at runtime.
type WorkerIdentity struct {
	name string
}

func NewWorkerIdentity(name string) (WorkerIdentity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return WorkerIdentity{}, fmt.Errorf("%w: empty name", ErrInvalidIdentity)
	}
	if len(name) > maxIdentityLen {
		return WorkerIdentity{}, fmt.Errorf("%w: name longer than %d", ErrInvalidIdentity, maxIdentityLen)
	}
	for _, r := range name {
		if r == ':' || unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return WorkerIdentity{}, fmt.Errorf("%w: %q contains %q", ErrInvalidIdentity, name, r)
		}
	}
	return WorkerIdentity{name: name}, nil
}

func MustWorkerIdentity(name string) WorkerIdentity {
	id, err := NewWorkerIdentity(name)
	if err != nil {
		panic(err)
	}
	return id
}

func (w WorkerIdentity) String() string {
	return w.name
}

func (w WorkerIdentity) IsZero() bool {
	return w.name == ""
}

func (w WorkerIdentity) StageKey() string {
	return stageKeyPrefix + w.name
}

func (w WorkerIdentity) LeaseKey() string {
	return leaseKeyPrefix + w.name
}
