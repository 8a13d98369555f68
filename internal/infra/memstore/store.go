package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"sigqueue/internal/domain"
)

// Store keeps the same keyspace as the Redis store in process memory. It is
// meant for tests and single-process development runs.
type Store struct {
	mu     sync.Mutex
	now    func() time.Time
	values map[string]string
	lists  map[string][]string
	leases map[string]lease
	poison map[string]struct{}
	// notify is closed and replaced whenever the global queue grows.
	notify chan struct{}
}

type lease struct {
	token     string
	expiresAt time.Time
}

type Config struct {
	Now func() time.Time
}

func New(cfg Config) *Store {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Store{
		now:    cfg.Now,
		values: make(map[string]string),
		lists:  make(map[string][]string),
		leases: make(map[string]lease),
		poison: make(map[string]struct{}),
		notify: make(chan struct{}),
	}
}

func (s *Store) Ping(context.Context) error {
	return nil
}

func (s *Store) PutPublicKey(_ context.Context, accountID, publicKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[domain.AccountKey(accountID)] = publicKey
	return nil
}

func (s *Store) GetPublicKey(_ context.Context, accountID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[domain.AccountKey(accountID)]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (s *Store) PutPending(_ context.Context, transactionID string) (bool, error) {
	payload, err := json.Marshal(domain.PendingRecord(transactionID))
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setUnlessCompleteLocked(domain.StatusKey(transactionID), string(payload)), nil
}

func (s *Store) CompleteStatus(_ context.Context, record domain.VerificationRecord) (bool, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setUnlessCompleteLocked(domain.StatusKey(record.TransactionID), string(payload)), nil
}

func (s *Store) setUnlessCompleteLocked(key, payload string) bool {
	if raw, ok := s.values[key]; ok {
		var current domain.VerificationRecord
		if err := json.Unmarshal([]byte(raw), &current); err == nil && current.Complete {
			return false
		}
	}
	s.values[key] = payload
	return true
}

func (s *Store) GetStatus(_ context.Context, transactionID string) (domain.VerificationRecord, error) {
	s.mu.Lock()
	raw, ok := s.values[domain.StatusKey(transactionID)]
	s.mu.Unlock()
	if !ok {
		return domain.VerificationRecord{}, domain.ErrNotFound
	}
	var record domain.VerificationRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return domain.VerificationRecord{}, fmt.Errorf("decode verification record: %w", err)
	}
	return record, nil
}

func (s *Store) BindOwner(_ context.Context, transactionID, accountID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := domain.OwnerKey(transactionID)
	if owner, ok := s.values[key]; ok {
		return owner, nil
	}
	s.values[key] = accountID
	return accountID, nil
}

func (s *Store) GetOwner(_ context.Context, transactionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.values[domain.OwnerKey(transactionID)]
	if !ok {
		return "", domain.ErrNotFound
	}
	return owner, nil
}

func (s *Store) Enqueue(_ context.Context, entry string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[domain.QueueKey] = append(s.lists[domain.QueueKey], entry)
	s.wakeLocked()
	return nil
}

// Reserve moves the queue head onto the worker's staging list, waiting up to
// wait for an entry. A non-positive wait blocks until ctx is done.
func (s *Store) Reserve(ctx context.Context, worker domain.WorkerIdentity, wait time.Duration) (string, error) {
	var timeout <-chan time.Time
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		timeout = timer.C
	}
	for {
		s.mu.Lock()
		queue := s.lists[domain.QueueKey]
		if len(queue) > 0 {
			entry := queue[0]
			s.lists[domain.QueueKey] = queue[1:]
			stage := worker.StageKey()
			s.lists[stage] = append(s.lists[stage], entry)
			s.mu.Unlock()
			return entry, nil
		}
		notify := s.notify
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timeout:
			return "", domain.ErrQueueEmpty
		case <-notify:
		}
	}
}

func (s *Store) Ack(_ context.Context, worker domain.WorkerIdentity, entry string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stage := worker.StageKey()
	list := s.lists[stage]
	for i, v := range list {
		if v == entry {
			s.lists[stage] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) Staged(_ context.Context, worker domain.WorkerIdentity) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lists[worker.StageKey()]...), nil
}

// Requeue moves every staged entry of worker back to the head of the global
// queue, preserving their order.
func (s *Store) Requeue(_ context.Context, worker domain.WorkerIdentity) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stage := worker.StageKey()
	staged := s.lists[stage]
	if len(staged) == 0 {
		return 0, nil
	}
	queue := append(append([]string(nil), staged...), s.lists[domain.QueueKey]...)
	s.lists[domain.QueueKey] = queue
	delete(s.lists, stage)
	s.wakeLocked()
	return len(staged), nil
}

func (s *Store) Depth(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.lists[domain.QueueKey])), nil
}

func (s *Store) Record(_ context.Context, msg domain.PoisonMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.poison[msg.ID]; seen {
		return nil
	}
	s.poison[msg.ID] = struct{}{}
	s.lists[domain.PoisonKey] = append(s.lists[domain.PoisonKey], string(payload))
	return nil
}

func (s *Store) ListPoison(_ context.Context, limit int) ([]domain.PoisonMessage, error) {
	s.mu.Lock()
	raw := append([]string(nil), s.lists[domain.PoisonKey]...)
	s.mu.Unlock()
	if limit > 0 && len(raw) > limit {
		raw = raw[len(raw)-limit:]
	}
	out := make([]domain.PoisonMessage, 0, len(raw))
	for _, entry := range raw {
		var msg domain.PoisonMessage
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			return nil, fmt.Errorf("decode poison message: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *Store) Claim(_ context.Context, worker domain.WorkerIdentity, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := worker.LeaseKey()
	if current, ok := s.leases[key]; ok && current.token != token && s.now().Before(current.expiresAt) {
		return domain.ErrIdentityClaimed
	}
	s.leases[key] = lease{token: token, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *Store) Renew(_ context.Context, worker domain.WorkerIdentity, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := worker.LeaseKey()
	current, ok := s.leases[key]
	if !ok || current.token != token {
		return domain.ErrIdentityClaimed
	}
	s.leases[key] = lease{token: token, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *Store) Release(_ context.Context, worker domain.WorkerIdentity, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := worker.LeaseKey()
	if current, ok := s.leases[key]; ok && current.token == token {
		delete(s.leases, key)
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) wakeLocked() {
	close(s.notify)
	s.notify = make(chan struct{})
}
