package usecase

import (
	"context"
	"crypto/ed25519"
	"errors"
	"sync"
	"testing"
	"time"

	"sigqueue/internal/domain"
	"sigqueue/internal/infra/crypto"
	"sigqueue/internal/infra/memstore"
	"sigqueue/pkg/sigkit"
)

type testKey struct {
	public  string
	private ed25519.PrivateKey
}

func newTestKey(t *testing.T) testKey {
	t.Helper()
	pub, priv, err := sigkit.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return testKey{public: sigkit.Encode(pub), private: priv}
}

func (k testKey) sign(payload string) string {
	return sigkit.Sign(k.private, []byte(payload))
}

type recordingObserver struct {
	mu           sync.Mutex
	outcomes     []domain.VerifyOutcome
	poisoned     []string
	commitFailed int
	recovered    int
}

func (o *recordingObserver) Processed(outcome domain.VerifyOutcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *recordingObserver) Poisoned(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.poisoned = append(o.poisoned, reason)
}

func (o *recordingObserver) CommitFailed() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.commitFailed++
}

func (o *recordingObserver) Recovered(count int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recovered += count
}

// failingStatuses fails terminal writes while fail is set.
type failingStatuses struct {
	StatusRepository
	mu   sync.Mutex
	fail bool
}

func (f *failingStatuses) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func (f *failingStatuses) CompleteStatus(ctx context.Context, record domain.VerificationRecord) (bool, error) {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return false, errors.Join(domain.ErrStoreUnavailable, errors.New("connection reset"))
	}
	return f.StatusRepository.CompleteStatus(ctx, record)
}

type mapCache struct {
	entries map[string]CachedStatus
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]CachedStatus)}
}

func (c *mapCache) Get(transactionID string) (CachedStatus, bool) {
	v, ok := c.entries[transactionID]
	return v, ok
}

func (c *mapCache) Put(transactionID string, status CachedStatus) {
	c.entries[transactionID] = status
}

type stubPolicy struct {
	decision domain.StatusAccessDecision
	err      error
	calls    int
}

func (p *stubPolicy) Evaluate(context.Context, domain.StatusAccessInput) (domain.StatusAccessDecision, error) {
	p.calls++
	return p.decision, p.err
}

func newTestWorker(store *memstore.Store, name string) *Worker {
	return &Worker{
		Identity:    domain.MustWorkerIdentity(name),
		Queue:       store,
		Statuses:    store,
		Verifier:    crypto.NewService(),
		Poison:      store,
		Leases:      store,
		PollTimeout: 20 * time.Millisecond,
		LeaseTTL:    3 * time.Second,
	}
}

func mustStatus(t *testing.T, store *memstore.Store, transactionID string) domain.VerificationRecord {
	t.Helper()
	record, err := store.GetStatus(context.Background(), transactionID)
	if err != nil {
		t.Fatalf("get status %s: %v", transactionID, err)
	}
	return record
}

func mustStaged(t *testing.T, store *memstore.Store, worker domain.WorkerIdentity) []string {
	t.Helper()
	staged, err := store.Staged(context.Background(), worker)
	if err != nil {
		t.Fatalf("staged: %v", err)
	}
	return staged
}
