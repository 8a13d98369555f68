package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sigqueue/internal/config"
	"sigqueue/internal/domain"
	"sigqueue/internal/infra/crypto"
	"sigqueue/internal/infra/memstore"
	"sigqueue/internal/infra/policyopa"
	"sigqueue/internal/infra/ratelimit"
	"sigqueue/internal/infra/statuscache"
	"sigqueue/internal/usecase"
	"sigqueue/pkg/sigkit"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	store  *memstore.Store
	server *Server
	worker *usecase.Worker
}

func newTestEnv(t *testing.T, cfg config.Config, limiter domain.RateLimiter) *testEnv {
	t.Helper()
	store := memstore.New(memstore.Config{})
	engine, err := policyopa.NewDefaultEngine(context.Background())
	if err != nil {
		t.Fatalf("policy engine: %v", err)
	}
	cache, err := statuscache.New(16)
	if err != nil {
		t.Fatalf("status cache: %v", err)
	}
	if cfg.StoreMode == "" {
		cfg.StoreMode = config.StoreModeMemory
	}
	server := NewServer(cfg, ServerDeps{
		Admission: &usecase.Admission{
			Accounts: store,
			Statuses: store,
			Queue:    store,
			Policy:   engine,
			Cache:    cache,
		},
		Store:       store,
		RateLimiter: limiter,
	})
	worker := &usecase.Worker{
		Identity: domain.MustWorkerIdentity("worker-test"),
		Queue:    store,
		Statuses: store,
		Verifier: crypto.NewService(),
		Poison:   store,
	}
	return &testEnv{store: store, server: server, worker: worker}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

// drain processes everything currently queued.
func (e *testEnv) drain(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for {
		entry, err := e.store.Reserve(ctx, e.worker.Identity, 10*time.Millisecond)
		if errors.Is(err, domain.ErrQueueEmpty) {
			return
		}
		if err != nil {
			t.Fatalf("reserve: %v", err)
		}
		if err := e.worker.Process(ctx, entry); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode status body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestVerificationFlow(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)
	pub, priv, err := sigkit.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	rec := env.do(t, http.MethodPost, "/accounts/alice", map[string]string{"pubKey": sigkit.Encode(pub)})
	if rec.Code != http.StatusAccepted || rec.Body.Len() != 0 {
		t.Fatalf("register: %d %q", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/accounts/alice/sign/tx-1", map[string]string{
		"payload":   "hello",
		"signature": sigkit.Sign(priv, []byte("hello")),
	})
	if rec.Code != http.StatusAccepted || rec.Body.Len() != 0 {
		t.Fatalf("submit: %d %q", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/accounts/alice/sign/tx-1", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status: %d %q", rec.Code, rec.Body.String())
	}
	body := decodeStatus(t, rec)
	if body["transactionId"] != "tx-1" || body["complete"] != false {
		t.Fatalf("unexpected pending body: %v", body)
	}
	if _, ok := body["valid"]; ok {
		t.Fatalf("pending body must not carry valid: %v", body)
	}

	corrupted := []byte(sigkit.Sign(priv, []byte("hello")))
	if corrupted[0] == 'A' {
		corrupted[0] = 'B'
	} else {
		corrupted[0] = 'A'
	}
	rec = env.do(t, http.MethodPost, "/accounts/alice/sign/tx-2", map[string]string{
		"payload":   "hello",
		"signature": string(corrupted),
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit tx-2: %d", rec.Code)
	}

	env.drain(t)

	for tx, want := range map[string]bool{"tx-1": true, "tx-2": false} {
		rec = env.do(t, http.MethodGet, "/accounts/alice/sign/"+tx, nil)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("status %s: %d", tx, rec.Code)
		}
		body = decodeStatus(t, rec)
		if body["complete"] != true || body["valid"] != want {
			t.Fatalf("%s: unexpected body %v", tx, body)
		}
	}
}

func TestSubmitUnknownAccount(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)
	rec := env.do(t, http.MethodPost, "/accounts/ghost/sign/tx-1", map[string]string{"payload": "p", "signature": "s"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %q", rec.Code, rec.Body.String())
	}
	var body errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Code != "NOT_FOUND" {
		t.Fatalf("unexpected error body %q: %v", rec.Body.String(), err)
	}
}

func TestStatusUnknownTransaction(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)
	rec := env.do(t, http.MethodGet, "/accounts/alice/sign/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestStatusOfAnotherAccountIsHidden(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)
	pub, priv, _ := sigkit.GenerateKey(nil)
	env.do(t, http.MethodPost, "/accounts/alice", map[string]string{"pubKey": sigkit.Encode(pub)})
	env.do(t, http.MethodPost, "/accounts/alice/sign/tx-1", map[string]string{"payload": "p", "signature": sigkit.Sign(priv, []byte("p"))})

	if rec := env.do(t, http.MethodGet, "/accounts/mallory/sign/tx-1", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for other account, got %d", rec.Code)
	}
}

func TestSubmitConflicts(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)
	pub, priv, _ := sigkit.GenerateKey(nil)
	env.do(t, http.MethodPost, "/accounts/alice", map[string]string{"pubKey": sigkit.Encode(pub)})
	env.do(t, http.MethodPost, "/accounts/bob", map[string]string{"pubKey": sigkit.Encode(pub)})
	body := map[string]string{"payload": "p", "signature": sigkit.Sign(priv, []byte("p"))}

	if rec := env.do(t, http.MethodPost, "/accounts/alice/sign/tx-1", body); rec.Code != http.StatusAccepted {
		t.Fatalf("submit: %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/accounts/bob/sign/tx-1", body); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for foreign transaction, got %d", rec.Code)
	}
	env.drain(t)
	rec := env.do(t, http.MethodPost, "/accounts/alice/sign/tx-1", body)
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), "ALREADY_COMPLETE") {
		t.Fatalf("expected 409 ALREADY_COMPLETE, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestBadRequests(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)
	if rec := env.do(t, http.MethodPost, "/accounts/alice", "{not json"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid json, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/accounts/alice", map[string]string{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing pubKey, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/accounts/alice/sign/tx-1", "[]"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for wrong body shape, got %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := config.Config{RateLimitRequests: 1, RateLimitWindowSeconds: 60}
	env := newTestEnv(t, cfg, ratelimit.NewMemory(ratelimit.MemoryConfig{}))

	if rec := env.do(t, http.MethodGet, "/accounts/alice/sign/tx-1", nil); rec.Code == http.StatusTooManyRequests {
		t.Fatal("first request should not be limited")
	}
	rec := env.do(t, http.MethodGet, "/accounts/alice/sign/tx-1", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" || rec.Header().Get("RateLimit-Limit") != "1" {
		t.Fatalf("missing rate limit headers: %v", rec.Header())
	}
	if rec := env.do(t, http.MethodGet, "/accounts/bob/sign/tx-1", nil); rec.Code == http.StatusTooManyRequests {
		t.Fatal("other account should have its own window")
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, int, time.Duration) (domain.RateLimitDecision, error) {
	return domain.RateLimitDecision{}, errors.New("redis down")
}

func TestRateLimitFailClosed(t *testing.T) {
	open := newTestEnv(t, config.Config{RateLimitRequests: 1}, failingLimiter{})
	if rec := open.do(t, http.MethodGet, "/accounts/alice/sign/tx-1", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("fail-open limiter should pass through, got %d", rec.Code)
	}
	closed := newTestEnv(t, config.Config{RateLimitRequests: 1, RateLimitFailClosed: true}, failingLimiter{})
	if rec := closed.do(t, http.MethodGet, "/accounts/alice/sign/tx-1", nil); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("fail-closed limiter should reject, got %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)
	rec := env.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"store":"memory"`) {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}
	env.do(t, http.MethodGet, "/accounts/alice/sign/missing", nil)

	rec = env.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "sigqueue_http_requests_total") {
		t.Fatalf("metrics output missing request counter:\n%s", rec.Body.String())
	}
}
