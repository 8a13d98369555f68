package main

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sigqueue/api/clients/sigqueue"
	"sigqueue/internal/bootstrap"
	"sigqueue/internal/config"
	"sigqueue/internal/domain"
	"sigqueue/internal/infra/crypto"
	httpinfra "sigqueue/internal/infra/http"
	"sigqueue/internal/infra/memstore"
	"sigqueue/internal/usecase"
	"sigqueue/pkg/sigkit"

	"github.com/gin-gonic/gin"
)

type nopCloser struct {
	*memstore.Store
}

func (nopCloser) Close() error { return nil }

func newTestApp(store *memstore.Store, api string) (*app, *bytes.Buffer) {
	out := &bytes.Buffer{}
	a := &app{
		ctx: context.Background(),
		out: out,
		openBackend: func(context.Context) (bootstrap.Backend, error) {
			return nopCloser{store}, nil
		},
	}
	a.opts.API = api
	return a, out
}

func TestKeygenAndSign(t *testing.T) {
	a, out := newTestApp(nil, "")
	if err := a.run([]string{"keygen"}); err != nil {
		t.Fatalf("keygen: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("unexpected keygen output %q", out.String())
	}
	pub := strings.TrimSpace(strings.TrimPrefix(lines[0], "public:"))
	priv := strings.TrimSpace(strings.TrimPrefix(lines[1], "private:"))

	out.Reset()
	if err := a.run([]string{"sign", "--key", priv, "--payload", "hello"}); err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig := strings.TrimSpace(out.String())

	pk, err := sigkit.ParsePublicKey(pub)
	if err != nil {
		t.Fatalf("parse public key: %v", err)
	}
	raw, err := sigkit.DecodeBinary(sig)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	if !ed25519.Verify(pk, []byte("hello"), raw) {
		t.Fatal("signature from sign command does not verify")
	}
}

func TestSubmitAndStatusAgainstAPI(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := memstore.New(memstore.Config{})
	server := httpinfra.NewServer(config.Config{StoreMode: config.StoreModeMemory}, httpinfra.ServerDeps{
		Admission: &usecase.Admission{Accounts: store, Statuses: store, Queue: store},
	})
	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	pub, priv, _ := sigkit.GenerateKey(nil)
	a, out := newTestApp(store, srv.URL)
	if err := a.run([]string{"register", "--account", "alice", "--pubkey", sigkit.Encode(pub)}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := a.run([]string{"submit", "--account", "alice", "--tx", "tx-1", "--payload", "hello", "--key", sigkit.Encode(priv.Seed())}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	worker := &usecase.Worker{
		Identity: domain.MustWorkerIdentity("w1"),
		Queue:    store,
		Statuses: store,
		Verifier: crypto.NewService(),
		Poison:   store,
	}
	entry, err := store.Reserve(context.Background(), worker.Identity, time.Second)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := worker.Process(context.Background(), entry); err != nil {
		t.Fatalf("process: %v", err)
	}

	out.Reset()
	if err := a.run([]string{"status", "--account", "alice", "--tx", "tx-1"}); err != nil {
		t.Fatalf("status: %v", err)
	}
	var status sigqueue.Status
	if err := json.Unmarshal(out.Bytes(), &status); err != nil {
		t.Fatalf("decode status %q: %v", out.String(), err)
	}
	if !status.Complete || status.Valid == nil || !*status.Valid {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestStageRequeue(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(memstore.Config{})
	dead := domain.MustWorkerIdentity("dead-worker")
	for _, entry := range []string{"a", "b"} {
		_ = store.Enqueue(ctx, entry)
		if _, err := store.Reserve(ctx, dead, time.Second); err != nil {
			t.Fatalf("reserve: %v", err)
		}
	}

	a, out := newTestApp(store, "")
	if err := a.run([]string{"stage", "list", "--worker", "dead-worker"}); err != nil {
		t.Fatalf("stage list: %v", err)
	}
	if out.String() != "a\nb\n" {
		t.Fatalf("unexpected stage listing %q", out.String())
	}

	if err := store.Claim(ctx, dead, "alive", time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := a.run([]string{"stage", "requeue", "--worker", "dead-worker"}); err == nil {
		t.Fatal("requeue must refuse while the worker holds its lease")
	}
	_ = store.Release(ctx, dead, "alive")

	out.Reset()
	if err := a.run([]string{"stage", "requeue", "--worker", "dead-worker"}); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if !strings.Contains(out.String(), "requeued 2 entries") {
		t.Fatalf("unexpected output %q", out.String())
	}
	if depth, _ := store.Depth(ctx); depth != 2 {
		t.Fatalf("depth = %d, want 2", depth)
	}
}

func TestPoisonList(t *testing.T) {
	store := memstore.New(memstore.Config{})
	_ = store.Record(context.Background(), domain.PoisonMessage{ID: "p1", WorkerID: "w1", Raw: "{bad", Reason: "invalid json"})

	a, out := newTestApp(store, "")
	if err := a.run([]string{"poison", "list", "--limit", "5"}); err != nil {
		t.Fatalf("poison list: %v", err)
	}
	var messages []domain.PoisonMessage
	if err := json.Unmarshal(out.Bytes(), &messages); err != nil {
		t.Fatalf("decode %q: %v", out.String(), err)
	}
	if len(messages) != 1 || messages[0].Reason != "invalid json" {
		t.Fatalf("unexpected messages: %+v", messages)
	}
}
