package statuscache

import (
	"testing"

	"sigqueue/internal/domain"
	"sigqueue/internal/usecase"
)

func TestCacheKeepsOnlyTerminalRecords(t *testing.T) {
	c, err := New(8)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	c.Put("tx-pending", usecase.CachedStatus{Record: domain.PendingRecord("tx-pending")})
	if _, ok := c.Get("tx-pending"); ok {
		t.Fatal("pending record must not be cached")
	}

	c.Put("tx-done", usecase.CachedStatus{Record: domain.CompletedRecord("tx-done", true), Owner: "alice"})
	got, ok := c.Get("tx-done")
	if !ok {
		t.Fatal("expected cached terminal record")
	}
	if !got.Record.Complete || got.Record.Valid == nil || !*got.Record.Valid || got.Owner != "alice" {
		t.Fatalf("unexpected cached value: %+v", got)
	}
}

func TestCacheEvictsOldest(t *testing.T) {
	c, err := New(2)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	for _, id := range []string{"a", "b", "c"} {
		c.Put(id, usecase.CachedStatus{Record: domain.CompletedRecord(id, false)})
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected oldest entry evicted")
	}
}

func TestNilCacheIsInert(t *testing.T) {
	var c *Cache
	c.Put("x", usecase.CachedStatus{Record: domain.CompletedRecord("x", true)})
	if _, ok := c.Get("x"); ok {
		t.Fatal("nil cache should never hit")
	}
}

func TestNewRejectsInvalidSize(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Fatal("expected error for zero size")
	}
}
