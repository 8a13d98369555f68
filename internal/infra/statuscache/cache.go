package statuscache

import (
	"sigqueue/internal/usecase"

	lru "github.com/hashicorp/golang-lru"
)

// Cache holds terminal verification records. Terminal records never change,
// so an entry can be served without re-reading the store. Pending records
// must not be put here.
type Cache struct {
	entries *lru.Cache
}

func New(size int) (*Cache, error) {
	entries, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries}, nil
}

func (c *Cache) Get(transactionID string) (usecase.CachedStatus, bool) {
	if c == nil {
		return usecase.CachedStatus{}, false
	}
	v, ok := c.entries.Get(transactionID)
	if !ok {
		return usecase.CachedStatus{}, false
	}
	// Put is the only writer.
	return v.(usecase.CachedStatus), true
}

func (c *Cache) Put(transactionID string, status usecase.CachedStatus) {
	if c == nil || !status.Record.Complete {
		return
	}
	c.entries.Add(transactionID, status)
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
