package edk

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// TableCache memoizes loads from a TableSource. Entity workers running
// concurrently frequently ask for the same table; the cache guarantees
// at-most-once computation per ref via singleflight and serves every later
// request from memory. Cached Rows are shared and must not be mutated by
// callers.
type TableCache struct {
	src TableSource

	group  singleflight.Group
	mu     sync.RWMutex
	tables map[string]Rows
}

// NewTableCache wraps src in a memoizing loader.
func NewTableCache(src TableSource) *TableCache {
	return &TableCache{
		src:    src,
		tables: make(map[string]Rows),
	}
}

// Load implements TableLoader.
func (c *TableCache) Load(ctx context.Context, ref string) (Rows, error) {
	c.mu.RLock()
	rows, ok := c.tables[ref]
	c.mu.RUnlock()
	if ok {
		return rows, nil
	}
	v, err, _ := c.group.Do(ref, func() (interface{}, error) {
		rows, err := c.src.Load(ctx, ref)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.tables[ref] = rows
		c.mu.Unlock()
		return rows, nil
	})
	if err != nil {
		// Failed loads are not cached; a later entity may retry.
		return nil, err
	}
	return v.(Rows), nil
}

// Len returns the number of cached tables.
func (c *TableCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tables)
}
