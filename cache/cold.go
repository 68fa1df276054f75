package cache

import (
	"context"
	"sort"
)

// ColdStore is the durable tier: one msgpack envelope file per id, bounded by
// a byte quota, surviving process restarts.
type ColdStore struct {
	*fileStore
}

// NewColdStore opens (creating if needed) a cold tier rooted at dir.
func NewColdStore(dir string, maxBytes int64) (*ColdStore, error) {
	fs, err := newFileStore(TierCold, dir, ".entry", false, maxBytes)
	if err != nil {
		return nil, err
	}
	return &ColdStore{fileStore: fs}, nil
}

// MakeRoom deletes the least recently written entries until need more bytes
// fit.
func (c *ColdStore) MakeRoom(ctx context.Context, need int64) (int, error) {
	type cand struct {
		id   string
		meta fileMeta
	}
	c.mu.RLock()
	if c.maxBytes <= 0 || c.used+need <= c.maxBytes {
		c.mu.RUnlock()
		return 0, nil
	}
	all := make([]cand, 0, len(c.index))
	for id, m := range c.index {
		all = append(all, cand{id, m})
	}
	c.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool { return all[i].meta.seq < all[j].meta.seq })

	n := 0
	for _, cd := range all {
		if c.Used()+need <= c.maxBytes {
			break
		}
		if err := c.Delete(ctx, cd.id); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
