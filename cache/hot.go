package cache

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

type hotItem struct {
	entry    Entry
	accessed time.Time
}

// HotStore is the bounded in-process tier. A single mutex scoped to the LRU
// serializes every mutation, reads included, since a read reorders the list.
type HotStore struct {
	mu      sync.Mutex
	lru     *simplelru.LRU[string, *hotItem]
	now     func() time.Time
	evicted int
}

// NewHotStore returns a hot tier holding at most capacity entries.
func NewHotStore(capacity int, now func() time.Time) (*HotStore, error) {
	if now == nil {
		now = time.Now
	}
	h := &HotStore{now: now}
	l, err := simplelru.NewLRU[string, *hotItem](capacity, nil)
	if err != nil {
		return nil, fmt.Errorf("cache: hot tier: %w", err)
	}
	h.lru = l
	return h, nil
}

func (h *HotStore) Tier() Tier { return TierHot }

func (h *HotStore) Get(_ context.Context, id string) (Entry, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	it, ok := h.lru.Get(id)
	if !ok {
		return Entry{}, false, nil
	}
	it.accessed = h.now()
	return it.entry.Clone(), true, nil
}

// Put inserts or replaces an entry, marking it most recently accessed. When
// the tier is full the least recently accessed entry is evicted.
func (h *HotStore) Put(_ context.Context, e Entry) error {
	e = e.Clone()
	e.Tier = TierHot
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lru.Add(e.ID, &hotItem{entry: e, accessed: h.now()}) {
		h.evicted++
	}
	return nil
}

func (h *HotStore) Delete(_ context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lru.Remove(id)
	return nil
}

func (h *HotStore) Purge(_ context.Context, now time.Time, expiredOnly bool) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !expiredOnly {
		n := h.lru.Len()
		h.lru.Purge()
		return n, nil
	}
	n := 0
	for _, id := range h.lru.Keys() {
		if it, ok := h.lru.Peek(id); ok && it.entry.Expired(now) {
			h.lru.Remove(id)
			n++
		}
	}
	return n, nil
}

func (h *HotStore) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lru.Len()
}

// EvictFraction removes ceil(fraction * Len) entries, least recently accessed
// first, and returns their ids.
func (h *HotStore) EvictFraction(fraction float64) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if fraction <= 0 {
		return nil
	}
	n := int(math.Ceil(fraction * float64(h.lru.Len())))
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, _, ok := h.lru.RemoveOldest()
		if !ok {
			break
		}
		out = append(out, id)
	}
	h.evicted += len(out)
	return out
}

// Clear drops every entry and returns how many there were.
func (h *HotStore) Clear() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := h.lru.Len()
	h.lru.Purge()
	return n
}

// Keys returns ids from least to most recently accessed.
func (h *HotStore) Keys() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lru.Keys()
}

// AccessedAt returns the last access time of id without touching it.
func (h *HotStore) AccessedAt(id string) (time.Time, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	it, ok := h.lru.Peek(id)
	if !ok {
		return time.Time{}, false
	}
	return it.accessed, true
}

// Evictions counts entries dropped for capacity or pressure.
func (h *HotStore) Evictions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.evicted
}
