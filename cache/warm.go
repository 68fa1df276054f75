package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

// WarmStore is the session-scoped tier: entries live as long as the process
// that owns the Manager and share a byte quota. MakeRoom evicts the least
// recently written entries first.
type WarmStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	written map[string]uint64
	seq     uint64
	used    int64
	max     int64
}

// NewWarmStore returns a warm tier bounded to maxBytes of payload.
func NewWarmStore(maxBytes int64) *WarmStore {
	return &WarmStore{entries: make(map[string]Entry), written: make(map[string]uint64), max: maxBytes}
}

func (w *WarmStore) Tier() Tier { return TierWarm }

func (w *WarmStore) Get(_ context.Context, id string) (Entry, bool, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.entries[id]
	if !ok {
		return Entry{}, false, nil
	}
	return e.Clone(), true, nil
}

// Put fails with KindQuotaExceeded when the entry does not fit; it never
// evicts on its own.
func (w *WarmStore) Put(_ context.Context, e Entry) error {
	e = e.Clone()
	e.Tier = TierWarm
	w.mu.Lock()
	defer w.mu.Unlock()
	size := int64(e.Size())
	var old int64
	if prev, ok := w.entries[e.ID]; ok {
		old = int64(prev.Size())
	}
	if w.max > 0 && w.used-old+size > w.max {
		return &CacheError{Tier: TierWarm, Kind: KindQuotaExceeded, ID: e.ID}
	}
	w.entries[e.ID] = e
	w.seq++
	w.written[e.ID] = w.seq
	w.used += size - old
	return nil
}

func (w *WarmStore) Delete(_ context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deleteLocked(id)
	return nil
}

func (w *WarmStore) deleteLocked(id string) {
	if e, ok := w.entries[id]; ok {
		w.used -= int64(e.Size())
		delete(w.entries, id)
		delete(w.written, id)
	}
}

func (w *WarmStore) Purge(_ context.Context, now time.Time, expiredOnly bool) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for id, e := range w.entries {
		if !expiredOnly || e.Expired(now) {
			w.deleteLocked(id)
			n++
		}
	}
	return n, nil
}

func (w *WarmStore) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.entries)
}

// Used returns the payload bytes currently stored.
func (w *WarmStore) Used() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.used
}

// MakeRoom evicts the least recently written entries until need more bytes
// fit.
func (w *WarmStore) MakeRoom(_ context.Context, need int64) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.max <= 0 || w.used+need <= w.max {
		return 0, nil
	}
	ids := make([]string, 0, len(w.entries))
	for id := range w.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return w.written[ids[i]] < w.written[ids[j]] })
	n := 0
	for _, id := range ids {
		if w.used+need <= w.max {
			break
		}
		w.deleteLocked(id)
		n++
	}
	return n, nil
}
