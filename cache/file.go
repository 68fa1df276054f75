package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// fileStore keeps one envelope file per id under dir. File names are the
// hex-encoded id, so any id maps to a safe and unique name.
type fileStore struct {
	tier     Tier
	dir      string
	ext      string
	gzip     bool
	locks    keyLocks
	mu       sync.RWMutex
	index    map[string]fileMeta
	seq      uint64
	used     int64
	maxBytes int64
}

// fileMeta orders files by write: seq grows with every Put, and files found
// on disk get sequence numbers in modification-time order.
type fileMeta struct {
	size int64
	seq  uint64
}

func newFileStore(tier Tier, dir, ext string, gz bool, maxBytes int64) (*fileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &CacheError{Tier: tier, Kind: KindUnavailable, Err: fmt.Errorf("failed to create directory: %w", err)}
	}
	s := &fileStore{tier: tier, dir: dir, ext: ext, gzip: gz, index: make(map[string]fileMeta), maxBytes: maxBytes}
	if err := s.scan(); err != nil {
		return nil, &CacheError{Tier: tier, Kind: KindUnavailable, Err: err}
	}
	return s, nil
}

// scan rebuilds the size index from disk so quotas hold across restarts.
func (s *fileStore) scan() error {
	des, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}
	type found struct {
		id   string
		size int64
		mod  time.Time
	}
	var files []found
	for _, de := range des {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, s.ext) {
			continue
		}
		raw, err := hex.DecodeString(strings.TrimSuffix(name, s.ext))
		if err != nil {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		files = append(files, found{string(raw), info.Size(), info.ModTime()})
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })
	for _, f := range files {
		s.seq++
		s.index[f.id] = fileMeta{size: f.size, seq: s.seq}
		s.used += f.size
	}
	return nil
}

func (s *fileStore) path(id string) string {
	return filepath.Join(s.dir, hex.EncodeToString([]byte(id))+s.ext)
}

func (s *fileStore) Tier() Tier { return s.tier }

func (s *fileStore) Get(ctx context.Context, id string) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, err
	}
	unlock := s.locks.lock(id)
	defer unlock()
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, &CacheError{Tier: s.tier, Kind: KindUnavailable, ID: id, Err: fmt.Errorf("failed to read entry: %w", err)}
	}
	if s.gzip {
		if data, err = decompress(data); err != nil {
			return Entry{}, false, s.corrupted(id, err)
		}
	}
	e, err := decodeEntry(data)
	if err != nil {
		return Entry{}, false, s.corrupted(id, err)
	}
	if e.ID != id {
		return Entry{}, false, s.corrupted(id, fmt.Errorf("envelope names %q", e.ID))
	}
	e.Tier = s.tier
	return e, true, nil
}

// corrupted drops the unreadable file; the caller holds the key lock.
func (s *fileStore) corrupted(id string, err error) error {
	s.removeLocked(id)
	return &CacheError{Tier: s.tier, Kind: KindCorrupted, ID: id, Err: err}
}

func (s *fileStore) Put(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.Tier = s.tier
	data, err := encodeEntry(e)
	if err != nil {
		return &CacheError{Tier: s.tier, Kind: KindUnavailable, ID: e.ID, Err: err}
	}
	if s.gzip {
		if data, err = compress(data); err != nil {
			return &CacheError{Tier: s.tier, Kind: KindUnavailable, ID: e.ID, Err: fmt.Errorf("failed to compress entry: %w", err)}
		}
	}
	size := int64(len(data))

	unlock := s.locks.lock(e.ID)
	defer unlock()

	s.mu.Lock()
	prev, had := s.index[e.ID]
	if s.maxBytes > 0 && s.used-prev.size+size > s.maxBytes {
		s.mu.Unlock()
		return &CacheError{Tier: s.tier, Kind: KindQuotaExceeded, ID: e.ID}
	}
	// Reserve before the write so concurrent ids cannot overshoot the quota.
	s.seq++
	s.index[e.ID] = fileMeta{size: size, seq: s.seq}
	s.used += size - prev.size
	s.mu.Unlock()

	if err := writeFileAtomic(s.dir, s.path(e.ID), data); err != nil {
		// The rename never happened, so the previous file is still current.
		s.mu.Lock()
		s.used -= size - prev.size
		if had {
			s.index[e.ID] = prev
		} else {
			delete(s.index, e.ID)
		}
		s.mu.Unlock()
		return &CacheError{Tier: s.tier, Kind: KindUnavailable, ID: e.ID, Err: err}
	}
	return nil
}

func writeFileAtomic(dir, path string, data []byte) error {
	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write entry: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write entry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write entry: %w", err)
	}
	return nil
}

func (s *fileStore) Delete(_ context.Context, id string) error {
	unlock := s.locks.lock(id)
	defer unlock()
	return s.removeLocked(id)
}

func (s *fileStore) removeLocked(id string) error {
	err := os.Remove(s.path(id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &CacheError{Tier: s.tier, Kind: KindUnavailable, ID: id, Err: fmt.Errorf("failed to delete entry: %w", err)}
	}
	s.mu.Lock()
	if m, ok := s.index[id]; ok {
		s.used -= m.size
		delete(s.index, id)
	}
	s.mu.Unlock()
	return nil
}

// Purge reads every entry to check its expiry. Unreadable entries are
// removed as well.
func (s *fileStore) Purge(ctx context.Context, now time.Time, expiredOnly bool) (int, error) {
	var errs []error
	n := 0
	for _, id := range s.ids() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if expiredOnly {
			e, ok, err := s.Get(ctx, id)
			switch {
			case errors.Is(err, ErrCorrupted):
				// Get already removed it.
				n++
				continue
			case err != nil:
				errs = append(errs, err)
				continue
			case !ok || !e.Expired(now):
				continue
			}
		}
		if err := s.Delete(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

func (s *fileStore) ids() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.index))
	for id := range s.index {
		out = append(out, id)
	}
	return out
}

func (s *fileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// Used returns the bytes currently stored on disk.
func (s *fileStore) Used() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used
}
