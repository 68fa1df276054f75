package cache

import "context"

// ArchiveStore holds large payloads as gzip-compressed envelope files. It has
// no quota; entries leave only by TTL expiry or an explicit clear.
type ArchiveStore struct {
	*fileStore
}

// NewArchiveStore opens (creating if needed) an archive tier rooted at dir.
func NewArchiveStore(dir string) (*ArchiveStore, error) {
	fs, err := newFileStore(TierArchive, dir, ".entry.gz", true, 0)
	if err != nil {
		return nil, err
	}
	return &ArchiveStore{fileStore: fs}, nil
}

// Lookup is the outcome of an asynchronous archive read.
type Lookup struct {
	Entry Entry
	Found bool
	Err   error
}

// GetAsync reads id in the background. The channel receives exactly one
// Lookup and is then closed.
func (a *ArchiveStore) GetAsync(ctx context.Context, id string) <-chan Lookup {
	ch := make(chan Lookup, 1)
	go func() {
		defer close(ch)
		e, ok, err := a.Get(ctx, id)
		ch <- Lookup{Entry: e, Found: ok, Err: err}
	}()
	return ch
}
