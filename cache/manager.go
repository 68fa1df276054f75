package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/reoring/formstate/codec"
)

// SaveOptions controls one write.
type SaveOptions struct {
	// Sensitive fields are redacted before anything leaves the hot tier.
	Sensitive []string
}

// Report is the outcome of a write. Warnings are non-fatal: the hot copy is
// always current even when every lower tier failed.
type Report struct {
	ID       string
	Size     int
	Tiers    []Tier
	Warnings []error
}

// Err joins the warnings.
func (r Report) Err() error { return errors.Join(r.Warnings...) }

// Wrote reports whether t received the entry.
func (r Report) Wrote(t Tier) bool {
	for _, x := range r.Tiers {
		if x == t {
			return true
		}
	}
	return false
}

// Write tracks a save whose lower-tier part runs in the background.
type Write struct {
	id     string
	done   chan struct{}
	cancel context.CancelFunc
	report Report
}

// ID returns the entry id.
func (w *Write) ID() string { return w.id }

// Done is closed once the write finished or was cancelled.
func (w *Write) Done() <-chan struct{} { return w.done }

// Wait blocks until the write finished and returns its report.
func (w *Write) Wait() Report {
	<-w.done
	return w.report
}

func (w *Write) warn(err error) { w.report.Warnings = append(w.report.Warnings, err) }

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger; the default discards.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager is the process-wide tiered store shared by form instances. Entries
// for different ids never wait on each other; writes for the same id apply
// in call order.
type Manager struct {
	cfg     Config
	hot     *HotStore
	warm    *WarmStore
	cold    *ColdStore
	archive *ArchiveStore
	payload codec.Encoding
	compact codec.Encoding
	log     *slog.Logger
	now     func() time.Time

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu       sync.Mutex
	tails    map[string]*Write
	inflight map[string]map[*Write]struct{}
	closed   bool
}

// New builds a Manager. Zero config fields take their defaults. A cold or
// archive directory that cannot be opened leaves that tier unavailable and
// every write reports it as a warning.
func New(cfg Config, opts ...Option) (*Manager, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		cfg:      cfg,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		tails:    make(map[string]*Write),
		inflight: make(map[string]map[*Write]struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	var err error
	if m.payload, err = codec.ByName(cfg.Encoding); err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	m.compact = codec.Msgpack()
	if m.hot, err = NewHotStore(cfg.HotCapacity, m.now); err != nil {
		return nil, err
	}
	m.warm = NewWarmStore(cfg.WarmMaxBytes)
	if cfg.Dir != "" {
		if m.cold, err = NewColdStore(filepath.Join(cfg.Dir, "cold"), cfg.ColdMaxBytes); err != nil {
			m.log.Warn("cold tier unavailable", "dir", cfg.Dir, "err", err)
		}
		if m.archive, err = NewArchiveStore(filepath.Join(cfg.Dir, "archive")); err != nil {
			m.log.Warn("archive tier unavailable", "dir", cfg.Dir, "err", err)
		}
	}
	m.ctx, m.stop = context.WithCancel(context.Background())
	return m, nil
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// Hot exposes the hot tier.
func (m *Manager) Hot() *HotStore { return m.hot }

// Warm exposes the warm tier.
func (m *Manager) Warm() *WarmStore { return m.warm }

// Store returns the store backing t, or nil when the tier is unavailable.
func (m *Manager) Store(t Tier) Store {
	switch t {
	case TierHot:
		return m.hot
	case TierWarm:
		return m.warm
	case TierCold:
		if m.cold != nil {
			return m.cold
		}
	case TierArchive:
		if m.archive != nil {
			return m.archive
		}
	}
	return nil
}

// SelectTiers returns the lower tiers a payload of size bytes is written to.
func (m *Manager) SelectTiers(size int) []Tier {
	switch {
	case size < m.cfg.WarmThreshold:
		return []Tier{TierWarm}
	case size < m.cfg.ColdThreshold:
		return []Tier{TierWarm, TierCold}
	default:
		return []Tier{TierArchive}
	}
}

// Save writes snap to the hot tier before returning, then writes the redacted
// snapshot to the tiers chosen by its compact size in the background.
// Lower-tier copies not chosen this time are removed so reads never see an
// older version.
func (m *Manager) Save(ctx context.Context, id string, snap codec.Snapshot, opts SaveOptions) *Write {
	w := &Write{id: id, done: make(chan struct{}), report: Report{ID: id}}
	fail := func(err error) *Write {
		w.warn(err)
		close(w.done)
		return w
	}
	if id == "" {
		return fail(errors.New("cache: empty id"))
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return fail(&CacheError{Tier: TierHot, Kind: KindUnavailable, ID: id, Err: errors.New("manager closed")})
	}

	now := m.now()
	full, err := m.payload.EncodeSnapshot(snap)
	if err != nil {
		return fail(err)
	}
	entry := Entry{ID: id, CreatedAt: now, ExpiresAt: now.Add(m.cfg.TTL)}
	hot := entry
	hot.Payload = full
	_ = m.hot.Put(ctx, hot)
	w.report.Tiers = append(w.report.Tiers, TierHot)

	redacted := codec.Redact(snap, opts.Sensitive)
	compact, err := m.compact.EncodeSnapshot(redacted)
	if err != nil {
		m.log.Warn("snapshot not persisted below hot tier", "id", id, "err", err)
		return fail(err)
	}
	w.report.Size = len(compact)
	entry.Payload = compact
	if m.payload.Name() != m.compact.Name() {
		if entry.Payload, err = m.payload.EncodeSnapshot(redacted); err != nil {
			return fail(err)
		}
	}
	tiers := m.SelectTiers(len(compact))

	wctx, cancel := context.WithCancel(m.ctx)
	w.cancel = cancel
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return fail(&CacheError{Tier: TierHot, Kind: KindUnavailable, ID: id, Err: errors.New("manager closed")})
	}
	prev := m.tails[id]
	m.tails[id] = w
	if m.inflight[id] == nil {
		m.inflight[id] = make(map[*Write]struct{})
	}
	m.inflight[id][w] = struct{}{}
	m.wg.Add(1)
	m.mu.Unlock()

	go m.runWrite(wctx, w, prev, entry, tiers)
	return w
}

func (m *Manager) runWrite(ctx context.Context, w *Write, prev *Write, e Entry, tiers []Tier) {
	defer m.wg.Done()
	defer m.finish(w)
	if prev != nil {
		select {
		case <-prev.done:
		case <-ctx.Done():
		}
	}
	selected := make(map[Tier]bool, len(tiers))
	for _, t := range tiers {
		selected[t] = true
	}
	for _, t := range []Tier{TierWarm, TierCold, TierArchive} {
		if err := ctx.Err(); err != nil {
			w.warn(fmt.Errorf("cache: write %q cancelled: %w", w.id, err))
			return
		}
		st := m.Store(t)
		if !selected[t] {
			if st != nil {
				if err := st.Delete(ctx, e.ID); err != nil {
					m.log.Warn("stale entry not removed", "id", e.ID, "tier", t.String(), "err", err)
				}
			}
			continue
		}
		if st == nil {
			w.warn(&CacheError{Tier: t, Kind: KindUnavailable, ID: e.ID})
			continue
		}
		if err := m.put(ctx, st, e); err != nil {
			m.log.Warn("tier write dropped", "id", e.ID, "tier", t.String(), "err", err)
			w.warn(err)
			continue
		}
		w.report.Tiers = append(w.report.Tiers, t)
	}
	m.log.Debug("snapshot persisted", "id", e.ID, "size", len(e.Payload), "tiers", fmt.Sprint(w.report.Tiers))
}

// put retries once after making room when the tier is over quota.
func (m *Manager) put(ctx context.Context, st Store, e Entry) error {
	err := st.Put(ctx, e)
	if !errors.Is(err, ErrQuotaExceeded) {
		return err
	}
	rm, ok := st.(roomMaker)
	if !ok {
		return err
	}
	if _, rerr := rm.MakeRoom(ctx, int64(e.Size())); rerr != nil {
		return errors.Join(err, rerr)
	}
	return st.Put(ctx, e)
}

func (m *Manager) finish(w *Write) {
	m.mu.Lock()
	if set := m.inflight[w.id]; set != nil {
		delete(set, w)
		if len(set) == 0 {
			delete(m.inflight, w.id)
		}
	}
	if m.tails[w.id] == w {
		delete(m.tails, w.id)
	}
	m.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
	close(w.done)
}

// Load checks the tiers fastest first. A hit below Hot is copied into every
// faster tier before returning. Misses, expired entries and corrupted
// entries all yield found == false; only a cancelled ctx is an error.
func (m *Manager) Load(ctx context.Context, id string) (codec.Snapshot, bool, error) {
	now := m.now()
	for _, t := range []Tier{TierHot, TierWarm, TierCold, TierArchive} {
		if err := ctx.Err(); err != nil {
			return codec.Snapshot{}, false, err
		}
		st := m.Store(t)
		if st == nil {
			continue
		}
		e, ok, err := m.get(ctx, st, id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return codec.Snapshot{}, false, ctxErr
			}
			m.log.Warn("tier read failed", "id", id, "tier", t.String(), "err", err)
			continue
		}
		if !ok {
			continue
		}
		if e.Expired(now) {
			_ = st.Delete(ctx, id)
			continue
		}
		snap, err := m.payload.DecodeSnapshot(e.Payload)
		if err != nil {
			m.log.Warn("corrupted entry discarded", "id", id, "tier", t.String(), "err", err)
			_ = st.Delete(ctx, id)
			continue
		}
		m.warmFaster(ctx, t, e)
		return snap, true, nil
	}
	return codec.Snapshot{}, false, nil
}

func (m *Manager) get(ctx context.Context, st Store, id string) (Entry, bool, error) {
	a, ok := st.(*ArchiveStore)
	if !ok {
		return st.Get(ctx, id)
	}
	select {
	case r := <-a.GetAsync(ctx, id):
		return r.Entry, r.Found, r.Err
	case <-ctx.Done():
		return Entry{}, false, ctx.Err()
	}
}

func (m *Manager) warmFaster(ctx context.Context, hit Tier, e Entry) {
	for t := TierHot; t < hit; t++ {
		st := m.Store(t)
		if st == nil {
			continue
		}
		if err := m.put(ctx, st, e); err != nil {
			m.log.Debug("tier not warmed", "id", e.ID, "tier", t.String(), "err", err)
		}
	}
}

// Pressure reacts to a memory-pressure signal. Cold and archive entries are
// never touched.
func (m *Manager) Pressure(ctx context.Context, level Level) (PressureReport, error) {
	rep := PressureReport{Level: level}
	var err error
	switch level {
	case PressureLow:
	case PressureMedium:
		rep.HotEvicted = m.hot.EvictFraction(m.cfg.Eviction.Medium)
	case PressureHigh:
		rep.HotEvicted = m.hot.EvictFraction(m.cfg.Eviction.High)
		rep.WarmPurged, err = m.warm.Purge(ctx, m.now(), true)
	case PressureCritical:
		rep.HotEvicted = m.hot.Keys()
		m.hot.Clear()
		rep.WarmPurged, err = m.warm.Purge(ctx, m.now(), false)
	default:
		return rep, fmt.Errorf("cache: unknown pressure level %d", uint8(level))
	}
	if level != PressureLow {
		m.log.Info("memory pressure handled", "level", level.String(), "hot_evicted", len(rep.HotEvicted), "warm_purged", rep.WarmPurged)
	}
	return rep, err
}

// Sweep removes expired entries from every tier and returns how many went.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	now := m.now()
	total := 0
	var errs []error
	for _, t := range []Tier{TierHot, TierWarm, TierCold, TierArchive} {
		st := m.Store(t)
		if st == nil {
			continue
		}
		n, err := st.Purge(ctx, now, true)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	if total > 0 {
		m.log.Info("expired entries swept", "count", total)
	}
	return total, errors.Join(errs...)
}

// Clear cancels pending writes for id, waits for them, and removes id from
// every tier.
func (m *Manager) Clear(ctx context.Context, id string) error {
	for _, w := range m.cancelWrites(id) {
		select {
		case <-w.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	var errs []error
	for _, t := range []Tier{TierHot, TierWarm, TierCold, TierArchive} {
		if st := m.Store(t); st != nil {
			if err := st.Delete(ctx, id); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Cancel stops in-flight writes for id and drops its hot entry. Lower-tier
// copies already written stay.
func (m *Manager) Cancel(id string) {
	m.cancelWrites(id)
	_ = m.hot.Delete(context.Background(), id)
}

func (m *Manager) cancelWrites(id string) []*Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Write, 0, len(m.inflight[id]))
	for w := range m.inflight[id] {
		w.cancel()
		out = append(out, w)
	}
	return out
}

// Close cancels every pending write and waits for the background tasks.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()
	m.stop()
	m.wg.Wait()
	return nil
}
