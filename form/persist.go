package form

import (
	"context"
	"fmt"
	"sort"

	"github.com/reoring/formstate"
	"github.com/reoring/formstate/cache"
	"github.com/reoring/formstate/codec"
)

// Persister stores snapshots of form instances. *cache.Manager implements it.
type Persister interface {
	Save(ctx context.Context, id string, snap codec.Snapshot, opts cache.SaveOptions) *cache.Write
	Load(ctx context.Context, id string) (codec.Snapshot, bool, error)
	Cancel(id string)
}

var _ Persister = (*cache.Manager)(nil)

// Snapshot captures the persistable state of the instance.
func (c *Container) Snapshot() codec.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Container) snapshotLocked() codec.Snapshot {
	return codec.Snapshot{
		FormKey:     c.cfg.key,
		Schema:      c.schema.Name(),
		Values:      c.values.Clone(),
		Touched:     c.flags.Names(formstate.FlagTouched),
		Dirty:       c.flags.Names(formstate.FlagDirty),
		SubmitCount: c.submitCount,
		SavedAt:     c.cfg.now().UTC(),
	}
}

func (c *Container) saveOptions() cache.SaveOptions {
	seen := map[string]struct{}{}
	var out []string
	for _, f := range append(c.schema.SensitiveFields(), c.cfg.saveOpts.Sensitive...) {
		if _, ok := seen[f]; !ok {
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	sort.Strings(out)
	opts := c.cfg.saveOpts
	opts.Sensitive = out
	return opts
}

func (c *Container) saveLocked(ctx context.Context) *cache.Write {
	return c.cfg.persister.Save(ctx, c.cfg.key, c.snapshotLocked(), c.saveOptions())
}

// persistLocked autosaves after a mutation.
func (c *Container) persistLocked() {
	if c.cfg.persister == nil || !c.cfg.autosave {
		return
	}
	c.saveLocked(context.Background())
}

// Save writes a snapshot now. The hot copy is stored before Save returns;
// the returned Write completes when the lower tiers are done.
func (c *Container) Save(ctx context.Context) (*cache.Write, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return nil, ErrDisposed
	}
	if c.cfg.persister == nil {
		return nil, ErrNoPersistence
	}
	return c.saveLocked(ctx), nil
}

// Restore replaces the state with the last saved snapshot of this key. It
// reports false when nothing was saved. Redacted fields and values that no
// longer fit the schema fall back to their defaults. Errors are cleared.
func (c *Container) Restore(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return false, ErrDisposed
	}
	p := c.cfg.persister
	c.mu.Unlock()
	if p == nil {
		return false, ErrNoPersistence
	}

	snap, ok, err := p.Load(ctx, c.cfg.key)
	if err != nil || !ok {
		return false, err
	}
	if snap.Schema != "" && snap.Schema != c.schema.Name() {
		return false, fmt.Errorf("form: snapshot of schema %q cannot restore %q", snap.Schema, c.schema.Name())
	}

	err = c.mutate(func() ([]Event, error) {
		values := c.schema.DefaultValues()
		for name, v := range snap.Values {
			meta, ok := c.schema.Field(name)
			if !ok {
				c.log.Warn("restored value dropped", "field", name, "reason", "unknown field")
				continue
			}
			cv, err := formstate.CoerceField(v, meta)
			if err != nil {
				c.log.Warn("restored value dropped", "field", name, "err", err)
				continue
			}
			values[name] = cv
		}
		flags := formstate.FlagMap{}
		for _, n := range snap.Touched {
			if c.schema.Has(n) {
				flags.Set(n, formstate.FlagTouched)
			}
		}
		for _, n := range snap.Dirty {
			if c.schema.Has(n) {
				flags.Set(n, formstate.FlagDirty)
			}
		}
		c.values = values
		c.flags = flags
		c.errs = map[string]formstate.Issue{}
		c.formErrs = nil
		c.submitCount = snap.SubmitCount
		for _, n := range c.schema.Names() {
			c.sched.Bump(n)
			c.sched.SetStatus(n, formstate.StatusUntouched)
		}
		if len(snap.Redacted) > 0 {
			c.log.Info("draft restored without sensitive fields", "redacted", snap.Redacted)
		}
		return []Event{{Kind: EventReset}}, nil
	})
	return err == nil, err
}

// Dispose ends the instance: async validators and pending writes are
// cancelled and subscribers released. With flush a final snapshot is
// written and awaited; otherwise the hot entry of the instance is dropped.
// Dispose is idempotent.
func (c *Container) Dispose(ctx context.Context, flush bool) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil
	}
	c.disposed = true
	c.sched.Cancel()
	var w *cache.Write
	if p := c.cfg.persister; p != nil {
		if flush {
			w = c.saveLocked(ctx)
		} else {
			p.Cancel(c.cfg.key)
		}
	}
	c.mu.Unlock()

	c.hub.publish([]Event{{Kind: EventDisposed}})
	c.hub.clear()
	if w == nil {
		return nil
	}
	select {
	case <-w.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := w.Wait().Err(); err != nil {
		c.log.Warn("final flush incomplete", "err", err)
	}
	return nil
}
