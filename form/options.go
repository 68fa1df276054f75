package form

import (
	"io"
	"log/slog"
	"time"

	"github.com/reoring/formstate"
	"github.com/reoring/formstate/cache"
	"github.com/reoring/formstate/rules"
)

type config struct {
	mode         formstate.Mode
	values       map[string]any
	registry     *rules.Registry
	debounce     time.Duration
	refineOnErrs bool
	logger       *slog.Logger
	persister    Persister
	saveOpts     cache.SaveOptions
	autosave     bool
	key          string
	now          func() time.Time
}

func defaultConfig() config {
	return config{
		mode:     formstate.ModeOnChange,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		autosave: true,
		now:      time.Now,
	}
}

// Option configures a Container.
type Option func(*config)

// WithMode sets when field validation runs. The default is ModeOnChange.
func WithMode(m formstate.Mode) Option { return func(c *config) { c.mode = m } }

// WithValues overrides schema defaults with caller-supplied initial values.
func WithValues(v map[string]any) Option { return func(c *config) { c.values = v } }

// WithRegistry resolves validators through r instead of rules.Default().
func WithRegistry(r *rules.Registry) Option { return func(c *config) { c.registry = r } }

// WithDebounce sets the async validator delay. Negative disables it.
func WithDebounce(d time.Duration) Option { return func(c *config) { c.debounce = d } }

// WithRefineOnFieldErrors runs form-level refinements even when fields fail.
func WithRefineOnFieldErrors(on bool) Option { return func(c *config) { c.refineOnErrs = on } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithPersistence saves snapshots through p. Sensitive fields declared on the
// schema are always added to opts.Sensitive.
func WithPersistence(p Persister, opts cache.SaveOptions) Option {
	return func(c *config) {
		c.persister = p
		c.saveOpts = opts
	}
}

// WithAutosave controls whether every value change is persisted. It only
// matters together with WithPersistence and defaults to true.
func WithAutosave(on bool) Option { return func(c *config) { c.autosave = on } }

// WithKey sets the instance key used for persistence. The default is a
// random UUID.
func WithKey(k string) Option { return func(c *config) { c.key = k } }

// WithClock replaces time.Now for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}
