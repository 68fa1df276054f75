// Package form holds the live state of one form instance: values, errors,
// interaction flags and submit status. Validation runs through the engine
// according to the instance's mode, and every change is published to
// subscribers.
package form

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/reoring/formstate"
	"github.com/reoring/formstate/i18n"
	"github.com/reoring/formstate/internal/engine"
)

// Container is one form instance. All mutation is serialized by a single
// mutex; async validators and lower-tier writes run in the background and
// re-enter through it. Validators must not call back into the container.
type Container struct {
	mu     sync.Mutex
	form   formstate.Form
	schema *formstate.Schema
	eng    *engine.Engine
	sched  *engine.Scheduler
	cfg    config
	log    *slog.Logger
	hub    hub

	values      formstate.Values
	errs        map[string]formstate.Issue
	formErrs    formstate.Issues
	flags       formstate.FlagMap
	submitCount int
	submitting  bool
	disposed    bool
}

// New creates an instance of f. Initial values are the schema defaults,
// overridden by WithValues.
func New(f formstate.Form, opts ...Option) (*Container, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	schema, err := formstate.SchemaOf(f)
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(schema, cfg.registry, engine.Options{
		RefineOnFieldErrors: cfg.refineOnErrs,
		Debounce:            cfg.debounce,
		Logger:              cfg.logger,
	})
	if err != nil {
		return nil, err
	}
	if cfg.key == "" {
		cfg.key = uuid.NewString()
	}
	c := &Container{
		form:   f,
		schema: schema,
		eng:    eng,
		sched:  engine.NewScheduler(eng.Debounce()),
		cfg:    cfg,
		log:    cfg.logger.With("form_key", cfg.key, "schema", schema.Name()),
		values: schema.DefaultValues(),
		errs:   map[string]formstate.Issue{},
		flags:  formstate.FlagMap{},
	}
	names := make([]string, 0, len(cfg.values))
	for name := range cfg.values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		meta, err := schema.Lookup(name)
		if err != nil {
			return nil, err
		}
		v, err := formstate.FromAny(cfg.values[name])
		if err != nil {
			return nil, fmt.Errorf("form: initial value of %q: %w", name, err)
		}
		v, err = formstate.CoerceField(formstate.ApplyNormalize(f, name, v), meta)
		if err != nil {
			return nil, fmt.Errorf("form: initial value of %q: %w", name, err)
		}
		c.values[name] = v
	}
	return c, nil
}

// mutate runs fn under the lock and publishes its events after unlocking.
func (c *Container) mutate(fn func() ([]Event, error)) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	evs, err := fn()
	c.mu.Unlock()
	c.publish(evs)
	return err
}

// publish delivers evs followed by one EventStatus per field whose
// validation status moved since the last publish. Call without c.mu held.
func (c *Container) publish(evs []Event) {
	for _, name := range c.sched.TakeStatusChanges() {
		evs = append(evs, Event{Kind: EventStatus, Field: name, Status: c.sched.Status(name)})
	}
	c.hub.publish(evs)
}

// SetFieldValue converts v and stores it in name. Unknown names fail with
// *formstate.UnknownFieldError. A value that cannot be converted is recorded
// as the field's error and returned as *formstate.FieldError; the form stays
// usable. Null on a required field clears the field and records "required".
func (c *Container) SetFieldValue(name string, v any) error {
	return c.mutate(func() ([]Event, error) { return c.setLocked(name, v) })
}

func (c *Container) setLocked(name string, raw any) ([]Event, error) {
	meta, err := c.schema.Lookup(name)
	if err != nil {
		return nil, err
	}
	v, err := formstate.FromAny(raw)
	if err != nil {
		fe := &formstate.FieldError{
			Field:   name,
			Code:    formstate.CodeInvalidType,
			Message: i18n.T(formstate.CodeInvalidType, map[string]string{"expected": meta.Type.String()}),
			Cause:   err,
		}
		return c.recordCoerceLocked(fe), fe
	}
	v, err = formstate.CoerceField(formstate.ApplyNormalize(c.form, name, v), meta)
	if err != nil {
		var fe *formstate.FieldError
		if !errors.As(err, &fe) {
			fe = &formstate.FieldError{Field: name, Code: formstate.CodeInvalidType, Message: err.Error(), Cause: err}
		}
		var evs []Event
		if fe.Code == formstate.CodeRequired {
			evs = c.storeLocked(name, formstate.Zero(meta.Type))
			if c.cfg.mode == formstate.ModeOnChange {
				evs = append(evs, c.validateLocked(c.schema.Dependents(name), false)...)
			}
			c.persistLocked()
		}
		return append(evs, c.recordCoerceLocked(fe)...), fe
	}

	evs := c.storeLocked(name, v)
	if it, ok := c.errs[name]; ok && it.Rule == ruleCoerce {
		evs = append(evs, c.setErrorLocked(name, nil)...)
	}
	if c.cfg.mode == formstate.ModeOnChange {
		evs = append(evs, c.validateLocked(c.eng.Affected(name), false)...)
	}
	c.persistLocked()
	return evs, nil
}

// storeLocked writes v, marks the field dirty and advances its generation so
// in-flight async results for the old value are dropped.
func (c *Container) storeLocked(name string, v formstate.Value) []Event {
	var evs []Event
	old := c.values[name]
	c.values[name] = v
	c.sched.Bump(name)
	if c.holdsAsyncIssueLocked(name) {
		// The async result belonged to the old value.
		evs = append(evs, c.setErrorLocked(name, nil)...)
	}
	if c.sched.Status(name) == formstate.StatusValidating {
		c.sched.SetStatus(name, c.settledStatusLocked(name))
	}
	if !formstate.Equal(old, v) {
		evs = append(evs, Event{Kind: EventValue, Field: name, Value: v})
	}
	if !c.flags.Has(name, formstate.FlagDirty) {
		c.flags.Set(name, formstate.FlagDirty)
		evs = append(evs, Event{Kind: EventFlags, Field: name})
	}
	return evs
}

func (c *Container) settledStatusLocked(name string) formstate.FieldStatus {
	if _, ok := c.errs[name]; ok {
		return formstate.StatusInvalid
	}
	return formstate.StatusUntouched
}

func (c *Container) recordCoerceLocked(fe *formstate.FieldError) []Event {
	it := fe.Issue()
	it.Rule = ruleCoerce
	c.sched.SetStatus(fe.Field, formstate.StatusInvalid)
	return c.setErrorLocked(fe.Field, &it)
}

// setErrorLocked replaces the error of name; it returns an event only when
// the error actually changed.
func (c *Container) setErrorLocked(name string, it *formstate.Issue) []Event {
	old, had := c.errs[name]
	if it == nil {
		if !had {
			return nil
		}
		delete(c.errs, name)
		return []Event{{Kind: EventErrors, Field: name}}
	}
	if had && sameIssue(old, *it) {
		return nil
	}
	c.errs[name] = *it
	cp := *it
	return []Event{{Kind: EventErrors, Field: name, Issue: &cp}}
}

func sameIssue(a, b formstate.Issue) bool {
	return a.Field == b.Field && a.Code == b.Code && a.Message == b.Message && a.Rule == b.Rule
}

// validateLocked runs the sync validators of names in order and schedules
// the async ones of fields that passed. Fields holding a conversion error
// keep it: their stored value is not what was entered. With keepAsync, a
// settled async failure survives a passing sync run until the rescheduled
// async run replaces it; use it only when the form values did not change.
func (c *Container) validateLocked(names []string, keepAsync bool) []Event {
	ctx := context.Background()
	var evs []Event
	for _, n := range names {
		if it, ok := c.errs[n]; ok && it.Rule == ruleCoerce {
			continue
		}
		it, err := c.eng.ValidateField(ctx, n, c.values)
		if err != nil {
			c.log.Error("validation skipped", "field", n, "err", err)
			continue
		}
		if it != nil || !keepAsync || !c.holdsAsyncIssueLocked(n) {
			evs = append(evs, c.setErrorLocked(n, it)...)
		}
		c.settleLocked(n, it)
	}
	return evs
}

func (c *Container) holdsAsyncIssueLocked(name string) bool {
	it, ok := c.errs[name]
	return ok && c.eng.IsAsyncIssue(name, it)
}

// settleLocked moves n to its post-sync status, scheduling async validators
// when the sync ones passed.
func (c *Container) settleLocked(n string, it *formstate.Issue) {
	async := c.eng.HasAsync(n)
	if async {
		c.sched.Bump(n)
	}
	switch {
	case it != nil:
		c.sched.SetStatus(n, formstate.StatusInvalid)
	case async:
		c.scheduleLocked(n)
	default:
		c.sched.SetStatus(n, formstate.StatusValid)
	}
}

func (c *Container) asyncFunc(name string) engine.AsyncFunc {
	return func(ctx context.Context) (*formstate.Issue, error) {
		c.mu.Lock()
		vals := c.values.Clone()
		c.mu.Unlock()
		return c.eng.ValidateAsync(ctx, name, vals)
	}
}

func (c *Container) scheduleLocked(name string) {
	c.sched.Schedule(name, c.asyncFunc(name), func(gen uint64, it *formstate.Issue, err error) {
		c.applyAsync(name, gen, it, err)
	})
}

// applyAsync records a finished async result unless the field moved on.
func (c *Container) applyAsync(name string, gen uint64, it *formstate.Issue, err error) {
	c.mu.Lock()
	evs := c.applyAsyncLocked(name, gen, it, err)
	c.mu.Unlock()
	c.publish(evs)
}

func (c *Container) applyAsyncLocked(name string, gen uint64, it *formstate.Issue, err error) []Event {
	if c.disposed || !c.sched.IsCurrent(name, gen) {
		return nil
	}
	if err != nil {
		c.log.Warn("async validation aborted", "field", name, "err", err)
		c.sched.SetStatus(name, c.settledStatusLocked(name))
		return nil
	}
	evs := c.setErrorLocked(name, it)
	if it != nil {
		c.sched.SetStatus(name, formstate.StatusInvalid)
	} else {
		c.sched.SetStatus(name, formstate.StatusValid)
	}
	return evs
}

// GetFieldValue returns the stored value of name.
func (c *Container) GetFieldValue(name string) (formstate.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, _, err := c.schema.GetFieldValue(c.values, name)
	return v, err
}

// TouchField marks name as touched. In ModeOnBlur it validates name and its
// already touched dependents.
func (c *Container) TouchField(name string) error {
	return c.mutate(func() ([]Event, error) { return c.touchLocked(name) })
}

func (c *Container) touchLocked(name string) ([]Event, error) {
	if _, err := c.schema.Lookup(name); err != nil {
		return nil, err
	}
	var evs []Event
	if !c.flags.Has(name, formstate.FlagTouched) {
		c.flags.Set(name, formstate.FlagTouched)
		evs = append(evs, Event{Kind: EventFlags, Field: name})
	}
	if c.cfg.mode == formstate.ModeOnBlur {
		names := []string{name}
		for _, d := range c.schema.Dependents(name) {
			if c.flags.Has(d, formstate.FlagTouched) {
				names = append(names, d)
			}
		}
		evs = append(evs, c.validateLocked(names, true)...)
	}
	return evs, nil
}

// FocusField marks name as focused.
func (c *Container) FocusField(name string) error {
	return c.mutate(func() ([]Event, error) {
		if _, err := c.schema.Lookup(name); err != nil {
			return nil, err
		}
		if c.flags.Has(name, formstate.FlagFocused) {
			return nil, nil
		}
		c.flags.Set(name, formstate.FlagFocused)
		return []Event{{Kind: EventFlags, Field: name}}, nil
	})
}

// BlurField removes focus from name and touches it.
func (c *Container) BlurField(name string) error {
	return c.mutate(func() ([]Event, error) {
		if _, err := c.schema.Lookup(name); err != nil {
			return nil, err
		}
		var evs []Event
		if c.flags.Has(name, formstate.FlagFocused) {
			c.flags.Clear(name, formstate.FlagFocused)
			evs = append(evs, Event{Kind: EventFlags, Field: name})
		}
		more, err := c.touchLocked(name)
		return append(evs, more...), err
	})
}

// ValidateAll runs a full pass and replaces the error state. Async
// validators of fields that passed are scheduled; use Wait to let them
// settle.
func (c *Container) ValidateAll(ctx context.Context) formstate.ValidationErrors {
	c.mu.Lock()
	if c.disposed {
		defer c.mu.Unlock()
		return c.errorsLocked()
	}
	pending, evs := c.validateAllLocked(ctx)
	for _, n := range pending {
		c.scheduleLocked(n)
	}
	out := c.errorsLocked()
	c.mu.Unlock()
	c.publish(evs)
	return out
}

// validateAllLocked replaces the error state with a full sync pass and
// returns the fields whose async validators still have to run.
func (c *Container) validateAllLocked(ctx context.Context) ([]string, []Event) {
	res := c.eng.ValidateAll(ctx, c.values)
	fields := res.Errors.Fields
	kept := false
	for n, it := range c.errs {
		if it.Rule != ruleCoerce {
			continue
		}
		if _, ok := fields[n]; !ok {
			fields[n] = it
			kept = true
		}
	}
	form := res.Errors.Form
	if kept && !c.eng.RefinesOnFieldErrors() {
		form = nil
	}

	var evs []Event
	for _, n := range c.schema.Names() {
		if it, ok := fields[n]; ok {
			evs = append(evs, c.setErrorLocked(n, &it)...)
			c.sched.Bump(n)
			c.sched.SetStatus(n, formstate.StatusInvalid)
			continue
		}
		// Values are unchanged, so a settled async failure stays until the
		// rescheduled run settles it.
		if c.holdsAsyncIssueLocked(n) {
			continue
		}
		evs = append(evs, c.setErrorLocked(n, nil)...)
	}
	evs = append(evs, c.setFormErrorsLocked(form)...)

	pending := make([]string, 0, len(res.PendingAsync))
	for _, n := range res.PendingAsync {
		if _, failed := fields[n]; failed {
			continue
		}
		c.sched.Bump(n)
		pending = append(pending, n)
	}
	for _, n := range c.schema.Names() {
		if _, failed := fields[n]; !failed && !c.eng.HasAsync(n) {
			c.sched.SetStatus(n, formstate.StatusValid)
		}
	}
	return pending, evs
}

func (c *Container) setFormErrorsLocked(iss formstate.Issues) []Event {
	if len(iss) == 0 && len(c.formErrs) == 0 {
		return nil
	}
	same := len(iss) == len(c.formErrs)
	for i := 0; same && i < len(iss); i++ {
		same = sameIssue(iss[i], c.formErrs[i])
	}
	if same {
		return nil
	}
	c.formErrs = append(formstate.Issues(nil), iss...)
	return []Event{{Kind: EventErrors}}
}

// Wait blocks until no async validator is pending or running.
func (c *Container) Wait(ctx context.Context) error { return c.sched.Wait(ctx) }

// Submit counts the attempt, runs a full pass and awaits async validators.
// On success it returns the values and the container stays submitting until
// CompleteSubmit; on failure it returns formstate.ValidationErrors.
func (c *Container) Submit(ctx context.Context) (formstate.Values, error) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil, ErrDisposed
	}
	if c.submitting {
		c.mu.Unlock()
		return nil, ErrSubmitting
	}
	c.submitCount++
	pending, evs := c.validateAllLocked(ctx)
	c.mu.Unlock()
	c.publish(evs)

	asyncFailed := false
	for _, n := range pending {
		failed, err := c.runAsyncNow(ctx, n)
		if err != nil {
			return nil, err
		}
		asyncFailed = asyncFailed || failed
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil, ErrDisposed
	}
	evs = nil
	if asyncFailed && !c.eng.RefinesOnFieldErrors() {
		evs = c.setFormErrorsLocked(nil)
	}
	ve := c.errorsLocked()
	if !ve.Empty() {
		c.mu.Unlock()
		c.publish(evs)
		c.log.Debug("submit rejected", "field_errors", len(ve.Fields), "form_errors", len(ve.Form))
		return nil, ve
	}
	c.submitting = true
	out := c.values.Clone()
	evs = append(evs, Event{Kind: EventSubmit})
	c.mu.Unlock()
	c.publish(evs)
	return out, nil
}

// runAsyncNow runs the async validators of name on the caller's goroutine,
// retrying while the field keeps changing underneath.
func (c *Container) runAsyncNow(ctx context.Context, name string) (bool, error) {
	for {
		it, gen, stale, err := c.sched.RunNow(ctx, name, c.asyncFunc(name))
		if err != nil {
			return false, err
		}
		if stale {
			continue
		}
		c.mu.Lock()
		evs := c.applyAsyncLocked(name, gen, it, nil)
		c.mu.Unlock()
		c.publish(evs)
		return it != nil, nil
	}
}

// CompleteSubmit ends the submitting state.
func (c *Container) CompleteSubmit() {
	_ = c.mutate(func() ([]Event, error) {
		if !c.submitting {
			return nil, nil
		}
		c.submitting = false
		return []Event{{Kind: EventSubmit}}, nil
	})
}

// Reset restores fields (every field when none are named) to their schema
// defaults and clears their errors, touched and dirty flags.
func (c *Container) Reset(fields ...string) error {
	return c.mutate(func() ([]Event, error) {
		all := len(fields) == 0
		names := fields
		if all {
			names = c.schema.Names()
		}
		for _, n := range names {
			if _, err := c.schema.Lookup(n); err != nil {
				return nil, err
			}
		}
		defaults := c.schema.DefaultValues()
		var evs []Event
		for _, n := range names {
			c.values[n] = defaults[n]
			c.sched.Bump(n)
			c.sched.SetStatus(n, formstate.StatusUntouched)
			delete(c.errs, n)
			c.flags.Clear(n, formstate.FlagTouched|formstate.FlagDirty)
			if !all {
				evs = append(evs, Event{Kind: EventReset, Field: n})
			}
		}
		if all {
			c.formErrs = nil
			evs = append(evs, Event{Kind: EventReset})
		}
		c.persistLocked()
		return evs, nil
	})
}

// Values returns a copy of the current values.
func (c *Container) Values() formstate.Values {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values.Clone()
}

// Errors returns a copy of the current error state.
func (c *Container) Errors() formstate.ValidationErrors {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errorsLocked()
}

func (c *Container) errorsLocked() formstate.ValidationErrors {
	return formstate.ValidationErrors{Fields: c.errs, Form: c.formErrs}.Clone()
}

// FieldError returns the error message of name.
func (c *Container) FieldError(name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.errs[name]
	return it.Message, ok
}

// FieldIssue returns the full issue recorded for name.
func (c *Container) FieldIssue(name string) (formstate.Issue, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.errs[name]
	return it, ok
}

func (c *Container) hasFlag(name string, f formstate.FieldFlag) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flags.Has(name, f)
}

func (c *Container) Touched(name string) bool { return c.hasFlag(name, formstate.FlagTouched) }
func (c *Container) Dirty(name string) bool   { return c.hasFlag(name, formstate.FlagDirty) }
func (c *Container) Focused(name string) bool { return c.hasFlag(name, formstate.FlagFocused) }

// Status returns the validation state of name.
func (c *Container) Status(name string) formstate.FieldStatus { return c.sched.Status(name) }

func (c *Container) SubmitCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitCount
}

func (c *Container) Submitting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitting
}

// IsValid reports whether no field or form error is recorded.
func (c *Container) IsValid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errs) == 0 && len(c.formErrs) == 0
}

// IsDirty reports whether any field was changed.
func (c *Container) IsDirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flags.Any(formstate.FlagDirty)
}

// CanSubmit is IsValid and not submitting.
func (c *Container) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errs) == 0 && len(c.formErrs) == 0 && !c.submitting
}

// Mode returns the validation mode.
func (c *Container) Mode() formstate.Mode { return c.cfg.mode }

// Key returns the instance key.
func (c *Container) Key() string { return c.cfg.key }

// Schema returns the registered schema.
func (c *Container) Schema() *formstate.Schema { return c.schema }

// Subscribe registers fn for every event. Callbacks run after the container
// lock is released, on the goroutine that caused the change.
func (c *Container) Subscribe(fn func(Event)) (unsubscribe func()) { return c.hub.add("", fn) }

// SubscribeField registers fn for events of name and form-wide events.
func (c *Container) SubscribeField(name string, fn func(Event)) (unsubscribe func()) {
	return c.hub.add(name, fn)
}

// Disposed reports whether Dispose was called.
func (c *Container) Disposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

// Subscribers returns the number of live subscriptions.
func (c *Container) Subscribers() int { return c.hub.len() }
