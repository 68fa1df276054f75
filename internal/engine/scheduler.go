package engine

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/reoring/formstate"
)

// AsyncFunc performs one async validation run for a field.
type AsyncFunc func(ctx context.Context) (*formstate.Issue, error)

// ApplyFunc receives a finished result tagged with the generation it was
// issued under. It is only called while that generation is still current,
// but receivers that mutate state under their own lock must re-check with
// IsCurrent.
type ApplyFunc func(gen uint64, it *formstate.Issue, err error)

// Scheduler debounces async validators per field and rejects stale results
// through per-field generation counters.
type Scheduler struct {
	mu       sync.Mutex
	debounce time.Duration
	gens     map[string]uint64
	timers   map[string]*time.Timer
	status   map[string]formstate.FieldStatus
	moved    []string
	busy     int
	changed  chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	closed   bool
}

// NewScheduler returns a scheduler using delay for debouncing.
func NewScheduler(delay time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		debounce: delay,
		gens:     map[string]uint64{},
		timers:   map[string]*time.Timer{},
		status:   map[string]formstate.FieldStatus{},
		changed:  make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Bump advances the generation of field, invalidating every in-flight run,
// and drops its pending debounce timer.
func (s *Scheduler) Bump(field string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens[field]++
	s.stopTimerLocked(field)
	return s.gens[field]
}

// Generation returns the current generation of field.
func (s *Scheduler) Generation(field string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[field]
}

// IsCurrent reports whether gen is still the generation of field.
func (s *Scheduler) IsCurrent(field string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.gens[field] == gen
}

// Status returns the validation state of field.
func (s *Scheduler) Status(field string) formstate.FieldStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status[field]
}

// SetStatus records a state transition for field.
func (s *Scheduler) SetStatus(field string, st formstate.FieldStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStatusLocked(field, st)
}

func (s *Scheduler) setStatusLocked(field string, st formstate.FieldStatus) {
	if s.status[field] == st {
		return
	}
	if st == formstate.StatusUntouched {
		delete(s.status, field)
	} else {
		s.status[field] = st
	}
	if !slices.Contains(s.moved, field) {
		s.moved = append(s.moved, field)
	}
}

// TakeStatusChanges returns the fields whose status changed since the last
// call, in the order they first changed.
func (s *Scheduler) TakeStatusChanges() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.moved
	s.moved = nil
	return out
}

// Pending reports whether field has a timer armed or a run in flight.
func (s *Scheduler) Pending(field string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[field]
	return ok || s.status[field] == formstate.StatusValidating
}

// Schedule arms the debounce timer for field. Re-scheduling before the
// timer fires restarts the delay and the earlier call never runs. When the
// timer fires, fn runs in its own goroutine tagged with the generation
// current at that moment.
func (s *Scheduler) Schedule(field string, fn AsyncFunc, apply ApplyFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.stopTimerLocked(field)
	s.setStatusLocked(field, formstate.StatusValidating)
	s.busy++
	var t *time.Timer
	t = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		if s.timers[field] != t || s.closed {
			// Stopped too late to release the slot in Stop.
			s.releaseLocked()
			s.mu.Unlock()
			return
		}
		delete(s.timers, field)
		gen := s.gens[field]
		s.mu.Unlock()
		s.invoke(field, gen, fn, apply)
	})
	s.timers[field] = t
}

// invoke runs fn and hands a still-current result to apply. busy was
// incremented by the caller.
func (s *Scheduler) invoke(field string, gen uint64, fn AsyncFunc, apply ApplyFunc) {
	defer s.done()
	it, err := fn(s.ctx)
	if !s.IsCurrent(field, gen) {
		return
	}
	apply(gen, it, err)
}

// RunNow stops any pending timer for field and runs fn on the calling
// goroutine. stale is true when the generation moved while fn ran.
func (s *Scheduler) RunNow(ctx context.Context, field string, fn AsyncFunc) (it *formstate.Issue, gen uint64, stale bool, err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, 0, true, context.Canceled
	}
	s.stopTimerLocked(field)
	gen = s.gens[field]
	s.setStatusLocked(field, formstate.StatusValidating)
	s.busy++
	s.mu.Unlock()
	defer s.done()

	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()
	it, err = fn(rctx)
	return it, gen, !s.IsCurrent(field, gen), err
}

// stopTimerLocked drops the pending timer of field and reports whether one
// was armed. Stopping an armed timer releases its busy slot.
func (s *Scheduler) stopTimerLocked(field string) bool {
	t, ok := s.timers[field]
	if !ok {
		return false
	}
	delete(s.timers, field)
	if t.Stop() {
		s.releaseLocked()
	}
	return true
}

func (s *Scheduler) done() {
	s.mu.Lock()
	s.releaseLocked()
	s.mu.Unlock()
}

func (s *Scheduler) releaseLocked() {
	if s.busy > 0 {
		s.busy--
	}
	close(s.changed)
	s.changed = make(chan struct{})
}

// Wait blocks until no timer is armed and no run is in flight.
func (s *Scheduler) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.busy == 0 {
			s.mu.Unlock()
			return nil
		}
		ch := s.changed
		s.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Cancel stops every timer, cancels in-flight runs and drops their results.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for field := range s.timers {
		s.stopTimerLocked(field)
	}
	s.cancel()
}
