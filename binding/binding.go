// Package binding exposes one form field to a UI layer: observable state
// plus the input, change, blur and focus sinks with the field name bound.
package binding

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/reoring/formstate"
	"github.com/reoring/formstate/form"
)

// ErrUnregistered is returned by the sinks of an unregistered Field.
var ErrUnregistered = errors.New("binding: field unregistered")

// State is the observable state of a field at one point in time.
type State struct {
	Value    formstate.Value
	Error    string
	HasError bool
	Touched  bool
	Dirty    bool
	Focused  bool
	Status   formstate.FieldStatus
}

// Equal compares two states.
func (s State) Equal(o State) bool {
	return formstate.Equal(s.Value, o.Value) && s.Error == o.Error && s.HasError == o.HasError &&
		s.Touched == o.Touched && s.Dirty == o.Dirty && s.Focused == o.Focused && s.Status == o.Status
}

// Field is a registered field handle.
type Field struct {
	name string
	c    *form.Container
	reg  *Registry

	mu        sync.Mutex
	last      State
	observers map[int]func(State)
	next      int
	unsub     func()
	closed    bool
}

// Name returns the bound field name.
func (f *Field) Name() string { return f.name }

// State reads the current state from the container.
func (f *Field) State() State {
	v, _ := f.c.GetFieldValue(f.name)
	msg, has := f.c.FieldError(f.name)
	return State{
		Value:    v,
		Error:    msg,
		HasError: has,
		Touched:  f.c.Touched(f.name),
		Dirty:    f.c.Dirty(f.name),
		Focused:  f.c.Focused(f.name),
		Status:   f.c.Status(f.name),
	}
}

func (f *Field) Value() formstate.Value {
	v, _ := f.c.GetFieldValue(f.name)
	return v
}

func (f *Field) Error() (string, bool) { return f.c.FieldError(f.name) }
func (f *Field) Touched() bool         { return f.c.Touched(f.name) }
func (f *Field) Dirty() bool           { return f.c.Dirty(f.name) }
func (f *Field) Focused() bool         { return f.c.Focused(f.name) }

// Observe calls fn with the new state whenever it changes. The returned
// function cancels the observation.
func (f *Field) Observe(fn func(State)) (cancel func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return func() {}
	}
	id := f.next
	f.next++
	f.observers[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.observers, id)
		f.mu.Unlock()
	}
}

// Observers returns the number of live observers.
func (f *Field) Observers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.observers)
}

func (f *Field) onEvent(ev form.Event) {
	if ev.Kind == form.EventDisposed {
		f.release()
		return
	}
	st := f.State()
	f.mu.Lock()
	if f.closed || st.Equal(f.last) {
		f.mu.Unlock()
		return
	}
	f.last = st
	ids := make([]int, 0, len(f.observers))
	for id := range f.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(State), len(ids))
	for i, id := range ids {
		fns[i] = f.observers[id]
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

func (f *Field) live() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("%w: %q", ErrUnregistered, f.name)
	}
	return nil
}

// OnInput forwards a keystroke-level value.
func (f *Field) OnInput(v any) error {
	if err := f.live(); err != nil {
		return err
	}
	return f.c.SetFieldValue(f.name, v)
}

// OnChange forwards a committed value.
func (f *Field) OnChange(v any) error {
	if err := f.live(); err != nil {
		return err
	}
	return f.c.SetFieldValue(f.name, v)
}

// OnBlur forwards loss of focus, which also touches the field.
func (f *Field) OnBlur() error {
	if err := f.live(); err != nil {
		return err
	}
	return f.c.BlurField(f.name)
}

// OnFocus forwards focus.
func (f *Field) OnFocus() error {
	if err := f.live(); err != nil {
		return err
	}
	return f.c.FocusField(f.name)
}

// Unregister releases the subscription and every observer. The field value
// stays in the container.
func (f *Field) Unregister() {
	if f.reg != nil {
		f.reg.remove(f)
	}
	f.release()
}

func (f *Field) release() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	unsub := f.unsub
	f.observers = nil
	f.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Registry tracks the registered fields of one container.
type Registry struct {
	c      *form.Container
	mu     sync.Mutex
	fields map[string]*Field
}

// NewRegistry returns a registry bound to c.
func NewRegistry(c *form.Container) *Registry {
	return &Registry{c: c, fields: map[string]*Field{}}
}

// Register returns the handle of name, creating it on first use. Unknown
// names fail with *formstate.UnknownFieldError.
func (r *Registry) Register(name string) (*Field, error) {
	if !r.c.Schema().Has(name) {
		return nil, &formstate.UnknownFieldError{Field: name, Schema: r.c.Schema().Name()}
	}
	if r.c.Disposed() {
		return nil, form.ErrDisposed
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.fields[name]; ok {
		return f, nil
	}
	f := &Field{name: name, c: r.c, reg: r, observers: map[int]func(State){}}
	f.last = f.State()
	f.unsub = r.c.SubscribeField(name, f.onEvent)
	r.fields[name] = f
	return f, nil
}

// Unregister releases the handle of name, if any.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	f := r.fields[name]
	delete(r.fields, name)
	r.mu.Unlock()
	if f != nil {
		f.release()
	}
}

func (r *Registry) remove(f *Field) {
	r.mu.Lock()
	if r.fields[f.name] == f {
		delete(r.fields, f.name)
	}
	r.mu.Unlock()
}

// Fields returns the registered names in ascending order.
func (r *Registry) Fields() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.fields))
	for n := range r.fields {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Close unregisters every field.
func (r *Registry) Close() {
	r.mu.Lock()
	fields := r.fields
	r.fields = map[string]*Field{}
	r.mu.Unlock()
	for _, f := range fields {
		f.release()
	}
}
