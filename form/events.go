package form

import (
	"fmt"
	"sort"
	"sync"

	"github.com/reoring/formstate"
)

// EventKind classifies container change events.
type EventKind uint8

const (
	EventValue EventKind = iota + 1
	EventErrors
	EventFlags
	EventSubmit
	EventReset
	EventDisposed
	EventStatus
)

func (k EventKind) String() string {
	switch k {
	case EventValue:
		return "value"
	case EventErrors:
		return "errors"
	case EventFlags:
		return "flags"
	case EventSubmit:
		return "submit"
	case EventReset:
		return "reset"
	case EventDisposed:
		return "disposed"
	case EventStatus:
		return "status"
	default:
		return fmt.Sprintf("event(%d)", uint8(k))
	}
}

// Event describes one change. Field is empty for form-wide changes.
type Event struct {
	Kind  EventKind
	Field string
	// Value is set for EventValue.
	Value formstate.Value
	// Issue is the new error of Field for EventErrors; nil means cleared.
	Issue *formstate.Issue
	// Status is the validation status of Field for EventStatus.
	Status formstate.FieldStatus
}

type subscriber struct {
	field string
	fn    func(Event)
}

// hub fans events out to subscribers. It has its own lock so callbacks may
// call back into the container.
type hub struct {
	mu   sync.RWMutex
	next int
	subs map[int]subscriber
}

func (h *hub) add(field string, fn func(Event)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[int]subscriber)
	}
	id := h.next
	h.next++
	h.subs[id] = subscriber{field: field, fn: fn}
	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

func (h *hub) publish(evs []Event) {
	if len(evs) == 0 {
		return
	}
	h.mu.RLock()
	ids := make([]int, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]subscriber, len(ids))
	for i, id := range ids {
		subs[i] = h.subs[id]
	}
	h.mu.RUnlock()
	for _, ev := range evs {
		for _, s := range subs {
			if s.field == "" || ev.Field == "" || s.field == ev.Field {
				s.fn(ev)
			}
		}
	}
}

func (h *hub) clear() {
	h.mu.Lock()
	h.subs = nil
	h.mu.Unlock()
}

func (h *hub) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
