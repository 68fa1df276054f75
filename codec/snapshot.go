package codec

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/reoring/formstate"
)

// Snapshot is the persisted state of one form instance.
type Snapshot struct {
	FormKey     string
	Schema      string
	Values      formstate.Values
	Touched     []string
	Dirty       []string
	SubmitCount int
	SavedAt     time.Time
	// Redacted lists fields whose values were removed before persistence.
	Redacted []string
}

// Clone returns a copy that shares nothing mutable with s.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Values = s.Values.Clone()
	out.Touched = cloneStrings(s.Touched)
	out.Dirty = cloneStrings(s.Dirty)
	out.Redacted = cloneStrings(s.Redacted)
	return out
}

// Equal compares snapshots field by field; name lists compare as sets.
func (s Snapshot) Equal(o Snapshot) bool {
	return s.FormKey == o.FormKey &&
		s.Schema == o.Schema &&
		s.Values.Equal(o.Values) &&
		sameSet(s.Touched, o.Touched) &&
		sameSet(s.Dirty, o.Dirty) &&
		sameSet(s.Redacted, o.Redacted) &&
		s.SubmitCount == o.SubmitCount &&
		s.SavedAt.Equal(o.SavedAt)
}

func (s Snapshot) String() string {
	return fmt.Sprintf("snapshot(%s/%s, %d values, touched=[%s], dirty=[%s])",
		s.Schema, s.FormKey, len(s.Values), strings.Join(s.Touched, ","), strings.Join(s.Dirty, ","))
}

// Redact returns a copy of s without the values of fields. The removal is
// recorded in Redacted; the values cannot be recovered from the copy.
func Redact(s Snapshot, fields []string) Snapshot {
	out := s.Clone()
	if len(fields) == 0 {
		return out
	}
	seen := make(map[string]struct{}, len(out.Redacted))
	for _, f := range out.Redacted {
		seen[f] = struct{}{}
	}
	for _, f := range fields {
		if _, ok := out.Values[f]; ok {
			delete(out.Values, f)
		}
		if _, ok := seen[f]; !ok {
			seen[f] = struct{}{}
			out.Redacted = append(out.Redacted, f)
		}
	}
	sort.Strings(out.Redacted)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	m := make(map[string]int, len(a))
	for _, x := range a {
		m[x]++
	}
	for _, x := range b {
		if m[x] == 0 {
			return false
		}
		m[x]--
	}
	return true
}
