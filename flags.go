package formstate

import "sort"

// FieldFlag is the per-field interaction bit set tracked by a form instance.
type FieldFlag uint8

const (
	FlagTouched FieldFlag = 1 << iota // Field lost focus at least once.
	FlagDirty                         // Field value was changed by the user.
	FlagFocused                       // Field currently holds focus.
)

// FlagMap maps field names to their flags. Fields without flags are absent.
type FlagMap map[string]FieldFlag

// Has reports whether name carries flag.
func (m FlagMap) Has(name string, flag FieldFlag) bool { return m[name]&flag != 0 }

// Set adds flag to name.
func (m FlagMap) Set(name string, flag FieldFlag) { m[name] |= flag }

// Clear removes flag from name and drops the entry once no flag remains.
func (m FlagMap) Clear(name string, flag FieldFlag) {
	f := m[name] &^ flag
	if f == 0 {
		delete(m, name)
		return
	}
	m[name] = f
}

// ClearAll removes flag from every field.
func (m FlagMap) ClearAll(flag FieldFlag) {
	for name := range m {
		m.Clear(name, flag)
	}
}

// Names returns the fields carrying flag in ascending order.
func (m FlagMap) Names(flag FieldFlag) []string {
	out := make([]string, 0, len(m))
	for name, f := range m {
		if f&flag != 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Any reports whether at least one field carries flag.
func (m FlagMap) Any(flag FieldFlag) bool {
	for _, f := range m {
		if f&flag != 0 {
			return true
		}
	}
	return false
}

// Clone returns a copy of m.
func (m FlagMap) Clone() FlagMap {
	out := make(FlagMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
