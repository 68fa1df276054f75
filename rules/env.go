package rules

import "github.com/reoring/formstate"

// Expression environments see plain Go data. Files are exposed as maps so
// both expr and CEL can select their attributes.

func plain(v formstate.Value) any {
	switch v.Kind() {
	case formstate.KindFile:
		f, _ := v.AsFile()
		return map[string]any{"name": f.Name, "size": f.Size, "mime": f.MIME}
	case formstate.KindArray:
		items, _ := v.AsArray()
		out := make([]any, len(items))
		for i, it := range items {
			out[i] = plain(it)
		}
		return out
	case formstate.KindObject:
		obj, _ := v.AsObject()
		out := make(map[string]any, len(obj))
		for k, it := range obj {
			out[k] = plain(it)
		}
		return out
	default:
		return v.Any()
	}
}

func plainValues(values formstate.Values) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = plain(v)
	}
	return out
}
