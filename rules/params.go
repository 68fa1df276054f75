package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Params decoded from YAML or JSON arrive as int, float64, json.Number or
// string; the helpers below accept all of them.

func paramFloat(params map[string]any, names ...string) (float64, bool, error) {
	for _, n := range names {
		raw, ok := params[n]
		if !ok {
			continue
		}
		switch x := raw.(type) {
		case int:
			return float64(x), true, nil
		case int32:
			return float64(x), true, nil
		case int64:
			return float64(x), true, nil
		case uint:
			return float64(x), true, nil
		case uint64:
			return float64(x), true, nil
		case float32:
			return float64(x), true, nil
		case float64:
			return x, true, nil
		case json.Number:
			f, err := x.Float64()
			return f, err == nil, err
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err != nil {
				return 0, false, fmt.Errorf("param %q: %w", n, err)
			}
			return f, true, nil
		default:
			return 0, false, fmt.Errorf("param %q: unsupported type %T", n, raw)
		}
	}
	return 0, false, nil
}

func paramInt(params map[string]any, names ...string) (int, bool, error) {
	f, ok, err := paramFloat(params, names...)
	if err != nil || !ok {
		return 0, ok, err
	}
	if f != math.Trunc(f) || f < 0 {
		return 0, false, fmt.Errorf("param %q: want a non-negative integer, got %v", names[0], f)
	}
	return int(f), true, nil
}

func paramString(params map[string]any, names ...string) (string, bool) {
	for _, n := range names {
		if raw, ok := params[n]; ok {
			if s, ok := raw.(string); ok {
				return s, true
			}
			return fmt.Sprint(raw), true
		}
	}
	return "", false
}

func paramStrings(params map[string]any, name string) ([]string, error) {
	raw, ok := params[name]
	if !ok {
		return nil, nil
	}
	switch x := raw.(type) {
	case []string:
		return append([]string(nil), x...), nil
	case []any:
		out := make([]string, len(x))
		for i, it := range x {
			out[i] = fmt.Sprint(it)
		}
		return out, nil
	case string:
		parts := strings.Split(x, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("param %q: unsupported type %T", name, raw)
	}
}

func requireParam(name string) error { return fmt.Errorf("missing param %q", name) }

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
