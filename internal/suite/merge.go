package suite

import "fmt"

// Merge combines override into base and returns a new mapping.
//
// A key whose value is a mapping on both sides is merged recursively. Any
// other override value, sequences included, replaces the base value as a
// whole. Keys present only in base are kept. Neither argument is modified.
func Merge(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = clone(v)
	}

	for k, ov := range override {
		if bm, ok := asMap(out[k]); ok {
			if om, ok := asMap(ov); ok {
				out[k] = Merge(bm, om)
				continue
			}
		}
		out[k] = clone(ov)
	}
	return out
}

// asMap normalizes the two mapping shapes a YAML decoder can produce.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func clone(v any) any {
	if m, ok := asMap(v); ok {
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = clone(val)
		}
		return out
	}
	if s, ok := v.([]any); ok {
		out := make([]any, len(s))
		for i, val := range s {
			out[i] = clone(val)
		}
		return out
	}
	return v
}
