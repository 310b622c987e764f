package mapping

import (
	"strings"
)

// escapedDot is the literal substitution applied to dots inside data keys
// so they survive dot-path parsing. Escaping happens when a record enters
// the engine and is reversed on the way out.
const escapedDot = "&#46;"

// parsePath splits a dot path into segments.
func parsePath(path string) []string {
	return strings.Split(path, ".")
}

// getPath resolves a segment path into nested maps. The second return
// reports whether every segment existed.
func getPath(data map[string]any, segments []string) (any, bool) {
	var current any = data
	for _, segment := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// setPath writes value at the segment path, creating intermediate maps.
// Existing non-map intermediates are replaced.
func setPath(data map[string]any, segments []string, value any) {
	current := data
	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[segment] = next
		}
		current = next
	}
	current[segments[len(segments)-1]] = value
}

// deletePath removes the value at the segment path if present.
func deletePath(data map[string]any, segments []string) {
	current := data
	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			return
		}
		current = next
	}
	delete(current, segments[len(segments)-1])
}

// escapeKeys returns a deep copy of data with dots in map keys replaced by
// the escape sequence.
func escapeKeys(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[strings.ReplaceAll(k, ".", escapedDot)] = escapeValue(v)
	}
	return out
}

func escapeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return escapeKeys(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = escapeValue(item)
		}
		return out
	default:
		return v
	}
}

// unescapeKeys reverses escapeKeys.
func unescapeKeys(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[strings.ReplaceAll(k, escapedDot, ".")] = unescapeValue(v)
	}
	return out
}

func unescapeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return unescapeKeys(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = unescapeValue(item)
		}
		return out
	default:
		return v
	}
}

// deepCopy copies nested maps and lists so pass-through outputs never
// alias the input record.
func deepCopy(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopy(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}
