// Package mapping transforms records using declarative mapping descriptors:
// dot-path copies, template rendering, unsets and a cast pipeline.
package mapping

import (
	"bytes"
	"fmt"
	"sort"
	"text/template"

	"github.com/openbridge/objectsync/internal/model"
)

// listInputKey wraps a record list whose siblings are merged into every
// element before mapping.
const listInputKey = "listInput"

// rootKey unwraps a single-key output so mappings can build a root-level
// scalar or array instead of an object.
const rootKey = "#"

// Engine applies mapping descriptors to records.
type Engine struct{}

// NewEngine creates a mapping engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Map transforms input using the mapping descriptor. A nil descriptor
// returns the input unchanged. With isList set, input is either a record
// list or a map carrying the list under "listInput" with shared sibling
// values, and every element is mapped individually.
func (e *Engine) Map(m *model.Mapping, input any, isList bool) (any, error) {
	if m == nil {
		return input, nil
	}

	if isList {
		return e.mapList(m, input)
	}

	record, ok := input.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("mapping input must be an object, got %T", input)
	}
	return e.mapRecord(m, record)
}

// mapList iterates the record list, recursively mapping each element.
func (e *Engine) mapList(m *model.Mapping, input any) (any, error) {
	list, shared, err := resolveList(input)
	if err != nil {
		return nil, err
	}

	out := make([]any, 0, len(list))
	for i, item := range list {
		record, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("list element %d is not an object, got %T", i, item)
		}
		if len(shared) > 0 {
			merged := deepCopy(record)
			for k, v := range shared {
				if _, exists := merged[k]; !exists {
					merged[k] = deepCopyValue(v)
				}
			}
			record = merged
		}
		mapped, err := e.mapRecord(m, record)
		if err != nil {
			return nil, fmt.Errorf("list element %d: %w", i, err)
		}
		out = append(out, mapped)
	}
	return out, nil
}

// resolveList extracts the element list and any shared sibling values from
// list-mode input.
func resolveList(input any) ([]any, map[string]any, error) {
	switch t := input.(type) {
	case []any:
		return t, nil, nil
	case map[string]any:
		wrapped, ok := t[listInputKey].([]any)
		if !ok {
			return nil, nil, fmt.Errorf("list input requires a %q list", listInputKey)
		}
		shared := make(map[string]any, len(t)-1)
		for k, v := range t {
			if k != listInputKey {
				shared[k] = v
			}
		}
		return wrapped, shared, nil
	default:
		return nil, nil, fmt.Errorf("list input must be a list or a wrapper object, got %T", input)
	}
}

// mapRecord maps a single record: copy-or-render per entry, unsets, casts
// and the root-key unwrap.
func (e *Engine) mapRecord(m *model.Mapping, input map[string]any) (any, error) {
	escaped := escapeKeys(input)

	var output map[string]any
	if m.PassThrough {
		output = deepCopy(escaped)
	} else {
		output = make(map[string]any)
	}

	// Deterministic order keeps template errors stable across runs.
	targets := make([]string, 0, len(m.Mapping))
	for targetPath := range m.Mapping {
		targets = append(targets, targetPath)
	}
	sort.Strings(targets)

	for _, targetPath := range targets {
		sourceSpec := m.Mapping[targetPath]

		// A source spec that resolves as a literal path wins over
		// template rendering.
		if value, ok := getPath(escaped, parsePath(sourceSpec)); ok {
			setPath(output, parsePath(targetPath), deepCopyValue(value))
			continue
		}

		rendered, err := renderTemplate(sourceSpec, input)
		if err != nil {
			return nil, fmt.Errorf("mapping %q: %w", targetPath, err)
		}
		setPath(output, parsePath(targetPath), rendered)
	}

	for _, path := range m.Unset {
		deletePath(output, parsePath(path))
	}

	if err := applyCasts(m.Cast, output); err != nil {
		return nil, err
	}

	if len(output) == 1 {
		if root, ok := output[rootKey]; ok {
			return unescapeValue(root), nil
		}
	}

	return unescapeKeys(output), nil
}

// renderTemplate renders the source spec as a template against the
// original, unescaped input record. Plain text renders to itself, which is
// how constant values are mapped.
func renderTemplate(spec string, input map[string]any) (string, error) {
	tmpl, err := template.New("mapping").Option("missingkey=zero").Parse(spec)
	if err != nil {
		return "", fmt.Errorf("invalid template %q: %w", spec, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, input); err != nil {
		return "", fmt.Errorf("template %q: %w", spec, err)
	}
	return buf.String(), nil
}
