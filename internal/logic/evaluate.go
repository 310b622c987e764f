// Package logic evaluates boolean-logic condition trees against record
// data. Trees use the JsonLogic operator shape: a single-key map whose key
// is the operator and whose value holds the operands, with {"var": "path"}
// resolving dot paths into the record.
package logic

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// escapedDot is the literal substitution for dots inside data keys. The
// evaluator is string-path-based, so keys containing the path separator
// must be escaped before evaluation and referenced in escaped form.
const escapedDot = "&#46;"

// EscapeKeys returns a copy of data with every dot inside a map key
// replaced by the escape sequence, recursively.
func EscapeKeys(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		key := strings.ReplaceAll(k, ".", escapedDot)
		if nested, ok := v.(map[string]any); ok {
			out[key] = EscapeKeys(nested)
			continue
		}
		out[key] = v
	}
	return out
}

// UnescapeKey reverses the escape applied by EscapeKeys on a single key.
func UnescapeKey(key string) string {
	return strings.ReplaceAll(key, escapedDot, ".")
}

// Evaluate evaluates a condition tree against data. An empty or nil tree
// evaluates to true.
func Evaluate(tree map[string]any, data map[string]any) (bool, error) {
	if len(tree) == 0 {
		return true, nil
	}

	result, err := evaluateNode(tree, data)
	if err != nil {
		return false, err
	}
	return truthy(result), nil
}

// evaluateNode evaluates one operator node and returns its value.
func evaluateNode(node map[string]any, data map[string]any) (any, error) {
	if len(node) != 1 {
		return nil, fmt.Errorf("condition node must have exactly one operator, got %d", len(node))
	}

	var op string
	var operand any
	for k, v := range node {
		op, operand = k, v
	}

	switch op {
	case "var":
		return lookupVar(operand, data), nil
	case "and":
		return evaluateAnd(operand, data)
	case "or":
		return evaluateOr(operand, data)
	case "!":
		inner, err := resolveOperand(operand, data)
		if err != nil {
			return nil, err
		}
		return !truthy(inner), nil
	case "==", "!=", ">", ">=", "<", "<=", "in":
		return evaluateComparison(op, operand, data)
	default:
		return nil, fmt.Errorf("unsupported condition operator: %s", op)
	}
}

func evaluateAnd(operand any, data map[string]any) (any, error) {
	operands, err := operandList(operand)
	if err != nil {
		return nil, fmt.Errorf("and: %w", err)
	}
	for _, o := range operands {
		v, err := resolveOperand(o, data)
		if err != nil {
			return nil, err
		}
		if !truthy(v) {
			return false, nil
		}
	}
	return true, nil
}

func evaluateOr(operand any, data map[string]any) (any, error) {
	operands, err := operandList(operand)
	if err != nil {
		return nil, fmt.Errorf("or: %w", err)
	}
	for _, o := range operands {
		v, err := resolveOperand(o, data)
		if err != nil {
			return nil, err
		}
		if truthy(v) {
			return true, nil
		}
	}
	return false, nil
}

func evaluateComparison(op string, operand any, data map[string]any) (any, error) {
	operands, err := operandList(operand)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(operands) != 2 {
		return nil, fmt.Errorf("%s requires two operands, got %d", op, len(operands))
	}

	left, err := resolveOperand(operands[0], data)
	if err != nil {
		return nil, err
	}
	right, err := resolveOperand(operands[1], data)
	if err != nil {
		return nil, err
	}

	switch op {
	case "==":
		return equalValues(left, right), nil
	case "!=":
		return !equalValues(left, right), nil
	case "in":
		return containsValue(right, left), nil
	default:
		return compareOrdered(op, left, right)
	}
}

// resolveOperand resolves a raw operand: operator maps are evaluated,
// everything else is a literal.
func resolveOperand(operand any, data map[string]any) (any, error) {
	if node, ok := operand.(map[string]any); ok {
		return evaluateNode(node, data)
	}
	return operand, nil
}

func operandList(operand any) ([]any, error) {
	list, ok := operand.([]any)
	if !ok {
		return nil, fmt.Errorf("expected operand list, got %T", operand)
	}
	return list, nil
}

// lookupVar resolves a dot path into data, returning nil when any segment
// is missing.
func lookupVar(operand any, data map[string]any) any {
	path, err := cast.ToStringE(operand)
	if err != nil || path == "" {
		return nil
	}

	var current any = data
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[segment]
		if !ok {
			return nil
		}
	}
	return current
}

// equalValues compares loosely: numeric values compare numerically across
// types, everything else by string form.
func equalValues(left, right any) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}

	lf, lerr := toFloat(left)
	rf, rerr := toFloat(right)
	if lerr == nil && rerr == nil {
		return lf == rf
	}

	ls, lerr := cast.ToStringE(left)
	rs, rerr := cast.ToStringE(right)
	if lerr != nil || rerr != nil {
		return false
	}
	return ls == rs
}

func compareOrdered(op string, left, right any) (bool, error) {
	lf, err := toFloat(left)
	if err != nil {
		return false, fmt.Errorf("%s: left operand is not numeric: %v", op, left)
	}
	rf, err := toFloat(right)
	if err != nil {
		return false, fmt.Errorf("%s: right operand is not numeric: %v", op, right)
	}

	switch op {
	case ">":
		return lf > rf, nil
	case ">=":
		return lf >= rf, nil
	case "<":
		return lf < rf, nil
	case "<=":
		return lf <= rf, nil
	default:
		return false, fmt.Errorf("unsupported ordered operator: %s", op)
	}
}

// containsValue reports whether needle appears in haystack, where haystack
// is a list or a string.
func containsValue(haystack, needle any) bool {
	switch h := haystack.(type) {
	case []any:
		for _, item := range h {
			if equalValues(item, needle) {
				return true
			}
		}
		return false
	case string:
		s, err := cast.ToStringE(needle)
		if err != nil {
			return false
		}
		return strings.Contains(h, s)
	default:
		return false
	}
}

func toFloat(v any) (float64, error) {
	switch v.(type) {
	case bool, string:
		return 0, fmt.Errorf("not numeric: %T", v)
	}
	return cast.ToFloat64E(v)
}

// truthy follows JsonLogic truthiness: false, nil, zero, empty string and
// empty list are false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return true
		}
		return f != 0
	}
}
