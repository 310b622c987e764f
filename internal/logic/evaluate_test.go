package logic_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbridge/objectsync/internal/logic"
)

func TestEvaluate(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"status": "active",
		"stock":  float64(12),
		"price":  9.95,
		"tags":   []any{"retail", "flagship"},
		"address": map[string]any{
			"country": "NL",
		},
		"deleted": false,
	}

	tests := []struct {
		name string
		tree map[string]any
		want bool
	}{
		{
			name: "empty tree admits",
			tree: nil,
			want: true,
		},
		{
			name: "equality on string",
			tree: map[string]any{"==": []any{map[string]any{"var": "status"}, "active"}},
			want: true,
		},
		{
			name: "equality across numeric types",
			tree: map[string]any{"==": []any{map[string]any{"var": "stock"}, 12}},
			want: true,
		},
		{
			name: "inequality",
			tree: map[string]any{"!=": []any{map[string]any{"var": "status"}, "archived"}},
			want: true,
		},
		{
			name: "ordered comparison",
			tree: map[string]any{">": []any{map[string]any{"var": "price"}, 5}},
			want: true,
		},
		{
			name: "ordered comparison false",
			tree: map[string]any{"<=": []any{map[string]any{"var": "stock"}, 10}},
			want: false,
		},
		{
			name: "nested path lookup",
			tree: map[string]any{"==": []any{map[string]any{"var": "address.country"}, "NL"}},
			want: true,
		},
		{
			name: "missing path is nil",
			tree: map[string]any{"==": []any{map[string]any{"var": "address.zip"}, nil}},
			want: true,
		},
		{
			name: "in list",
			tree: map[string]any{"in": []any{"retail", map[string]any{"var": "tags"}}},
			want: true,
		},
		{
			name: "in string",
			tree: map[string]any{"in": []any{"act", map[string]any{"var": "status"}}},
			want: true,
		},
		{
			name: "and all true",
			tree: map[string]any{"and": []any{
				map[string]any{"==": []any{map[string]any{"var": "status"}, "active"}},
				map[string]any{">": []any{map[string]any{"var": "stock"}, 0}},
			}},
			want: true,
		},
		{
			name: "and short circuits false",
			tree: map[string]any{"and": []any{
				map[string]any{"var": "deleted"},
				map[string]any{"var": "status"},
			}},
			want: false,
		},
		{
			name: "or one true",
			tree: map[string]any{"or": []any{
				map[string]any{"var": "deleted"},
				map[string]any{"==": []any{map[string]any{"var": "status"}, "active"}},
			}},
			want: true,
		},
		{
			name: "negation",
			tree: map[string]any{"!": map[string]any{"var": "deleted"}},
			want: true,
		},
		{
			name: "bare var truthiness",
			tree: map[string]any{"var": "status"},
			want: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := logic.Evaluate(tt.tree, data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		tree map[string]any
	}{
		{
			name: "unknown operator",
			tree: map[string]any{"between": []any{1, 2}},
		},
		{
			name: "multiple operators in one node",
			tree: map[string]any{"==": []any{1, 1}, "!=": []any{1, 2}},
		},
		{
			name: "comparison needs two operands",
			tree: map[string]any{"==": []any{1}},
		},
		{
			name: "operand must be a list",
			tree: map[string]any{"and": "not-a-list"},
		},
		{
			name: "ordered comparison on non-numeric",
			tree: map[string]any{">": []any{"abc", 1}},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := logic.Evaluate(tt.tree, map[string]any{})
			require.Error(t, err)
		})
	}
}

func TestEscapeKeys(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"plain": 1,
		"dotted.key": map[string]any{
			"inner.key": "value",
		},
	}

	escaped := logic.EscapeKeys(data)

	assert.Contains(t, escaped, "plain")
	assert.Contains(t, escaped, "dotted&#46;key")
	nested, ok := escaped["dotted&#46;key"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, nested, "inner&#46;key")

	// Escaped keys are addressable as single path segments.
	got, err := logic.Evaluate(map[string]any{
		"==": []any{map[string]any{"var": "dotted&#46;key.inner&#46;key"}, "value"},
	}, escaped)
	require.NoError(t, err)
	assert.True(t, got)

	assert.Equal(t, "dotted.key", logic.UnescapeKey("dotted&#46;key"))
}
