package mapping_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbridge/objectsync/internal/mapping"
	"github.com/openbridge/objectsync/internal/model"
)

func TestMapNilMappingPassesThrough(t *testing.T) {
	t.Parallel()

	input := map[string]any{"name": "store"}
	got, err := mapping.NewEngine().Map(nil, input, false)
	require.NoError(t, err)
	assert.Equal(t, input, got)
}

func TestMapPathCopyAndTemplate(t *testing.T) {
	t.Parallel()

	engine := mapping.NewEngine()
	input := map[string]any{
		"title": "Store Twelve",
		"address": map[string]any{
			"city": "Amsterdam",
		},
	}

	m := &model.Mapping{
		Mapping: map[string]string{
			"name":          "title",
			"location.city": "address.city",
			"label":         "{{.title}} ({{.address.city}})",
			"kind":          "store",
		},
	}

	got, err := engine.Map(m, input, false)
	require.NoError(t, err)

	out, ok := got.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Store Twelve", out["name"])
	assert.Equal(t, map[string]any{"city": "Amsterdam"}, out["location"])
	assert.Equal(t, "Store Twelve (Amsterdam)", out["label"])
	// A spec that is not a resolvable path renders as a template; plain
	// text renders to itself.
	assert.Equal(t, "store", out["kind"])
}

func TestMapPassThroughAndUnset(t *testing.T) {
	t.Parallel()

	engine := mapping.NewEngine()
	input := map[string]any{
		"name":     "store",
		"internal": "secret",
		"meta": map[string]any{
			"etag":    "abc",
			"version": 3,
		},
	}

	m := &model.Mapping{
		PassThrough: true,
		Unset:       []string{"internal", "meta.etag"},
	}

	got, err := engine.Map(m, input, false)
	require.NoError(t, err)

	out, ok := got.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "store", out["name"])
	assert.NotContains(t, out, "internal")
	assert.Equal(t, map[string]any{"version": 3}, out["meta"])

	// Pass-through output never aliases the input.
	out["name"] = "changed"
	assert.Equal(t, "store", input["name"])
}

func TestMapCasts(t *testing.T) {
	t.Parallel()

	engine := mapping.NewEngine()

	tests := []struct {
		name  string
		input map[string]any
		m     *model.Mapping
		check func(t *testing.T, out map[string]any)
	}{
		{
			name:  "int cast",
			input: map[string]any{"stock": "42"},
			m: &model.Mapping{
				PassThrough: true,
				Cast:        map[string]model.CastList{"stock": {"int"}},
			},
			check: func(t *testing.T, out map[string]any) {
				assert.Equal(t, 42, out["stock"])
			},
		},
		{
			name:  "string then unsetIfEmpty keeps value",
			input: map[string]any{"code": 7},
			m: &model.Mapping{
				PassThrough: true,
				Cast:        map[string]model.CastList{"code": {"string", "unsetIfEmpty"}},
			},
			check: func(t *testing.T, out map[string]any) {
				assert.Equal(t, "7", out["code"])
			},
		},
		{
			name:  "unsetIfEmpty removes empty string",
			input: map[string]any{"code": ""},
			m: &model.Mapping{
				PassThrough: true,
				Cast:        map[string]model.CastList{"code": {"unsetIfEmpty"}},
			},
			check: func(t *testing.T, out map[string]any) {
				assert.NotContains(t, out, "code")
			},
		},
		{
			name:  "unsetIfNull removes nil",
			input: map[string]any{"note": nil},
			m: &model.Mapping{
				PassThrough: true,
				Cast:        map[string]model.CastList{"note": {"unsetIfNull"}},
			},
			check: func(t *testing.T, out map[string]any) {
				assert.NotContains(t, out, "note")
			},
		},
		{
			name:  "unsetIfValue removes matching value",
			input: map[string]any{"status": "unknown"},
			m: &model.Mapping{
				PassThrough: true,
				Cast:        map[string]model.CastList{"status": {"unsetIfValue==unknown"}},
			},
			check: func(t *testing.T, out map[string]any) {
				assert.NotContains(t, out, "status")
			},
		},
		{
			name:  "setNullIfValue",
			input: map[string]any{"status": "n/a"},
			m: &model.Mapping{
				PassThrough: true,
				Cast:        map[string]model.CastList{"status": {"setNullIfValue==n/a"}},
			},
			check: func(t *testing.T, out map[string]any) {
				assert.Contains(t, out, "status")
				assert.Nil(t, out["status"])
			},
		},
		{
			name:  "split",
			input: map[string]any{"tags": "a, b ,c"},
			m: &model.Mapping{
				PassThrough: true,
				Cast:        map[string]model.CastList{"tags": {"split"}},
			},
			check: func(t *testing.T, out map[string]any) {
				assert.Equal(t, []any{"a", "b", "c"}, out["tags"])
			},
		},
		{
			name:  "coordinates from string",
			input: map[string]any{"geo": "52.37, 4.89"},
			m: &model.Mapping{
				PassThrough: true,
				Cast:        map[string]model.CastList{"geo": {"coordinates"}},
			},
			check: func(t *testing.T, out map[string]any) {
				assert.Equal(t, map[string]any{"latitude": 52.37, "longitude": 4.89}, out["geo"])
			},
		},
		{
			name:  "coordinates from object",
			input: map[string]any{"geo": map[string]any{"lat": "52.37", "long": "4.89"}},
			m: &model.Mapping{
				PassThrough: true,
				Cast:        map[string]model.CastList{"geo": {"coordinates"}},
			},
			check: func(t *testing.T, out map[string]any) {
				assert.Equal(t, map[string]any{"latitude": 52.37, "longitude": 4.89}, out["geo"])
			},
		},
		{
			name:  "toYesNo",
			input: map[string]any{"open": true, "closed": "nope"},
			m: &model.Mapping{
				PassThrough: true,
				Cast: map[string]model.CastList{
					"open":   {"toYesNo"},
					"closed": {"toYesNo"},
				},
			},
			check: func(t *testing.T, out map[string]any) {
				assert.Equal(t, "yes", out["open"])
				assert.Equal(t, "no", out["closed"])
			},
		},
		{
			name:  "countValue writes the list length",
			input: map[string]any{"items": []any{"a", "b", "c"}},
			m: &model.Mapping{
				PassThrough: true,
				Cast:        map[string]model.CastList{"items": {"countValue:itemCount"}},
			},
			check: func(t *testing.T, out map[string]any) {
				assert.Equal(t, 3, out["itemCount"])
			},
		},
		{
			name:  "array decodes JSON string",
			input: map[string]any{"list": `["x","y"]`},
			m: &model.Mapping{
				PassThrough: true,
				Cast:        map[string]model.CastList{"list": {"array"}},
			},
			check: func(t *testing.T, out map[string]any) {
				assert.Equal(t, []any{"x", "y"}, out["list"])
			},
		},
		{
			name:  "unknown cast is a no-op",
			input: map[string]any{"v": "keep"},
			m: &model.Mapping{
				PassThrough: true,
				Cast:        map[string]model.CastList{"v": {"frobnicate"}},
			},
			check: func(t *testing.T, out map[string]any) {
				assert.Equal(t, "keep", out["v"])
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := engine.Map(tt.m, tt.input, false)
			require.NoError(t, err)
			out, ok := got.(map[string]any)
			require.True(t, ok)
			tt.check(t, out)
		})
	}
}

func TestMapCastErrors(t *testing.T) {
	t.Parallel()

	engine := mapping.NewEngine()
	m := &model.Mapping{
		PassThrough: true,
		Cast:        map[string]model.CastList{"stock": {"int"}},
	}

	_, err := engine.Map(m, map[string]any{"stock": "not-a-number"}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stock")
}

func TestMapRootKeyUnwrap(t *testing.T) {
	t.Parallel()

	engine := mapping.NewEngine()
	m := &model.Mapping{
		Mapping: map[string]string{"#": "items"},
	}

	got, err := engine.Map(m, map[string]any{"items": []any{"a", "b"}}, false)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, got)
}

func TestMapDottedKeys(t *testing.T) {
	t.Parallel()

	engine := mapping.NewEngine()
	m := &model.Mapping{
		Mapping: map[string]string{"version": "meta&#46;v1.value"},
	}

	input := map[string]any{
		"meta.v1": map[string]any{"value": 7},
	}

	got, err := engine.Map(m, input, false)
	require.NoError(t, err)
	out, ok := got.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 7, out["version"])
}

func TestMapList(t *testing.T) {
	t.Parallel()

	engine := mapping.NewEngine()
	m := &model.Mapping{
		Mapping: map[string]string{
			"name":   "title",
			"source": "feed",
		},
	}

	t.Run("plain list", func(t *testing.T) {
		t.Parallel()

		got, err := engine.Map(m, []any{
			map[string]any{"title": "one", "feed": "a"},
			map[string]any{"title": "two", "feed": "b"},
		}, true)
		require.NoError(t, err)

		list, ok := got.([]any)
		require.True(t, ok)
		require.Len(t, list, 2)
		assert.Equal(t, "one", list[0].(map[string]any)["name"])
		assert.Equal(t, "two", list[1].(map[string]any)["name"])
	})

	t.Run("wrapped list with shared siblings", func(t *testing.T) {
		t.Parallel()

		got, err := engine.Map(m, map[string]any{
			"listInput": []any{
				map[string]any{"title": "one"},
				map[string]any{"title": "two", "feed": "own"},
			},
			"feed": "shared",
		}, true)
		require.NoError(t, err)

		list, ok := got.([]any)
		require.True(t, ok)
		require.Len(t, list, 2)
		assert.Equal(t, "shared", list[0].(map[string]any)["source"])
		// Element values win over shared siblings.
		assert.Equal(t, "own", list[1].(map[string]any)["source"])
	})

	t.Run("non-object element fails", func(t *testing.T) {
		t.Parallel()

		_, err := engine.Map(m, []any{"not-an-object"}, true)
		require.Error(t, err)
	})
}

func TestMapRejectsNonObjectInput(t *testing.T) {
	t.Parallel()

	_, err := mapping.NewEngine().Map(&model.Mapping{}, "scalar", false)
	require.Error(t, err)
}
