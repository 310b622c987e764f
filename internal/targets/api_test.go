package targets_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbridge/objectsync/internal/hashing"
	"github.com/openbridge/objectsync/internal/httpclient"
	"github.com/openbridge/objectsync/internal/model"
	"github.com/openbridge/objectsync/internal/targets"
)

func newTestServer(handler http.Handler) *httptest.Server {
	server := httptest.NewServer(handler)
	server.Config.SetKeepAlivesEnabled(false)
	return server
}

func apiTargetSync(endpoint string, extra map[string]any) *model.Synchronization {
	cfg := map[string]any{"endpoint": endpoint}
	for k, v := range extra {
		cfg[k] = v
	}
	return &model.Synchronization{
		ID:           "test-sync",
		TargetID:     "tgt",
		TargetType:   model.TargetTypeAPI,
		TargetConfig: cfg,
	}
}

func TestAPITargetCreateObject(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"name":"store"}`, string(body))

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "created-1", "name": "store"})
	}))
	defer server.Close()

	handler := targets.NewAPITargetHandler(httpclient.NewDefaultClient(0))
	result, err := handler.CreateObject(context.Background(), apiTargetSync(server.URL, nil), map[string]any{"name": "store"})
	require.NoError(t, err)
	assert.Equal(t, targets.ActionCreate, result.Action)
	assert.Equal(t, "created-1", result.TargetID)
	assert.Equal(t, "store", result.Body["name"])
}

func TestAPITargetCreateObjectCustomIDPathAndMethod(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"uuid": "abc-123"},
		})
	}))
	defer server.Close()

	handler := targets.NewAPITargetHandler(httpclient.NewDefaultClient(0))
	sync := apiTargetSync(server.URL, map[string]any{
		"method": http.MethodPatch,
		"idPath": "data.uuid",
	})

	result, err := handler.CreateObject(context.Background(), sync, map[string]any{"name": "store"})
	require.NoError(t, err)
	assert.Equal(t, "abc-123", result.TargetID)
}

func TestAPITargetCreateObjectRequiresEndpoint(t *testing.T) {
	t.Parallel()

	handler := targets.NewAPITargetHandler(httpclient.NewDefaultClient(0))
	_, err := handler.CreateObject(context.Background(), apiTargetSync("", nil), map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint")
}

func TestAPITargetUpdateObject(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/stores/remote-7", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "remote-7"})
	}))
	defer server.Close()

	handler := targets.NewAPITargetHandler(httpclient.NewDefaultClient(0))
	sync := apiTargetSync(server.URL+"/stores", nil)
	contract := &model.Contract{TargetID: "remote-7"}

	result, err := handler.UpdateObject(context.Background(), sync, contract, map[string]any{"name": "store"})
	require.NoError(t, err)
	assert.Equal(t, targets.ActionUpdate, result.Action)
	assert.Equal(t, "remote-7", result.TargetID)
}

func TestAPITargetUpdateObjectRequiresTargetID(t *testing.T) {
	t.Parallel()

	handler := targets.NewAPITargetHandler(httpclient.NewDefaultClient(0))
	_, err := handler.UpdateObject(
		context.Background(),
		apiTargetSync("http://example.com", nil),
		&model.Contract{},
		map[string]any{},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target id")
}

func TestAPITargetDeleteObject(t *testing.T) {
	t.Parallel()

	var deleted string
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		deleted = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	handler := targets.NewAPITargetHandler(httpclient.NewDefaultClient(0))
	result, err := handler.DeleteObject(
		context.Background(),
		apiTargetSync(server.URL+"/stores", nil),
		&model.Contract{TargetID: "remote-7"},
	)
	require.NoError(t, err)
	assert.Equal(t, targets.ActionDelete, result.Action)
	assert.Equal(t, "/stores/remote-7", deleted)
}

func TestAPITargetDeleteObjectWithoutTargetIDIsNoOp(t *testing.T) {
	t.Parallel()

	handler := targets.NewAPITargetHandler(httpclient.NewDefaultClient(0))
	result, err := handler.DeleteObject(
		context.Background(),
		apiTargetSync("http://example.invalid", nil),
		&model.Contract{},
	)
	require.NoError(t, err)
	assert.Equal(t, targets.ActionDelete, result.Action)
	assert.Empty(t, result.TargetID)
}

func TestAPITargetObjectHasChanged(t *testing.T) {
	t.Parallel()

	handler := targets.NewAPITargetHandler(httpclient.NewDefaultClient(0))
	data := map[string]any{"name": "store"}

	hash, err := hashing.Object(data)
	require.NoError(t, err)

	changed, err := handler.ObjectHasChanged(&model.Contract{TargetHash: hash}, data)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = handler.ObjectHasChanged(&model.Contract{TargetHash: "stale"}, data)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestAPITargetDeleteInvalidObjectsReportsZero(t *testing.T) {
	t.Parallel()

	handler := targets.NewAPITargetHandler(httpclient.NewDefaultClient(0))
	deleted, err := handler.DeleteInvalidObjects(
		context.Background(),
		apiTargetSync("http://example.invalid", nil),
		[]string{"a"},
	)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
