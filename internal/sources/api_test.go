package sources_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbridge/objectsync/internal/httpclient"
	"github.com/openbridge/objectsync/internal/model"
	"github.com/openbridge/objectsync/internal/sources"
)

func newTestServer(handler http.Handler) *httptest.Server {
	server := httptest.NewServer(handler)
	server.Config.SetKeepAlivesEnabled(false)
	return server
}

func apiSync(endpoint string, extra map[string]any) *model.Synchronization {
	cfg := map[string]any{"endpoint": endpoint}
	for k, v := range extra {
		cfg[k] = v
	}
	return &model.Synchronization{
		ID:           "test-sync",
		SourceID:     "src",
		SourceType:   model.SourceTypeAPI,
		SourceConfig: cfg,
	}
}

func TestAPISourceValidate(t *testing.T) {
	t.Parallel()

	handler := sources.NewAPISourceHandler(httpclient.NewDefaultClient(0))

	require.NoError(t, handler.Validate(apiSync("http://example.com/records", nil)))

	err := handler.Validate(apiSync("", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint")
}

func TestAPISourceFetchAllPaginates(t *testing.T) {
	t.Parallel()

	pages := map[int][]map[string]any{
		1: {{"id": "a"}, {"id": "b"}},
		2: {{"id": "c"}},
		3: {},
	}

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		_ = json.NewEncoder(w).Encode(map[string]any{"results": pages[page]})
	}))
	defer server.Close()

	handler := sources.NewAPISourceHandler(httpclient.NewDefaultClient(0))
	sync := apiSync(server.URL, nil)

	records, err := handler.FetchAll(context.Background(), sync, false)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "a", records[0].(map[string]any)["id"])
	assert.Equal(t, "c", records[2].(map[string]any)["id"])
	assert.Equal(t, 1, sync.CurrentPage)
}

func TestAPISourceFetchAllWithoutPagination(t *testing.T) {
	t.Parallel()

	var requests int
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Empty(t, r.URL.Query().Get("page"))
		_ = json.NewEncoder(w).Encode(map[string]any{"results": []map[string]any{{"id": "a"}}})
	}))
	defer server.Close()

	handler := sources.NewAPISourceHandler(httpclient.NewDefaultClient(0))
	sync := apiSync(server.URL, map[string]any{"usesPagination": false})

	records, err := handler.FetchAll(context.Background(), sync, false)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 1, requests)
}

func TestAPISourceFetchAllStopsOnRepeatedPage(t *testing.T) {
	t.Parallel()

	// A source that ignores the page parameter serves the same body over
	// and over; the loop must stop instead of duplicating records.
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"results": []map[string]any{{"id": "a"}}})
	}))
	defer server.Close()

	handler := sources.NewAPISourceHandler(httpclient.NewDefaultClient(0))
	records, err := handler.FetchAll(context.Background(), apiSync(server.URL, nil), false)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestAPISourceFetchAllRateLimited(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page >= 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"id": fmt.Sprintf("page-%d", page)}},
		})
	}))
	defer server.Close()

	handler := sources.NewAPISourceHandler(httpclient.NewDefaultClient(0))
	sync := apiSync(server.URL, map[string]any{"rateLimited": true})

	records, err := handler.FetchAll(context.Background(), sync, false)
	require.ErrorIs(t, err, sources.ErrRateLimited)

	// Partial records are returned and the cursor points at the aborted
	// page so the next run resumes there.
	assert.Len(t, records, 2)
	assert.Equal(t, 3, sync.CurrentPage)
}

func TestAPISourceFetchAllResumesFromCursor(t *testing.T) {
	t.Parallel()

	var firstPageRequested int
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page == 1 {
			firstPageRequested++
		}
		if page >= 4 {
			_ = json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"id": fmt.Sprintf("page-%d", page)}},
		})
	}))
	defer server.Close()

	handler := sources.NewAPISourceHandler(httpclient.NewDefaultClient(0))
	sync := apiSync(server.URL, map[string]any{"rateLimited": true})
	sync.CurrentPage = 3

	records, err := handler.FetchAll(context.Background(), sync, false)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, "page-3", records[0].(map[string]any)["id"])
	assert.Zero(t, firstPageRequested)
	assert.Equal(t, 1, sync.CurrentPage)
}

func TestAPISourceFetchAllNonRateLimitErrorIsFatal(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	handler := sources.NewAPISourceHandler(httpclient.NewDefaultClient(0))
	_, err := handler.FetchAll(context.Background(), apiSync(server.URL, nil), false)
	require.Error(t, err)
	assert.NotErrorIs(t, err, sources.ErrRateLimited)
}

func TestAPISourceResultsPosition(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "1" {
			_ = json.NewEncoder(w).Encode(map[string]any{"payload": map[string]any{"stores": []any{}}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"payload": map[string]any{
				"stores": []map[string]any{{"id": "s1"}},
			},
		})
	}))
	defer server.Close()

	handler := sources.NewAPISourceHandler(httpclient.NewDefaultClient(0))
	sync := apiSync(server.URL, map[string]any{"resultsPosition": "payload.stores"})

	records, err := handler.FetchAll(context.Background(), sync, false)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "s1", records[0].(map[string]any)["id"])
}

func TestDecodeConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := sources.DecodeConfig(&model.Synchronization{})
	require.NoError(t, err)
	assert.Equal(t, "id", cfg.IDPosition)
	assert.Equal(t, "page", cfg.PaginationQuery)
	assert.True(t, cfg.Paginates())
	assert.False(t, cfg.RateLimited)
}

func TestDecodeConfigExplicitValues(t *testing.T) {
	t.Parallel()

	cfg, err := sources.DecodeConfig(&model.Synchronization{
		SourceConfig: map[string]any{
			"endpoint":        "http://example.com",
			"idPosition":      "attributes.uuid",
			"paginationQuery": "offset",
			"usesPagination":  false,
			"rateLimited":     true,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "attributes.uuid", cfg.IDPosition)
	assert.Equal(t, "offset", cfg.PaginationQuery)
	assert.False(t, cfg.Paginates())
	assert.True(t, cfg.RateLimited)
}
