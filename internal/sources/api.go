package sources

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/openbridge/objectsync/internal/httpclient"
	"github.com/openbridge/objectsync/internal/model"
)

// maxPages bounds the pagination loop against sources that never return an
// empty page.
const maxPages = 10000

// APISourceHandler fetches records from JSON HTTP APIs. It covers the
// plain api and json-api source types; the XML and SOAP handlers reuse its
// pagination loop after converting bodies to JSON.
type APISourceHandler struct {
	client httpclient.Client

	// decodeBody converts a raw response body to JSON; nil means the body
	// already is JSON
	decodeBody func([]byte) ([]byte, error)
}

// NewAPISourceHandler creates a new API source handler.
func NewAPISourceHandler(client httpclient.Client) *APISourceHandler {
	return &APISourceHandler{client: client}
}

// Validate validates the API source configuration.
func (*APISourceHandler) Validate(sync *model.Synchronization) error {
	cfg, err := DecodeConfig(sync)
	if err != nil {
		return err
	}
	if cfg.Endpoint == "" {
		return fmt.Errorf("source endpoint cannot be empty")
	}
	return nil
}

// FetchAll retrieves all records, following cursor-based pagination. When
// the source declares a rate limit, the loop starts at the
// synchronization's persisted page cursor instead of page 1 so interrupted
// runs resume where they stopped.
func (h *APISourceHandler) FetchAll(ctx context.Context, sync *model.Synchronization, isTest bool) ([]any, error) {
	cfg, err := DecodeConfig(sync)
	if err != nil {
		return nil, err
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("source endpoint cannot be empty")
	}

	page := 1
	if cfg.RateLimited && sync.CurrentPage > 1 {
		page = sync.CurrentPage
		slog.Info("Resuming paginated fetch from persisted cursor",
			"synchronization", sync.ID,
			"page", page)
	}

	var records []any
	var previousBody []byte
	for ; page <= maxPages; page++ {
		body, err := h.fetchPage(ctx, cfg, page)
		if err != nil {
			if httpclient.IsRateLimited(err) {
				// Preserve the cursor so the next run resumes here.
				sync.CurrentPage = page
				return records, fmt.Errorf("page %d: %w: %w", page, ErrRateLimited, err)
			}
			return nil, fmt.Errorf("page %d: %w", page, err)
		}

		// Sources without real pagination keep serving the same page.
		if previousBody != nil && string(previousBody) == string(body) {
			break
		}
		previousBody = body

		pageRecords, err := extractRecords(body, cfg.ResultsPosition)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		if len(pageRecords) == 0 {
			break
		}
		records = append(records, pageRecords...)

		if !cfg.Paginates() {
			break
		}
	}

	// Full completion resets the resume cursor; test runs leave it alone.
	if !isTest {
		sync.CurrentPage = 1
	}

	return records, nil
}

// fetchPage performs one paginated request.
func (h *APISourceHandler) fetchPage(ctx context.Context, cfg *Config, page int) ([]byte, error) {
	query := make(map[string]string, len(cfg.Query)+1)
	for k, v := range cfg.Query {
		query[k] = v
	}
	if cfg.Paginates() {
		query[cfg.PaginationQuery] = strconv.Itoa(page)
	}

	body, err := h.client.Do(ctx, httpclient.Request{
		URL:     cfg.Endpoint,
		Headers: cfg.Headers,
		Query:   query,
	})
	if err != nil {
		return nil, err
	}

	if h.decodeBody != nil {
		return h.decodeBody(body)
	}
	return body, nil
}
