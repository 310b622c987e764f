// Package sources contains the source handlers that fetch pages of records
// from external systems: HTTP APIs (JSON, JSON:API, XML, SOAP), SQL
// databases, local files, and the internal object register.
package sources

import (
	"context"
	"errors"

	"github.com/openbridge/objectsync/internal/model"
)

// ErrRateLimited is returned (wrapped, together with the records fetched so
// far) when a source signals a 429-class response during pagination. The
// orchestrator finalizes partial results and re-raises it after the run log
// is persisted.
var ErrRateLimited = errors.New("source rate limit reached")

// SourceHandler is an interface with methods to fetch records from
// external data sources.
type SourceHandler interface {
	// FetchAll retrieves every record the source currently exposes.
	// Elements are usually objects; non-object elements are passed
	// through so the processor can count them as invalid. When the fetch
	// is aborted by a rate limit, the partial record list is returned
	// together with an error wrapping ErrRateLimited, and the
	// synchronization's page cursor is left at the page to resume from.
	FetchAll(ctx context.Context, sync *model.Synchronization, isTest bool) ([]any, error)

	// Validate validates the source configuration
	Validate(sync *model.Synchronization) error
}

// HandlerFactory creates source handlers based on source type.
type HandlerFactory interface {
	// CreateHandler creates a source handler for the given source type
	CreateHandler(sourceType string) (SourceHandler, error)
}
