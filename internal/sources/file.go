package sources

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openbridge/objectsync/internal/model"
)

// FileSourceHandler reads records from a local JSON document. It is used
// to replay captured payloads and for offline resyncs.
type FileSourceHandler struct{}

// NewFileSourceHandler creates a new file source handler.
func NewFileSourceHandler() *FileSourceHandler {
	return &FileSourceHandler{}
}

// Validate validates the file source configuration.
func (*FileSourceHandler) Validate(sync *model.Synchronization) error {
	cfg, err := DecodeConfig(sync)
	if err != nil {
		return err
	}
	if cfg.Path == "" {
		return fmt.Errorf("file source requires a path")
	}
	return nil
}

// FetchAll reads the document and extracts records the same way the API
// handler does. File sources never paginate.
func (h *FileSourceHandler) FetchAll(_ context.Context, sync *model.Synchronization, _ bool) ([]any, error) {
	cfg, err := DecodeConfig(sync)
	if err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("file source requires a path")
	}

	data, err := os.ReadFile(filepath.Clean(cfg.Path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("source file not found: %w", err)
		}
		return nil, fmt.Errorf("failed to read source file: %w", err)
	}

	records, err := extractRecords(data, cfg.ResultsPosition)
	if err != nil {
		return nil, fmt.Errorf("file %s: %w", cfg.Path, err)
	}
	return records, nil
}
