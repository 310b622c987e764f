package sources

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/openbridge/objectsync/internal/model"
)

// Querier is the subset of pgxpool.Pool the database source needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// DatabaseSourceHandler fetches records by running the configured SQL
// query. Each row becomes one record keyed by column name, so the query is
// expected to select the origin id under its configured position.
type DatabaseSourceHandler struct {
	db Querier
}

// NewDatabaseSourceHandler creates a new database source handler.
func NewDatabaseSourceHandler(db Querier) *DatabaseSourceHandler {
	return &DatabaseSourceHandler{db: db}
}

// Validate validates the database source configuration.
func (h *DatabaseSourceHandler) Validate(sync *model.Synchronization) error {
	cfg, err := DecodeConfig(sync)
	if err != nil {
		return err
	}
	if h.db == nil {
		return fmt.Errorf("database source requires a database connection")
	}
	if cfg.SQL == "" {
		return fmt.Errorf("database source requires a sql query")
	}
	return nil
}

// FetchAll runs the configured query and returns every row as a record.
func (h *DatabaseSourceHandler) FetchAll(ctx context.Context, sync *model.Synchronization, _ bool) ([]any, error) {
	if err := h.Validate(sync); err != nil {
		return nil, err
	}

	cfg, err := DecodeConfig(sync)
	if err != nil {
		return nil, err
	}

	rows, err := h.db.Query(ctx, cfg.SQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query source database: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var records []any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read source row: %w", err)
		}
		record := make(map[string]any, len(fields))
		for i, field := range fields {
			if i < len(values) {
				record[field.Name] = values[i]
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read source rows: %w", err)
	}
	return records, nil
}
