package store

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewStores creates the store bundle for the configured storage backend.
//
// For database storage the pool must not be nil. Unknown storage types
// fall back to the in-memory backend so that local runs and tests work
// without a database.
func NewStores(storageType string, pool *pgxpool.Pool) (*Stores, error) {
	switch storageType {
	case StorageTypeDatabase:
		if pool == nil {
			return nil, fmt.Errorf("database pool is required when storage type is database")
		}
		return NewDBStores(pool), nil
	case StorageTypeMemory, "":
		return NewMemoryStores(), nil
	default:
		return NewMemoryStores(), nil
	}
}
