// Package store persists synchronization definitions, contracts and audit
// logs. A database implementation backed by PostgreSQL and an in-memory
// implementation are provided; the in-memory one serves tests and
// single-process setups without a database.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/openbridge/objectsync/internal/model"
)

// Storage backends selectable through configuration.
const (
	StorageTypeDatabase = "database"
	StorageTypeMemory   = "memory"
)

// ErrSynchronizationNotFound is returned when a synchronization can't be
// found.
var ErrSynchronizationNotFound = errors.New("synchronization not found")

// ErrContractNotFound is returned when no contract matches the lookup.
var ErrContractNotFound = errors.New("contract not found")

// ErrLogNotFound is returned when a log record can't be found.
var ErrLogNotFound = errors.New("log not found")

// ErrDuplicateContract is returned when a second contract is created for
// the same synchronization and origin id.
var ErrDuplicateContract = errors.New("contract already exists for this origin")

// SynchronizationStore persists synchronization definitions.
type SynchronizationStore interface {
	// Get returns the synchronization with the given id
	Get(ctx context.Context, id string) (*model.Synchronization, error)

	// List returns all synchronizations ordered by id
	List(ctx context.Context) ([]*model.Synchronization, error)

	// Upsert creates or replaces a synchronization definition
	Upsert(ctx context.Context, sync *model.Synchronization) error

	// SetCurrentPage persists the pagination cursor without touching the
	// rest of the definition
	SetCurrentPage(ctx context.Context, id string, page int) error

	// Delete removes a synchronization and, through the backing store's
	// ownership rules, its contracts
	Delete(ctx context.Context, id string) error
}

// ContractStore persists the per-object correlation records.
type ContractStore interface {
	// Get returns the contract with the given id
	Get(ctx context.Context, id uuid.UUID) (*model.Contract, error)

	// FindByOrigin returns the contract for a synchronization and
	// source-side identity
	FindByOrigin(ctx context.Context, syncID, originID string) (*model.Contract, error)

	// FindByTarget returns the contract for a synchronization and
	// target-side identity
	FindByTarget(ctx context.Context, syncID, targetID string) (*model.Contract, error)

	// ListBySynchronization returns all contracts of a synchronization
	ListBySynchronization(ctx context.Context, syncID string) ([]*model.Contract, error)

	// Create inserts a new contract. At most one contract may exist per
	// (synchronization, origin id) pair.
	Create(ctx context.Context, contract *model.Contract) error

	// Update rewrites an existing contract
	Update(ctx context.Context, contract *model.Contract) error

	// Delete removes a contract
	Delete(ctx context.Context, id uuid.UUID) error

	// HandleObjectRemoval clears whichever side of a contract matches the
	// removed object id, origin or target, on every matching contract of
	// the synchronization. Contracts left with both sides empty are
	// deleted. Unknown ids are a no-op.
	HandleObjectRemoval(ctx context.Context, syncID, objectID string) error
}

// LogStore persists the run and per-object audit records.
type LogStore interface {
	// CreateSyncLog inserts the run log created at run start
	CreateSyncLog(ctx context.Context, log *model.SynchronizationLog) error

	// UpdateSyncLog finalizes a run log with counters, message and timing
	UpdateSyncLog(ctx context.Context, log *model.SynchronizationLog) error

	// GetSyncLog returns the run log with the given id
	GetSyncLog(ctx context.Context, id uuid.UUID) (*model.SynchronizationLog, error)

	// ListSyncLogs returns the run logs of a synchronization, newest first
	ListSyncLogs(ctx context.Context, syncID string) ([]*model.SynchronizationLog, error)

	// CreateContractLog inserts a per-object audit record
	CreateContractLog(ctx context.Context, log *model.ContractLog) error

	// ListContractLogs returns the per-object records of one run
	ListContractLogs(ctx context.Context, syncLogID uuid.UUID) ([]*model.ContractLog, error)

	// PurgeExpired deletes every log whose expiry lies before now and
	// returns the number removed
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Stores bundles the three stores so the engine can be handed one
// dependency.
type Stores struct {
	Synchronizations SynchronizationStore
	Contracts        ContractStore
	Logs             LogStore
}
