package model

import (
	"time"

	"github.com/google/uuid"
)

// RunResult holds the per-run object counters.
type RunResult struct {
	Found   int `json:"found"`
	Skipped int `json:"skipped"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
	Invalid int `json:"invalid"`
}

// Add folds another result into this one.
func (r *RunResult) Add(other RunResult) {
	r.Found += other.Found
	r.Skipped += other.Skipped
	r.Created += other.Created
	r.Updated += other.Updated
	r.Deleted += other.Deleted
	r.Invalid += other.Invalid
}

// SynchronizationLog is the per-run audit record. One is created at run
// start and finalized at run end, on the failure path as well.
type SynchronizationLog struct {
	// ID is the log identifier
	ID uuid.UUID `json:"id"`

	// SynchronizationID is the synchronization this run executed
	SynchronizationID string `json:"synchronizationId"`

	// Result holds the run counters
	Result RunResult `json:"result"`

	// ContractIDs are the contracts touched during this run
	ContractIDs []uuid.UUID `json:"contractIds,omitempty"`

	// ContractLogIDs are the per-object logs created during this run
	ContractLogIDs []uuid.UUID `json:"contractLogIds,omitempty"`

	// Test marks a read-only run that never touched the target
	Test bool `json:"test"`

	// Force marks a run that reprocessed every record regardless of hash
	// equality
	Force bool `json:"force"`

	// ExecutionTime is the wall-clock duration of the run in milliseconds
	ExecutionTime int64 `json:"executionTime"`

	// Message is "Success" or the failure description
	Message string `json:"message,omitempty"`

	// Created is the run start time
	Created time.Time `json:"created"`

	// Expires controls retention; expired logs are purged
	Expires *time.Time `json:"expires,omitempty"`
}

// ContractLog is the per-object-per-run audit record, created once per
// contract touched in a run and linked to the run's SynchronizationLog.
type ContractLog struct {
	// ID is the log identifier
	ID uuid.UUID `json:"id"`

	// SynchronizationID is the owning synchronization
	SynchronizationID string `json:"synchronizationId"`

	// SynchronizationLogID links to the run log
	SynchronizationLogID uuid.UUID `json:"synchronizationLogId"`

	// ContractID is the contract this entry belongs to
	ContractID uuid.UUID `json:"contractId"`

	// Source is a snapshot of the (enriched) source record
	Source map[string]any `json:"source,omitempty"`

	// Target is a snapshot of the mapped record sent to the target
	Target map[string]any `json:"target,omitempty"`

	// TargetResult is the dispatcher's result descriptor, or "test" for
	// test runs
	TargetResult string `json:"targetResult,omitempty"`

	Test  bool `json:"test"`
	Force bool `json:"force"`

	// Created is the processing time of this object
	Created time.Time `json:"created"`

	// Expires controls retention
	Expires *time.Time `json:"expires,omitempty"`
}
