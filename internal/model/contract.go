package model

import (
	"time"

	"github.com/google/uuid"
)

// Contract is the durable correlation record linking one source-side
// identity to one target-side identity for a given synchronization.
// At most one contract exists per (SynchronizationID, OriginID) pair.
type Contract struct {
	// ID is the contract identifier
	ID uuid.UUID `json:"id"`

	// SynchronizationID is the owning synchronization
	SynchronizationID string `json:"synchronizationId"`

	// OriginID is the source-side identity; empty after the source object
	// was removed
	OriginID string `json:"originId,omitempty"`

	// OriginHash is the hash of the hash-mapped record, used purely for
	// change detection
	OriginHash string `json:"originHash,omitempty"`

	// TargetID is the target-side identity; empty until the first
	// successful dispatch or after the target object was removed
	TargetID string `json:"targetId,omitempty"`

	// TargetHash is the hash of the target-mapped record actually sent
	TargetHash string `json:"targetHash,omitempty"`

	SourceLastChanged *time.Time `json:"sourceLastChanged,omitempty"`
	SourceLastChecked *time.Time `json:"sourceLastChecked,omitempty"`
	SourceLastSynced  *time.Time `json:"sourceLastSynced,omitempty"`
	TargetLastChanged *time.Time `json:"targetLastChanged,omitempty"`
	TargetLastChecked *time.Time `json:"targetLastChecked,omitempty"`
	TargetLastSynced  *time.Time `json:"targetLastSynced,omitempty"`

	// Created is set when the origin id is first seen
	Created time.Time `json:"created"`

	// Updated is bumped on every run that touches this contract
	Updated time.Time `json:"updated"`
}

// Orphaned reports whether both sides of the contract have been cleared.
// Orphaned contracts are deleted by object-removal handling.
func (c *Contract) Orphaned() bool {
	return c.OriginID == "" && c.TargetID == ""
}
