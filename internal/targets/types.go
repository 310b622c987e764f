// Package targets contains the target handlers that write mapped records
// to external systems and the registry that selects them by target type.
package targets

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openbridge/objectsync/internal/model"
)

// Write action descriptors recorded in contract logs and matched by rules.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Result describes the outcome of one target write.
type Result struct {
	// TargetID is the target-side identity of the written object
	TargetID string

	// Action is the write action performed (create, update, delete)
	Action string

	// Body is the decoded response body, when the target returned one
	Body map[string]any
}

// Handler is the interface target adapters implement.
type Handler interface {
	// CreateObject writes a new object to the target
	CreateObject(ctx context.Context, sync *model.Synchronization, data map[string]any) (*Result, error)

	// UpdateObject rewrites the object identified by the contract
	UpdateObject(ctx context.Context, sync *model.Synchronization, contract *model.Contract, data map[string]any) (*Result, error)

	// DeleteObject removes the object identified by the contract
	DeleteObject(ctx context.Context, sync *model.Synchronization, contract *model.Contract) (*Result, error)

	// ObjectHasChanged reports whether data diverges from the state the
	// contract last recorded
	ObjectHasChanged(contract *model.Contract, data map[string]any) (bool, error)

	// DeleteInvalidObjects removes target objects whose ids are not in
	// keepTargetIDs and returns the number deleted. Adapters that cannot
	// enumerate their target report zero.
	DeleteInvalidObjects(ctx context.Context, sync *model.Synchronization, keepTargetIDs []string) (int, error)
}

// Config is the typed view over a synchronization's free-form target
// configuration map.
type Config struct {
	// Endpoint is the base URL objects are written to
	Endpoint string `json:"endpoint,omitempty"`

	// Method overrides the HTTP method used for creates; defaults to POST
	Method string `json:"method,omitempty"`

	// Headers are sent with every request
	Headers map[string]string `json:"headers,omitempty"`

	// IDPath is the dot path to the object id inside a create response;
	// defaults to "id"
	IDPath string `json:"idPath,omitempty"`

	// Register is the register identifier for register targets
	Register string `json:"register,omitempty"`
}

// DecodeConfig extracts the typed target configuration from the free-form
// map.
func DecodeConfig(sync *model.Synchronization) (*Config, error) {
	raw, err := json.Marshal(sync.TargetConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize target config: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("invalid target config: %w", err)
	}

	if cfg.IDPath == "" {
		cfg.IDPath = "id"
	}
	return cfg, nil
}
