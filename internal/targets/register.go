package targets

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cast"

	"github.com/openbridge/objectsync/internal/hashing"
	"github.com/openbridge/objectsync/internal/model"
	"github.com/openbridge/objectsync/internal/register"
)

// RegisterTargetHandler writes objects to the internal object register.
type RegisterTargetHandler struct {
	register register.Register
}

// NewRegisterTargetHandler creates a new register target handler.
func NewRegisterTargetHandler(reg register.Register) *RegisterTargetHandler {
	return &RegisterTargetHandler{register: reg}
}

// CreateObject stores a new object. The object id is taken from the
// payload's id path when present, otherwise a fresh uuid is assigned.
func (h *RegisterTargetHandler) CreateObject(
	ctx context.Context, sync *model.Synchronization, data map[string]any,
) (*Result, error) {
	cfg, err := DecodeConfig(sync)
	if err != nil {
		return nil, err
	}

	objectID := ""
	if raw, ok := data[cfg.IDPath]; ok {
		objectID = cast.ToString(raw)
	}
	if objectID == "" {
		objectID = uuid.NewString()
	}

	if err := h.register.Put(ctx, registerID(cfg, sync), objectID, data); err != nil {
		return nil, fmt.Errorf("register create failed: %w", err)
	}
	return &Result{TargetID: objectID, Action: ActionCreate}, nil
}

// UpdateObject replaces the object identified by the contract.
func (h *RegisterTargetHandler) UpdateObject(
	ctx context.Context, sync *model.Synchronization, contract *model.Contract, data map[string]any,
) (*Result, error) {
	cfg, err := DecodeConfig(sync)
	if err != nil {
		return nil, err
	}
	if contract.TargetID == "" {
		return nil, fmt.Errorf("cannot update without a target id")
	}

	if err := h.register.Put(ctx, registerID(cfg, sync), contract.TargetID, data); err != nil {
		return nil, fmt.Errorf("register update failed: %w", err)
	}
	return &Result{TargetID: contract.TargetID, Action: ActionUpdate}, nil
}

// DeleteObject removes the object identified by the contract.
func (h *RegisterTargetHandler) DeleteObject(
	ctx context.Context, sync *model.Synchronization, contract *model.Contract,
) (*Result, error) {
	cfg, err := DecodeConfig(sync)
	if err != nil {
		return nil, err
	}
	if contract.TargetID == "" {
		return &Result{Action: ActionDelete}, nil
	}

	if _, err := h.register.Delete(ctx, registerID(cfg, sync), contract.TargetID); err != nil {
		return nil, fmt.Errorf("register delete failed: %w", err)
	}
	return &Result{TargetID: contract.TargetID, Action: ActionDelete}, nil
}

// ObjectHasChanged compares the payload against the stored object's hash.
func (h *RegisterTargetHandler) ObjectHasChanged(contract *model.Contract, data map[string]any) (bool, error) {
	hash, err := hashing.Object(data)
	if err != nil {
		return false, err
	}
	return hash != contract.TargetHash, nil
}

// DeleteInvalidObjects removes every register object whose id is not in
// keepTargetIDs. Re-running with the same keep set deletes nothing.
func (h *RegisterTargetHandler) DeleteInvalidObjects(
	ctx context.Context, sync *model.Synchronization, keepTargetIDs []string,
) (int, error) {
	cfg, err := DecodeConfig(sync)
	if err != nil {
		return 0, err
	}
	regID := registerID(cfg, sync)

	ids, err := h.register.IDs(ctx, regID)
	if err != nil {
		return 0, fmt.Errorf("failed to list register %s: %w", regID, err)
	}

	keep := make(map[string]struct{}, len(keepTargetIDs))
	for _, id := range keepTargetIDs {
		keep[id] = struct{}{}
	}

	deleted := 0
	for _, id := range ids {
		if _, ok := keep[id]; ok {
			continue
		}
		removed, err := h.register.Delete(ctx, regID, id)
		if err != nil {
			return deleted, fmt.Errorf("failed to delete object %s: %w", id, err)
		}
		if removed {
			deleted++
		}
	}
	return deleted, nil
}

// registerID defaults to the synchronization's target id when the config
// does not name a register.
func registerID(cfg *Config, sync *model.Synchronization) string {
	if cfg.Register != "" {
		return cfg.Register
	}
	return sync.TargetID
}
