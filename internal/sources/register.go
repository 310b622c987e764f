package sources

import (
	"context"
	"fmt"

	"github.com/openbridge/objectsync/internal/model"
	"github.com/openbridge/objectsync/internal/register"
)

// RegisterSourceHandler reads records from the internal object register.
type RegisterSourceHandler struct {
	register register.Register
}

// NewRegisterSourceHandler creates a new register source handler.
func NewRegisterSourceHandler(reg register.Register) *RegisterSourceHandler {
	return &RegisterSourceHandler{register: reg}
}

// Validate validates the register source configuration.
func (*RegisterSourceHandler) Validate(sync *model.Synchronization) error {
	cfg, err := DecodeConfig(sync)
	if err != nil {
		return err
	}
	if cfg.Register == "" && sync.SourceID == "" {
		return fmt.Errorf("register source requires a register id")
	}
	return nil
}

// FetchAll lists every object of the configured register. The register id
// defaults to the synchronization's source id.
func (h *RegisterSourceHandler) FetchAll(ctx context.Context, sync *model.Synchronization, _ bool) ([]any, error) {
	cfg, err := DecodeConfig(sync)
	if err != nil {
		return nil, err
	}

	registerID := cfg.Register
	if registerID == "" {
		registerID = sync.SourceID
	}
	if registerID == "" {
		return nil, fmt.Errorf("register source requires a register id")
	}

	objects, err := h.register.List(ctx, registerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list register %s: %w", registerID, err)
	}

	records := make([]any, len(objects))
	for i, obj := range objects {
		records[i] = obj
	}
	return records, nil
}
