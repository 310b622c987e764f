package targets

import (
	"fmt"

	"github.com/openbridge/objectsync/internal/httpclient"
	"github.com/openbridge/objectsync/internal/model"
	"github.com/openbridge/objectsync/internal/register"
)

// Registry selects target handlers by target type. An unknown type is a
// fatal configuration error.
type Registry interface {
	// CreateHandler returns the handler for the given target type
	CreateHandler(targetType string) (Handler, error)

	// Register adds or replaces the handler for a target type
	Register(targetType string, handler Handler)
}

// defaultRegistry is the default implementation of Registry.
type defaultRegistry struct {
	handlers map[string]Handler
}

var _ Registry = (*defaultRegistry)(nil)

// NewRegistry creates a registry with the built-in api and register
// handlers. A nil client falls back to the default HTTP client.
func NewRegistry(client httpclient.Client, reg register.Register) Registry {
	if client == nil {
		client = httpclient.NewDefaultClient(0)
	}
	return &defaultRegistry{
		handlers: map[string]Handler{
			model.TargetTypeAPI:      NewAPITargetHandler(client),
			model.TargetTypeRegister: NewRegisterTargetHandler(reg),
		},
	}
}

// CreateHandler returns the handler for the given target type.
func (r *defaultRegistry) CreateHandler(targetType string) (Handler, error) {
	handler, ok := r.handlers[targetType]
	if !ok {
		return nil, fmt.Errorf("unsupported target type: %s", targetType)
	}
	return handler, nil
}

// Register adds or replaces the handler for a target type.
func (r *defaultRegistry) Register(targetType string, handler Handler) {
	r.handlers[targetType] = handler
}
