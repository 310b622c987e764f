package rules

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openbridge/objectsync/internal/mapping"
	"github.com/openbridge/objectsync/internal/model"
)

const (
	ruleTypeMapping = "mapping"
	ruleTypeUnset   = "unset"
)

// MappingHandler applies an extra mapping, configured on the rule, to the
// object payload.
type MappingHandler struct {
	engine *mapping.Engine
}

// NewMappingHandler creates the built-in mapping rule handler.
func NewMappingHandler() *MappingHandler {
	return &MappingHandler{engine: mapping.NewEngine()}
}

// CanProcess accepts rules of type mapping.
func (*MappingHandler) CanProcess(rule *model.Rule) bool {
	return rule.Type == ruleTypeMapping
}

// Process decodes the rule configuration as a mapping and applies it.
func (h *MappingHandler) Process(
	_ context.Context, rule *model.Rule, data map[string]any,
) (map[string]any, *ErrorResponse, error) {
	m, err := decodeMapping(rule.Configuration)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid mapping configuration: %w", err)
	}

	mapped, err := h.engine.Map(m, data, false)
	if err != nil {
		return nil, nil, err
	}

	result, ok := mapped.(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("mapping rule produced %T, expected an object", mapped)
	}
	return result, nil, nil
}

// decodeMapping round-trips the free-form rule configuration into a typed
// mapping.
func decodeMapping(configuration map[string]any) (*model.Mapping, error) {
	raw, err := json.Marshal(configuration)
	if err != nil {
		return nil, err
	}
	m := &model.Mapping{}
	if err := json.Unmarshal(raw, m); err != nil {
		return nil, err
	}
	return m, nil
}

// UnsetHandler removes the configured paths from the object payload.
type UnsetHandler struct {
	engine *mapping.Engine
}

// NewUnsetHandler creates the built-in unset rule handler.
func NewUnsetHandler() *UnsetHandler {
	return &UnsetHandler{engine: mapping.NewEngine()}
}

// CanProcess accepts rules of type unset.
func (*UnsetHandler) CanProcess(rule *model.Rule) bool {
	return rule.Type == ruleTypeUnset
}

// Process removes every path listed under the rule's paths key.
func (h *UnsetHandler) Process(
	_ context.Context, rule *model.Rule, data map[string]any,
) (map[string]any, *ErrorResponse, error) {
	rawPaths, ok := rule.Configuration["paths"]
	if !ok {
		return data, nil, nil
	}

	list, ok := rawPaths.([]any)
	if !ok {
		return nil, nil, fmt.Errorf("unset rule paths must be a list, got %T", rawPaths)
	}

	unset := make([]string, 0, len(list))
	for _, item := range list {
		path, ok := item.(string)
		if !ok {
			return nil, nil, fmt.Errorf("unset rule path must be a string, got %T", item)
		}
		unset = append(unset, path)
	}

	mapped, err := h.engine.Map(&model.Mapping{PassThrough: true, Unset: unset}, data, false)
	if err != nil {
		return nil, nil, err
	}

	result, ok := mapped.(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("unset rule produced %T, expected an object", mapped)
	}
	return result, nil, nil
}
