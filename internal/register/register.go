// Package register provides the internal object register: a key-indexed
// object store used as a built-in source and target for synchronizations
// that move data inside the system.
package register

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrObjectNotFound is returned when a register object can't be found.
var ErrObjectNotFound = errors.New("object not found")

// Register defines the interface for object persistence, keyed by register
// id and object id.
type Register interface {
	// List returns every object in a register, ordered by object id
	List(ctx context.Context, registerID string) ([]map[string]any, error)

	// IDs returns every object id in a register, ordered
	IDs(ctx context.Context, registerID string) ([]string, error)

	// Get retrieves one object
	Get(ctx context.Context, registerID, objectID string) (map[string]any, error)

	// Put stores or replaces one object
	Put(ctx context.Context, registerID, objectID string, object map[string]any) error

	// Delete removes one object; deleting a missing object is not an error
	// and reports false
	Delete(ctx context.Context, registerID, objectID string) (bool, error)
}

// memoryRegister implements Register with an in-process map. It is safe
// for concurrent use.
type memoryRegister struct {
	mu      sync.RWMutex
	objects map[string]map[string]map[string]any
}

// NewMemoryRegister creates a new in-memory object register.
func NewMemoryRegister() Register {
	return &memoryRegister{
		objects: make(map[string]map[string]map[string]any),
	}
}

func (m *memoryRegister) List(_ context.Context, registerID string) ([]map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.sortedIDs(registerID)
	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyObject(m.objects[registerID][id]))
	}
	return out, nil
}

func (m *memoryRegister) IDs(_ context.Context, registerID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedIDs(registerID), nil
}

func (m *memoryRegister) Get(_ context.Context, registerID, objectID string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[registerID][objectID]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return copyObject(obj), nil
}

func (m *memoryRegister) Put(_ context.Context, registerID, objectID string, object map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.objects[registerID] == nil {
		m.objects[registerID] = make(map[string]map[string]any)
	}
	m.objects[registerID][objectID] = copyObject(object)
	return nil
}

func (m *memoryRegister) Delete(_ context.Context, registerID, objectID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.objects[registerID][objectID]; !ok {
		return false, nil
	}
	delete(m.objects[registerID], objectID)
	return true, nil
}

func (m *memoryRegister) sortedIDs(registerID string) []string {
	ids := make([]string, 0, len(m.objects[registerID]))
	for id := range m.objects[registerID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// copyObject shallow-copies nested maps and lists so callers never alias
// stored state.
func copyObject(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyObject(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
