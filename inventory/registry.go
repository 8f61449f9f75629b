package inventory

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ErrSealed is returned when a sealed registry is written to.
var ErrSealed = errors.New("inventory: registry is sealed")

// Kind names the definition kind a registry holds.
type Kind string

const (
	KindMethod Kind = "method"
	KindTool   Kind = "tool"
)

// NotFoundError reports a lookup of a name that is not registered.
type NotFoundError struct {
	Kind Kind
	Name string
}

func (e *NotFoundError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("inventory: %s %q not found", e.Kind, e.Name)
}

// DuplicateError reports a second registration of the same name.
type DuplicateError struct {
	Kind Kind
	Name string
}

func (e *DuplicateError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("inventory: %s %q already registered", e.Kind, e.Name)
}

// Definition is implemented by MethodDefinition and ToolDefinition.
type Definition interface {
	MethodDefinition | ToolDefinition
	DefinitionName() string
	DefinitionTags() []string
}

// Registry is a name-keyed collection of definitions. It is written during
// bootstrap and read-only once sealed.
type Registry[T Definition] struct {
	kind  Kind
	clone func(T) T

	mu     sync.RWMutex
	items  map[string]T
	sealed bool
}

// MethodRegistry holds method definitions.
type MethodRegistry = Registry[MethodDefinition]

// ToolRegistry holds tool definitions.
type ToolRegistry = Registry[ToolDefinition]

// NewMethodRegistry returns an empty method registry.
func NewMethodRegistry() *MethodRegistry {
	return &Registry[MethodDefinition]{
		kind:  KindMethod,
		clone: MethodDefinition.Clone,
		items: make(map[string]MethodDefinition),
	}
}

// NewToolRegistry returns an empty tool registry.
func NewToolRegistry() *ToolRegistry {
	return &Registry[ToolDefinition]{
		kind:  KindTool,
		clone: ToolDefinition.Clone,
		items: make(map[string]ToolDefinition),
	}
}

// Kind returns the definition kind held by the registry.
func (r *Registry[T]) Kind() Kind { return r.kind }

// Register inserts a definition. A second registration of the same name is
// a *DuplicateError.
func (r *Registry[T]) Register(def T) error {
	name := strings.TrimSpace(def.DefinitionName())
	if name == "" {
		return fmt.Errorf("inventory: %s name is required", r.kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ErrSealed
	}
	if _, exists := r.items[name]; exists {
		return &DuplicateError{Kind: r.kind, Name: name}
	}
	r.items[name] = r.clone(def)
	return nil
}

// Replace inserts or overwrites a definition by name and reports whether an
// earlier definition was replaced.
func (r *Registry[T]) Replace(def T) (bool, error) {
	name := strings.TrimSpace(def.DefinitionName())
	if name == "" {
		return false, fmt.Errorf("inventory: %s name is required", r.kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return false, ErrSealed
	}
	_, existed := r.items[name]
	r.items[name] = r.clone(def)
	return existed, nil
}

// Seal makes the registry read-only.
func (r *Registry[T]) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal has been called.
func (r *Registry[T]) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Get returns the named definition or a *NotFoundError.
func (r *Registry[T]) Get(name string) (T, error) {
	r.mu.RLock()
	def, ok := r.items[name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, &NotFoundError{Kind: r.kind, Name: name}
	}
	return r.clone(def), nil
}

// Has reports whether the name is registered.
func (r *Registry[T]) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.items[name]
	return ok
}

// All returns every definition sorted by name.
func (r *Registry[T]) All() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, 0, len(r.items))
	for _, name := range r.sortedNamesLocked() {
		out = append(out, r.clone(r.items[name]))
	}
	return out
}

// ByTag returns definitions carrying the classification tag, sorted by name.
func (r *Registry[T]) ByTag(tag string) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, 0)
	for _, name := range r.sortedNamesLocked() {
		def := r.items[name]
		if slices.Contains(def.DefinitionTags(), tag) {
			out = append(out, r.clone(def))
		}
	}
	return out
}

// Names returns the registered names in sorted order.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedNamesLocked()
}

// Len returns the number of registered definitions.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

func (r *Registry[T]) sortedNamesLocked() []string {
	names := make([]string, 0, len(r.items))
	for name := range r.items {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
