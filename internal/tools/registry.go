// Package tools holds the catalog of operations the model may invoke, each with
// a schema, a risk tier, an execute function and an optional verification.
package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/wrapshot/agent/internal/domain"
)

// Schema is the model-facing description of one tool.
type Schema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Tier        domain.Tier     `json:"tier"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Registry stores tool definitions keyed by tool name.
// It is built once at startup and frozen before serving requests.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Definition
	frozen bool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Definition),
	}
}

// Register adds a new tool definition.
func (r *Registry) Register(def Definition) error {
	if def == nil {
		return fmt.Errorf("tool definition is required")
	}
	name := def.Name()
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if !def.Tier().Valid() {
		return fmt.Errorf("tool %s: invalid tier %q", name, def.Tier())
	}
	if !json.Valid(def.Schema()) {
		return fmt.Errorf("tool %s: schema is not valid JSON", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("registry is frozen, cannot register %s", name)
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}
	r.tools[name] = def
	return nil
}

// MustRegister adds a tool definition or panics.
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// Get is like Lookup but returns an error wrapping domain.ErrUnknownTool.
func (r *Registry) Get(name string) (Definition, error) {
	def, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownTool, name)
	}
	return def, nil
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// DescribeAll returns the schema of every tool, sorted by name.
func (r *Registry) DescribeAll() []Schema {
	names := r.Names()
	out := make([]Schema, 0, len(names))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range names {
		def := r.tools[name]
		out = append(out, Schema{
			Name:        def.Name(),
			Description: def.Description(),
			Tier:        def.Tier(),
			Parameters:  def.Schema(),
		})
	}
	return out
}
