package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"whisprd/pkg/types"
)

// Registry is the static, read-only mapping from model id to descriptor.
type Registry struct {
	models []types.Model
	byID   map[string]types.Model
}

// New builds a registry from a descriptor list. Later entries win on
// duplicate ids so an override file can shadow built-ins.
func New(models []types.Model) *Registry {
	r := &Registry{byID: make(map[string]types.Model, len(models))}
	for _, m := range models {
		if _, dup := r.byID[m.ID]; dup {
			for i := range r.models {
				if r.models[i].ID == m.ID {
					r.models[i] = m
					break
				}
			}
		} else {
			r.models = append(r.models, m)
		}
		r.byID[m.ID] = m
	}
	return r
}

// Default returns the built-in registry.
func Default() *Registry { return New(builtinModels()) }

// LoadFile returns the built-in registry extended (and shadowed) by the
// descriptors in a YAML file.
func LoadFile(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	var doc struct {
		Models []types.Model `yaml:"models"`
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	return New(append(builtinModels(), doc.Models...)), nil
}

// Lookup returns the descriptor for id.
func (r *Registry) Lookup(id string) (types.Model, bool) {
	m, ok := r.byID[id]
	return m, ok
}

// List returns a copy of all descriptors in registration order.
func (r *Registry) List() []types.Model {
	out := make([]types.Model, len(r.models))
	copy(out, r.models)
	return out
}
