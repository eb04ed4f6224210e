// Package engine hosts validated design specifications and runs them: it
// resolves a microscope type, evaluates the type's formulas against a
// parameter store, checks constraints, and archives the outcome.
package engine

import (
	"fmt"
	"sort"

	"udesign/pkg/design"
)

// Plugin describes a design package that contributes one or more microscope
// specifications to the engine.
type Plugin interface {
	Name() string
	Version() string
	Register(registry *Registry) error
}

// Registry accumulates specification contributions during plugin
// registration.
type Registry struct {
	specs map[string]design.HostSpec
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]design.HostSpec)}
}

// RegisterSpec validates a declaration and stores it under its microscope
// type. Registering a second specification for the same type fails.
func (r *Registry) RegisterSpec(spec design.Spec) error {
	host, err := design.NewHostSpec(spec)
	if err != nil {
		return err
	}
	if _, exists := r.specs[host.Type()]; exists {
		return fmt.Errorf("microscope type %s already registered", host.Type())
	}
	r.specs[host.Type()] = host
	return nil
}

// Spec returns the validated specification for a microscope type.
func (r *Registry) Spec(microscopeType string) (design.HostSpec, bool) {
	host, ok := r.specs[microscopeType]
	return host, ok
}

// Types returns the registered microscope type identifiers in sorted order.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.specs))
	for t := range r.specs {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Descriptors returns specification snapshots sorted by microscope type.
func (r *Registry) Descriptors() []design.SpecDescriptor {
	out := make([]design.SpecDescriptor, 0, len(r.specs))
	for _, host := range r.specs {
		out = append(out, host.Descriptor())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// PluginMetadata stores metadata describing an installed design plugin.
type PluginMetadata struct {
	Name    string
	Version string
	Types   []string
}
