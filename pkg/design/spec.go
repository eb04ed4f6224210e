package design

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"udesign/pkg/optics"
)

// Spec is the declaration a design package contributes for one microscope
// type: its required inputs, ordered formulas, and constraints. Formula
// declaration order is evaluation order; NewHostSpec validates the ordering
// at construction.
type Spec struct {
	Type        string
	Version     string
	Title       string
	Description string
	Parameters  []ParameterDef
	Formulas    []Formula
	Constraints []Constraint
}

// HostSpec is a validated, host-held design specification. The wrapped
// declaration is cloned at construction and never mutated afterwards.
type HostSpec struct {
	spec Spec
}

// NewHostSpec validates a declaration and wraps it for the engine.
func NewHostSpec(spec Spec) (HostSpec, error) {
	if err := validateSpec(spec); err != nil {
		return HostSpec{}, err
	}
	return HostSpec{spec: cloneSpec(spec)}, nil
}

// Type returns the microscope type identifier.
func (h HostSpec) Type() string { return h.spec.Type }

// Version returns the specification version.
func (h HostSpec) Version() string { return h.spec.Version }

// Title returns the human-readable specification title.
func (h HostSpec) Title() string { return h.spec.Title }

// Description returns the specification description.
func (h HostSpec) Description() string { return h.spec.Description }

// Slug returns the canonical identifier for the specification (type@version).
func (h HostSpec) Slug() string {
	return fmt.Sprintf("%s@%s", h.spec.Type, h.spec.Version)
}

// Parameters returns a defensive copy of the parameter definitions in
// declaration order.
func (h HostSpec) Parameters() []ParameterDef {
	return cloneParameterDefs(h.spec.Parameters)
}

// Formulas returns a defensive copy of the formulas in declaration order.
func (h HostSpec) Formulas() []Formula {
	return cloneFormulas(h.spec.Formulas)
}

// Constraints returns a defensive copy of the constraints in declaration
// order.
func (h HostSpec) Constraints() []Constraint {
	return append([]Constraint(nil), h.spec.Constraints...)
}

// RequiredKeys returns the sorted required parameter keys.
func (h HostSpec) RequiredKeys() []string {
	keys := make([]string, 0, len(h.spec.Parameters))
	for _, p := range h.spec.Parameters {
		if p.Required {
			keys = append(keys, p.Name)
		}
	}
	sort.Strings(keys)
	return keys
}

// MissingKeys returns the sorted required keys absent from the store.
func (h HostSpec) MissingKeys(store *ParameterStore) []string {
	var missing []string
	for _, p := range h.spec.Parameters {
		if p.Required && !store.Has(p.Name) {
			missing = append(missing, p.Name)
		}
	}
	sort.Strings(missing)
	return missing
}

// FormulaDescriptor describes a formula without its computation.
type FormulaDescriptor struct {
	Name      string      `json:"name"`
	Title     string      `json:"title"`
	Equation  string      `json:"equation"`
	DependsOn []string    `json:"depends_on,omitempty"`
	Units     optics.Unit `json:"units"`
}

// SpecDescriptor is the serializable snapshot of a registered specification.
type SpecDescriptor struct {
	Type        string              `json:"type"`
	Version     string              `json:"version"`
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Parameters  []ParameterDef      `json:"parameters"`
	Formulas    []FormulaDescriptor `json:"formulas"`
	Constraints []string            `json:"constraints"`
}

// Descriptor produces a snapshot of the specification for listings and
// self-checks.
func (h HostSpec) Descriptor() SpecDescriptor {
	formulas := make([]FormulaDescriptor, 0, len(h.spec.Formulas))
	for _, f := range h.spec.Formulas {
		formulas = append(formulas, FormulaDescriptor{
			Name:      f.Name,
			Title:     f.Title,
			Equation:  f.Equation,
			DependsOn: append([]string(nil), f.DependsOn...),
			Units:     f.Unit,
		})
	}
	constraints := make([]string, 0, len(h.spec.Constraints))
	for _, c := range h.spec.Constraints {
		constraints = append(constraints, c.Name())
	}
	return SpecDescriptor{
		Type:        h.spec.Type,
		Version:     h.spec.Version,
		Title:       h.spec.Title,
		Description: h.spec.Description,
		Parameters:  cloneParameterDefs(h.spec.Parameters),
		Formulas:    formulas,
		Constraints: constraints,
	}
}

// DefaultInputs returns the flat input document pre-filled with the
// specification defaults, including "<key>.units" sibling entries for
// quantity parameters. JSON encoding of the map is key-sorted and therefore
// byte-stable.
func (h HostSpec) DefaultInputs() map[string]any {
	doc := make(map[string]any, 2*len(h.spec.Parameters))
	for _, p := range h.spec.Parameters {
		doc[p.Name] = p.Default
		if p.Type == ParameterQuantity {
			doc[p.Name+".units"] = p.Unit.String()
		}
	}
	return doc
}

func validateSpec(spec Spec) error {
	if strings.TrimSpace(spec.Type) == "" {
		return errors.New("design: spec type required")
	}
	if strings.TrimSpace(spec.Version) == "" {
		return errors.New("design: spec version required")
	}
	if strings.TrimSpace(spec.Title) == "" {
		return errors.New("design: spec title required")
	}
	if len(spec.Parameters) == 0 {
		return fmt.Errorf("design: spec %s declares no parameters", spec.Type)
	}
	if len(spec.Formulas) == 0 {
		return fmt.Errorf("design: spec %s declares no formulas", spec.Type)
	}
	params := make(map[string]struct{}, len(spec.Parameters))
	for _, p := range spec.Parameters {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("design: spec %s has a parameter with no name", spec.Type)
		}
		if _, dup := params[p.Name]; dup {
			return fmt.Errorf("design: duplicate parameter %s", p.Name)
		}
		switch p.Type {
		case ParameterQuantity:
			if p.Unit.Dimension().IsScalar() {
				return fmt.Errorf("design: parameter %s needs a physical unit", p.Name)
			}
		case ParameterNumber, ParameterInteger:
			if !p.Unit.Dimension().IsScalar() {
				return fmt.Errorf("design: parameter %s must be dimensionless", p.Name)
			}
		default:
			return fmt.Errorf("design: parameter %s has unsupported type %q", p.Name, p.Type)
		}
		params[p.Name] = struct{}{}
	}
	known := make(map[string]struct{}, len(params)+len(spec.Formulas))
	for name := range params {
		known[name] = struct{}{}
	}
	for _, f := range spec.Formulas {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("design: spec %s has a formula with no name", spec.Type)
		}
		if _, isParam := params[f.Name]; isParam {
			return fmt.Errorf("design: formula %s collides with a parameter key", f.Name)
		}
		if _, dup := known[f.Name]; dup {
			return fmt.Errorf("design: duplicate formula %s", f.Name)
		}
		if strings.TrimSpace(f.Title) == "" {
			return fmt.Errorf("design: formula %s missing title", f.Name)
		}
		if strings.TrimSpace(f.Equation) == "" {
			return fmt.Errorf("design: formula %s missing equation label", f.Name)
		}
		if f.Compute == nil {
			return fmt.Errorf("design: formula %s missing compute function", f.Name)
		}
		for _, dep := range f.DependsOn {
			if _, ok := known[dep]; !ok {
				return fmt.Errorf("design: formula %s depends on unknown or later value %q", f.Name, dep)
			}
		}
		known[f.Name] = struct{}{}
	}
	constraints := make(map[string]struct{}, len(spec.Constraints))
	for i, c := range spec.Constraints {
		if c == nil {
			return fmt.Errorf("design: spec %s constraint %d is nil", spec.Type, i)
		}
		name := c.Name()
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("design: spec %s constraint %d has no name", spec.Type, i)
		}
		if _, dup := constraints[name]; dup {
			return fmt.Errorf("design: duplicate constraint %s", name)
		}
		constraints[name] = struct{}{}
	}
	return nil
}

func cloneSpec(spec Spec) Spec {
	cloned := spec
	cloned.Parameters = cloneParameterDefs(spec.Parameters)
	cloned.Formulas = cloneFormulas(spec.Formulas)
	cloned.Constraints = append([]Constraint(nil), spec.Constraints...)
	return cloned
}

func cloneParameterDefs(defs []ParameterDef) []ParameterDef {
	if len(defs) == 0 {
		return nil
	}
	cloned := make([]ParameterDef, len(defs))
	copy(cloned, defs)
	return cloned
}

func cloneFormulas(formulas []Formula) []Formula {
	if len(formulas) == 0 {
		return nil
	}
	cloned := make([]Formula, len(formulas))
	copy(cloned, formulas)
	for i := range cloned {
		cloned[i].DependsOn = append([]string(nil), formulas[i].DependsOn...)
	}
	return cloned
}
