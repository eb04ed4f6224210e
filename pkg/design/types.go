// Package design defines the declaration API shared by the evaluation engine
// and the built-in microscope design packages: parameter definitions,
// formulas, constraints, and the value types a run produces.
package design

import (
	"encoding/json"
	"fmt"

	"udesign/pkg/optics"
)

// ParameterType enumerates the value kinds a design parameter accepts.
type ParameterType string

// Supported parameter types in input documents.
const (
	// ParameterQuantity is a magnitude with an optional "<key>.units" sibling
	// entry in input files.
	ParameterQuantity ParameterType = "quantity"
	// ParameterNumber is a bare dimensionless value such as a magnification.
	ParameterNumber ParameterType = "number"
	// ParameterInteger is a whole dimensionless value such as a pixel count.
	ParameterInteger ParameterType = "integer"
)

// ParameterDef declares one input of a design specification: its dotted key,
// value kind, display unit, and the default used for input templates.
type ParameterDef struct {
	Name        string        `json:"name"`
	Type        ParameterType `json:"type"`
	Unit        optics.Unit   `json:"units"`
	Description string        `json:"description,omitempty"`
	Default     float64       `json:"default"`
	Required    bool          `json:"required"`
}

// DefaultQuantity returns the template default in the declared unit, or as a
// bare scalar for number and integer parameters.
func (p ParameterDef) DefaultQuantity() optics.Quantity {
	if p.Type == ParameterQuantity {
		return optics.NewQuantity(p.Default, p.Unit)
	}
	return optics.Scalar(p.Default)
}

// Args resolves a formula's declared dependencies. Values come from the
// parameter store for raw inputs and from earlier formulas for derived ones.
type Args struct {
	values  map[string]optics.Quantity
	missing []string
}

// NewArgs wraps resolved dependency values for one formula invocation.
func NewArgs(values map[string]optics.Quantity) *Args {
	return &Args{values: values}
}

// Value returns the resolved dependency by name. Asking for a name the
// formula did not declare records the miss, which the evaluator reports after
// compute returns.
func (a *Args) Value(name string) optics.Quantity {
	if q, ok := a.values[name]; ok {
		return q
	}
	a.missing = append(a.missing, name)
	return optics.Quantity{}
}

// Missing lists the undeclared dependency names requested through Value.
func (a *Args) Missing() []string {
	if len(a.missing) == 0 {
		return nil
	}
	return append([]string(nil), a.missing...)
}

// Formula declares one derived quantity: its identifier, rendering metadata,
// dependencies, declared output unit, and the pure computation.
type Formula struct {
	Name      string
	Title     string
	Equation  string
	DependsOn []string
	Unit      optics.Unit
	Compute   func(*Args) (optics.Quantity, error)
}

// Result is the materialized output of one formula for one run.
type Result struct {
	Name     string
	Title    string
	Equation string
	Value    optics.Quantity
}

type resultJSON struct {
	Name     string      `json:"name"`
	Title    string      `json:"title"`
	Equation string      `json:"equation"`
	Value    float64     `json:"value"`
	Units    optics.Unit `json:"units"`
}

// MarshalJSON flattens the value into {"name","title","equation","value","units"}.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		Name:     r.Name,
		Title:    r.Title,
		Equation: r.Equation,
		Value:    r.Value.Magnitude,
		Units:    r.Value.Unit,
	})
}

// UnmarshalJSON decodes the wire form produced by MarshalJSON.
func (r *Result) UnmarshalJSON(data []byte) error {
	var raw resultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Name = raw.Name
	r.Title = raw.Title
	r.Equation = raw.Equation
	r.Value = optics.NewQuantity(raw.Value, raw.Units)
	return nil
}

// ResultSet holds one run's results in formula declaration order and resolves
// lookups by name.
type ResultSet struct {
	ordered []Result
	index   map[string]int
}

// NewResultSet builds a result set preserving the given order.
func NewResultSet(results []Result) ResultSet {
	ordered := append([]Result(nil), results...)
	index := make(map[string]int, len(ordered))
	for i, r := range ordered {
		index[r.Name] = i
	}
	return ResultSet{ordered: ordered, index: index}
}

// Len returns the number of results.
func (s ResultSet) Len() int { return len(s.ordered) }

// Ordered returns the results in declaration order as a defensive copy.
func (s ResultSet) Ordered() []Result {
	return append([]Result(nil), s.ordered...)
}

// Lookup returns the named result.
func (s ResultSet) Lookup(name string) (Result, bool) {
	i, ok := s.index[name]
	if !ok {
		return Result{}, false
	}
	return s.ordered[i], true
}

// MarshalJSON encodes the results as an ordered array.
func (s ResultSet) MarshalJSON() ([]byte, error) {
	if s.ordered == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.ordered)
}

// UnmarshalJSON decodes an ordered array and rebuilds the name index.
func (s *ResultSet) UnmarshalJSON(data []byte) error {
	var ordered []Result
	if err := json.Unmarshal(data, &ordered); err != nil {
		return err
	}
	*s = NewResultSet(ordered)
	return nil
}

// Violation reports one failed constraint check. Violations are ordinary run
// output, not errors; evaluation never aborts because of them.
type Violation struct {
	Constraint string `json:"constraint"`
	Message    string `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Constraint, v.Message)
}

// Review gives constraints read-only access to the inputs and results of a
// completed evaluation.
type Review struct {
	inputs  *ParameterStore
	results ResultSet
}

// NewReview pairs a run's inputs with its completed results for constraint
// checking.
func NewReview(inputs *ParameterStore, results ResultSet) Review {
	return Review{inputs: inputs, results: results}
}

// Input returns the named parameter, or the zero Quantity when absent.
func (r Review) Input(key string) optics.Quantity {
	q, _ := r.inputs.Get(key)
	return q
}

// Result returns the named result value, or the zero Quantity when absent.
func (r Review) Result(name string) optics.Quantity {
	res, ok := r.results.Lookup(name)
	if !ok {
		return optics.Quantity{}
	}
	return res.Value
}

// Constraint checks one engineering limit against a completed evaluation.
// Implementations are stateless and free of side effects; Check returns the
// violation message and true when the limit is breached.
type Constraint interface {
	Name() string
	Check(view Review) (string, bool)
}
