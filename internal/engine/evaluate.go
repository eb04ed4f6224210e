package engine

import (
	"fmt"
	"strings"

	"udesign/pkg/design"
	"udesign/pkg/optics"
)

// evaluate runs every formula of a specification in declaration order against
// the supplied store. It returns the effective inputs (declared parameters
// plus filled optional defaults) and the ordered results.
//
// Evaluation is all or nothing: required keys absent from the store abort
// before any formula executes, and the first formula failure aborts the rest.
func evaluate(spec design.HostSpec, store *design.ParameterStore) (map[string]optics.Quantity, design.ResultSet, error) {
	if missing := spec.MissingKeys(store); len(missing) > 0 {
		return nil, design.ResultSet{}, &design.MissingInputError{Keys: missing}
	}

	params := spec.Parameters()
	inputs := make(map[string]optics.Quantity, len(params))
	for _, p := range params {
		if q, ok := store.Get(p.Name); ok {
			inputs[p.Name] = q
			continue
		}
		inputs[p.Name] = p.DefaultQuantity()
	}

	formulas := spec.Formulas()
	values := make(map[string]optics.Quantity, len(inputs)+len(formulas))
	for name, q := range inputs {
		values[name] = q
	}

	ordered := make([]design.Result, 0, len(formulas))
	for _, f := range formulas {
		// Each formula sees only the values it declared; construction
		// guarantees every declared name resolves by this point.
		deps := make(map[string]optics.Quantity, len(f.DependsOn))
		for _, name := range f.DependsOn {
			deps[name] = values[name]
		}
		args := design.NewArgs(deps)
		q, err := f.Compute(args)
		if miss := args.Missing(); len(miss) > 0 {
			return nil, design.ResultSet{}, &design.FormulaEvaluationError{
				Formula: f.Name,
				Err:     fmt.Errorf("undeclared dependencies: %s", strings.Join(miss, ", ")),
			}
		}
		if err != nil {
			return nil, design.ResultSet{}, &design.FormulaEvaluationError{Formula: f.Name, Err: err}
		}
		q, err = optics.Convert(q, f.Unit)
		if err != nil {
			return nil, design.ResultSet{}, &design.FormulaEvaluationError{Formula: f.Name, Err: err}
		}
		if !q.Finite() {
			return nil, design.ResultSet{}, &design.FormulaEvaluationError{Formula: f.Name, Err: design.ErrNonFinite}
		}
		values[f.Name] = q
		ordered = append(ordered, design.Result{
			Name:     f.Name,
			Title:    f.Title,
			Equation: f.Equation,
			Value:    q,
		})
	}

	return inputs, design.NewResultSet(ordered), nil
}

// checkConstraints sweeps every constraint of the specification in
// declaration order. Constraints are independent: each one runs regardless of
// how many before it reported a violation.
func checkConstraints(spec design.HostSpec, view design.Review) []design.Violation {
	var violations []design.Violation
	for _, c := range spec.Constraints() {
		message, violated := c.Check(view)
		if !violated {
			continue
		}
		violations = append(violations, design.Violation{
			Constraint: c.Name(),
			Message:    message,
		})
	}
	return violations
}
