package design

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNonFinite marks a formula result that is NaN or infinite, typically the
// outcome of a division by zero somewhere in the dependency chain.
var ErrNonFinite = errors.New("result is not a finite number")

// MissingInputError reports every required parameter key absent from a run's
// parameter store, collected eagerly before any formula executes.
type MissingInputError struct {
	Keys []string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("missing required inputs: %s", strings.Join(e.Keys, ", "))
}

// FormulaEvaluationError reports a formula whose pure computation failed, for
// example by producing a non-finite value.
type FormulaEvaluationError struct {
	Formula string
	Err     error
}

func (e *FormulaEvaluationError) Error() string {
	return fmt.Sprintf("formula %s: %v", e.Formula, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *FormulaEvaluationError) Unwrap() error { return e.Err }

// UnknownMicroscopeTypeError reports a run against an unregistered microscope
// type identifier.
type UnknownMicroscopeTypeError struct {
	Type string
}

func (e *UnknownMicroscopeTypeError) Error() string {
	return fmt.Sprintf("unknown microscope type %q", e.Type)
}
