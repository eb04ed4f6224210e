package optics

import (
	"encoding/json"
	"fmt"
	"math"
)

// Quantity is an immutable magnitude tagged with a unit. All operations
// return new values; two quantities combine only when the unit algebra
// defines the pairing.
type Quantity struct {
	Magnitude float64
	Unit      Unit
}

// NewQuantity returns mag tagged with unit.
func NewQuantity(mag float64, unit Unit) Quantity {
	return Quantity{Magnitude: mag, Unit: unit}
}

// Scalar returns a dimensionless quantity.
func Scalar(mag float64) Quantity {
	return Quantity{Magnitude: mag}
}

// SI returns the magnitude expressed in SI base units (metres, radians).
func (q Quantity) SI() float64 { return q.Magnitude * q.Unit.factor() }

// Finite reports whether the magnitude is neither NaN nor infinite.
func (q Quantity) Finite() bool {
	return !math.IsNaN(q.Magnitude) && !math.IsInf(q.Magnitude, 0)
}

// IncompatibleUnitsError reports a unit-algebra violation, identifying both
// operand units.
type IncompatibleUnitsError struct {
	Op    string
	Left  Unit
	Right Unit
}

func (e *IncompatibleUnitsError) Error() string {
	if e.Op == "convert" {
		return fmt.Sprintf("incompatible units: cannot convert %s to %s", displayUnit(e.Left), displayUnit(e.Right))
	}
	return fmt.Sprintf("incompatible units: cannot %s %s and %s", e.Op, displayUnit(e.Left), displayUnit(e.Right))
}

// Add returns a+b. Both operands must carry the same unit tag; converting
// between compatible tags is always explicit, never implicit.
func Add(a, b Quantity) (Quantity, error) {
	if a.Unit != b.Unit {
		return Quantity{}, &IncompatibleUnitsError{Op: "add", Left: a.Unit, Right: b.Unit}
	}
	return Quantity{Magnitude: a.Magnitude + b.Magnitude, Unit: a.Unit}, nil
}

// Sub returns a-b under the same pairing rule as Add.
func Sub(a, b Quantity) (Quantity, error) {
	if a.Unit != b.Unit {
		return Quantity{}, &IncompatibleUnitsError{Op: "subtract", Left: a.Unit, Right: b.Unit}
	}
	return Quantity{Magnitude: a.Magnitude - b.Magnitude, Unit: a.Unit}, nil
}

// Mul returns a*b expressed in the SI-canonical unit of the combined
// dimension.
func Mul(a, b Quantity) Quantity {
	return Quantity{Magnitude: a.SI() * b.SI(), Unit: canonical(a.Unit.dim.add(b.Unit.dim))}
}

// Div returns a/b expressed in the SI-canonical unit of the combined
// dimension. Division by zero yields a non-finite magnitude, which evaluation
// rejects.
func Div(a, b Quantity) Quantity {
	return Quantity{Magnitude: a.SI() / b.SI(), Unit: canonical(a.Unit.dim.sub(b.Unit.dim))}
}

// Scale multiplies the magnitude by a bare factor, keeping the unit.
func Scale(q Quantity, k float64) Quantity {
	return Quantity{Magnitude: q.Magnitude * k, Unit: q.Unit}
}

// Abs returns the quantity with a non-negative magnitude.
func Abs(q Quantity) Quantity {
	return Quantity{Magnitude: math.Abs(q.Magnitude), Unit: q.Unit}
}

// Convert expresses q in the unit to. The units must share a dimension; the
// conversion is exact up to float64 rounding.
func Convert(q Quantity, to Unit) (Quantity, error) {
	if q.Unit.dim != to.dim {
		return Quantity{}, &IncompatibleUnitsError{Op: "convert", Left: q.Unit, Right: to}
	}
	if q.Unit == to {
		return q, nil
	}
	return Quantity{Magnitude: q.SI() / to.factor(), Unit: to}, nil
}

// Tan returns the tangent of an angle as a dimensionless quantity.
func Tan(q Quantity) (Quantity, error) {
	if q.Unit.dim != (Dimension{Angle: 1}) {
		return Quantity{}, &IncompatibleUnitsError{Op: "tan", Left: q.Unit, Right: Radian}
	}
	return Scalar(math.Tan(q.SI())), nil
}

type quantityJSON struct {
	Magnitude float64 `json:"magnitude"`
	Units     Unit    `json:"units"`
}

// MarshalJSON encodes the quantity as {"magnitude": .., "units": ".."}.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(quantityJSON{Magnitude: q.Magnitude, Units: q.Unit})
}

// UnmarshalJSON decodes the wire form produced by MarshalJSON.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	var raw quantityJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	q.Magnitude = raw.Magnitude
	q.Unit = raw.Units
	return nil
}
