// Package optics provides unit-tagged physical quantities and the checked
// arithmetic design formulas are written in.
package optics

import (
	"fmt"
	"strings"
)

// Dimension captures the base-dimension exponents a unit is built from.
// Length and angle are the only base dimensions the supported microscope
// designs need.
type Dimension struct {
	Length int
	Angle  int
}

// IsScalar reports whether the dimension is the dimensionless one.
func (d Dimension) IsScalar() bool { return d.Length == 0 && d.Angle == 0 }

// String renders the dimension for error messages, e.g. "length",
// "length^2", "dimensionless".
func (d Dimension) String() string {
	if d.IsScalar() {
		return "dimensionless"
	}
	return composeSymbol("length", "angle", d)
}

func (d Dimension) add(o Dimension) Dimension {
	return Dimension{Length: d.Length + o.Length, Angle: d.Angle + o.Angle}
}

func (d Dimension) sub(o Dimension) Dimension {
	return Dimension{Length: d.Length - o.Length, Angle: d.Angle - o.Angle}
}

// Unit tags a magnitude with its physical meaning. The named set below is
// closed; multiplication and division may produce derived units (for example
// length squared) which carry SI scale and a synthesized symbol and never
// appear in parameter files.
type Unit struct {
	symbol string
	dim    Dimension
	scale  float64
}

// None tags dimensionless quantities such as magnifications and ratios. It is
// the zero Unit.
var None = Unit{}

// Named units recognised in parameter files and design declarations.
var (
	Meter       = Unit{symbol: "m", dim: Dimension{Length: 1}, scale: 1}
	Millimeter  = Unit{symbol: "mm", dim: Dimension{Length: 1}, scale: 1e-3}
	Micrometer  = Unit{symbol: "um", dim: Dimension{Length: 1}, scale: 1e-6}
	Nanometer   = Unit{symbol: "nm", dim: Dimension{Length: 1}, scale: 1e-9}
	Radian      = Unit{symbol: "rad", dim: Dimension{Angle: 1}, scale: 1}
	Milliradian = Unit{symbol: "mrad", dim: Dimension{Angle: 1}, scale: 1e-3}
)

var namedUnits = map[string]Unit{
	"":     None,
	"m":    Meter,
	"mm":   Millimeter,
	"um":   Micrometer,
	"µm":   Micrometer,
	"nm":   Nanometer,
	"rad":  Radian,
	"mrad": Milliradian,
}

// ParseUnit maps a symbol from a parameter file to its named unit. The alias
// "µm" is accepted for micrometres. Parsing is restricted to the named set.
func ParseUnit(s string) (Unit, error) {
	if u, ok := namedUnits[strings.TrimSpace(s)]; ok {
		return u, nil
	}
	return Unit{}, fmt.Errorf("unknown unit %q", s)
}

// String returns the unit symbol; the dimensionless unit renders as the empty
// string.
func (u Unit) String() string { return u.symbol }

// Dimension returns the unit's base-dimension exponents.
func (u Unit) Dimension() Dimension { return u.dim }

// MarshalText renders the unit symbol for JSON and text encodings.
func (u Unit) MarshalText() ([]byte, error) { return []byte(u.symbol), nil }

// UnmarshalText parses a named unit symbol.
func (u *Unit) UnmarshalText(text []byte) error {
	parsed, err := ParseUnit(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// factor is the multiplier converting a magnitude in this unit to SI base
// units. The zero Unit (dimensionless) scales by one.
func (u Unit) factor() float64 {
	if u.scale == 0 {
		return 1
	}
	return u.scale
}

// canonical returns the SI base unit for a dimension. Derived dimensions get
// a synthesized symbol such as "m^2".
func canonical(dim Dimension) Unit {
	switch dim {
	case Dimension{}:
		return None
	case Dimension{Length: 1}:
		return Meter
	case Dimension{Angle: 1}:
		return Radian
	}
	return Unit{symbol: composeSymbol("m", "rad", dim), dim: dim, scale: 1}
}

func composeSymbol(length, angle string, dim Dimension) string {
	var num, den []string
	part := func(sym string, exp int) {
		switch {
		case exp == 1:
			num = append(num, sym)
		case exp > 1:
			num = append(num, fmt.Sprintf("%s^%d", sym, exp))
		case exp == -1:
			den = append(den, sym)
		case exp < -1:
			den = append(den, fmt.Sprintf("%s^%d", sym, -exp))
		}
	}
	part(length, dim.Length)
	part(angle, dim.Angle)
	switch {
	case len(num) == 0 && len(den) == 0:
		return ""
	case len(den) == 0:
		return strings.Join(num, "*")
	case len(num) == 0:
		return "1/" + strings.Join(den, "/")
	default:
		return strings.Join(num, "*") + "/" + strings.Join(den, "/")
	}
}

func displayUnit(u Unit) string {
	if u.symbol == "" {
		return "dimensionless"
	}
	return u.symbol
}
