package optics

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
)

func TestAddSameUnit(t *testing.T) {
	sum, err := Add(NewQuantity(1.5, Millimeter), NewQuantity(0.5, Millimeter))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if sum.Magnitude != 2 || sum.Unit != Millimeter {
		t.Fatalf("unexpected sum %+v", sum)
	}
}

func TestAddRejectsDifferentTags(t *testing.T) {
	_, err := Add(NewQuantity(1, Millimeter), NewQuantity(1, Micrometer))
	var incompatible *IncompatibleUnitsError
	if !errors.As(err, &incompatible) {
		t.Fatalf("expected IncompatibleUnitsError, got %v", err)
	}
	msg := incompatible.Error()
	if !strings.Contains(msg, "mm") || !strings.Contains(msg, "um") {
		t.Fatalf("error should identify both operand units: %q", msg)
	}
}

func TestAddRejectsDifferentDimensions(t *testing.T) {
	if _, err := Add(NewQuantity(1, Millimeter), NewQuantity(1, Milliradian)); err == nil {
		t.Fatalf("expected error adding length and angle")
	}
	if _, err := Sub(Scalar(1), NewQuantity(1, Nanometer)); err == nil {
		t.Fatalf("expected error subtracting length from scalar")
	}
}

func TestConvertExplicitLossless(t *testing.T) {
	q, err := Convert(NewQuantity(1.5, Millimeter), Micrometer)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if q.Unit != Micrometer || math.Abs(q.Magnitude-1500) > 1e-9 {
		t.Fatalf("unexpected conversion %+v", q)
	}
	back, err := Convert(q, Millimeter)
	if err != nil {
		t.Fatalf("convert back: %v", err)
	}
	if math.Abs(back.Magnitude-1.5) > 1e-12 {
		t.Fatalf("round trip drifted: %v", back.Magnitude)
	}
}

func TestConvertRejectsDimensionMismatch(t *testing.T) {
	_, err := Convert(NewQuantity(1, Millimeter), Milliradian)
	var incompatible *IncompatibleUnitsError
	if !errors.As(err, &incompatible) {
		t.Fatalf("expected IncompatibleUnitsError, got %v", err)
	}
	if !strings.Contains(incompatible.Error(), "convert") {
		t.Fatalf("unexpected message %q", incompatible.Error())
	}
}

func TestMulDivDimensionAlgebra(t *testing.T) {
	length := NewQuantity(2, Millimeter)
	ratio := Div(NewQuantity(50, Micrometer), NewQuantity(2, Micrometer))
	if ratio.Unit != None || math.Abs(ratio.Magnitude-25) > 1e-12 {
		t.Fatalf("length/length should be a scalar, got %+v", ratio)
	}
	scaled := Mul(length, Scalar(3))
	if scaled.Unit != Meter || math.Abs(scaled.Magnitude-6e-3) > 1e-15 {
		t.Fatalf("length*scalar should stay length in metres, got %+v", scaled)
	}
	area := Mul(length, length)
	if area.Unit.String() != "m^2" || math.Abs(area.Magnitude-4e-6) > 1e-18 {
		t.Fatalf("length*length should be area, got %+v", area)
	}
	back := Div(area, length)
	if back.Unit != Meter || math.Abs(back.Magnitude-2e-3) > 1e-15 {
		t.Fatalf("area/length should be length, got %+v", back)
	}
}

func TestDivByZeroIsNotFinite(t *testing.T) {
	q := Div(NewQuantity(1, Millimeter), NewQuantity(0, Millimeter))
	if q.Finite() {
		t.Fatalf("expected non-finite result, got %+v", q)
	}
}

func TestTan(t *testing.T) {
	q, err := Tan(NewQuantity(100, Milliradian))
	if err != nil {
		t.Fatalf("tan: %v", err)
	}
	if q.Unit != None || math.Abs(q.Magnitude-math.Tan(0.1)) > 1e-15 {
		t.Fatalf("unexpected tangent %+v", q)
	}
	if _, err := Tan(NewQuantity(1, Millimeter)); err == nil {
		t.Fatalf("expected error for tangent of a length")
	}
}

func TestScaleAndAbs(t *testing.T) {
	q := Scale(NewQuantity(-3, Micrometer), 2)
	if q.Magnitude != -6 || q.Unit != Micrometer {
		t.Fatalf("unexpected scale %+v", q)
	}
	if a := Abs(q); a.Magnitude != 6 || a.Unit != Micrometer {
		t.Fatalf("unexpected abs %+v", a)
	}
}

func TestQuantityJSONRoundTrip(t *testing.T) {
	q := NewQuantity(5.86, Micrometer)
	data, err := json.Marshal(q)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"magnitude":5.86,"units":"um"}` {
		t.Fatalf("unexpected encoding %s", data)
	}
	var back Quantity
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != q {
		t.Fatalf("round trip mismatch: %+v vs %+v", back, q)
	}
}

func TestSINormalization(t *testing.T) {
	if si := NewQuantity(100, Millimeter).SI(); math.Abs(si-0.1) > 1e-15 {
		t.Fatalf("unexpected SI value %v", si)
	}
	if si := Scalar(40).SI(); si != 40 {
		t.Fatalf("scalar SI should be the magnitude, got %v", si)
	}
}
