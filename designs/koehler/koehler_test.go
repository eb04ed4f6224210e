package koehler

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"udesign/internal/engine"
	"udesign/pkg/design"
	"udesign/pkg/optics"
)

func newService(t *testing.T) *engine.Service {
	t.Helper()
	svc := engine.NewService()
	if _, err := svc.Install(New()); err != nil {
		t.Fatalf("install: %v", err)
	}
	return svc
}

func defaultStore(t *testing.T) *design.ParameterStore {
	t.Helper()
	host, err := design.NewHostSpec(Spec())
	if err != nil {
		t.Fatalf("host spec: %v", err)
	}
	values, errs := host.ParseParameters(host.DefaultInputs())
	if len(errs) != 0 {
		t.Fatalf("default inputs rejected: %v", errs)
	}
	return design.NewParameterStore(values)
}

func approx(t *testing.T, results design.ResultSet, name string, want float64, unit optics.Unit) {
	t.Helper()
	res, ok := results.Lookup(name)
	if !ok {
		t.Fatalf("result %s missing", name)
	}
	if res.Value.Unit != unit {
		t.Fatalf("%s unit = %s, want %s", name, res.Value.Unit, unit)
	}
	tolerance := 1e-6 * math.Max(1, math.Abs(want))
	if math.Abs(res.Value.Magnitude-want) > tolerance {
		t.Fatalf("%s = %v, want %v", name, res.Value.Magnitude, want)
	}
}

func TestSpecIsValid(t *testing.T) {
	host, err := design.NewHostSpec(Spec())
	if err != nil {
		t.Fatalf("spec invalid: %v", err)
	}
	descriptor := host.Descriptor()
	if descriptor.Type != "koehler" {
		t.Fatalf("type = %s", descriptor.Type)
	}
	if len(descriptor.Parameters) != 11 {
		t.Fatalf("parameters = %d", len(descriptor.Parameters))
	}
	if len(descriptor.Formulas) != 7 {
		t.Fatalf("formulas = %d", len(descriptor.Formulas))
	}
	if len(descriptor.Constraints) != 3 {
		t.Fatalf("constraints = %d", len(descriptor.Constraints))
	}
	for _, f := range descriptor.Formulas {
		if !strings.Contains(f.Equation, `\(`) {
			t.Fatalf("formula %s has no equation label", f.Name)
		}
	}
}

func TestDefaultDesign(t *testing.T) {
	svc := newService(t)

	record, err := svc.Run(context.Background(), "koehler", defaultStore(t))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	wantOrder := []string{
		"flat_field_size",
		"flat_field_size_sample_plane",
		"beam_radius_mla",
		"excitation_spot_size",
		"excitation_spot_size_sample_plane",
		"homogeneity",
		"fresnel_number",
	}
	ordered := record.Results.Ordered()
	if len(ordered) != len(wantOrder) {
		t.Fatalf("results = %d, want %d", len(ordered), len(wantOrder))
	}
	for i, name := range wantOrder {
		if ordered[i].Name != name {
			t.Fatalf("result %d = %s, want %s", i, ordered[i].Name, name)
		}
	}

	results := record.Results
	approx(t, results, "flat_field_size", 18.8284518828, optics.Millimeter)
	approx(t, results, "flat_field_size_sample_plane", 162.3142403694, optics.Micrometer)
	approx(t, results, "beam_radius_mla", 7.0200803251, optics.Millimeter)
	approx(t, results, "excitation_spot_size", 41.4737349590, optics.Micrometer)
	approx(t, results, "excitation_spot_size_sample_plane", 0.3575321979, optics.Micrometer)
	approx(t, results, "homogeneity", 23.4002677504, optics.None)
	approx(t, results, "fresnel_number", 9.6457233006, optics.None)

	// The stock defaults image the 1 mm source onto a 319 um spot, more
	// than one lenslet pitch away from its own centre.
	if len(record.Violations) != 1 {
		t.Fatalf("violations = %v", record.Violations)
	}
	v := record.Violations[0]
	if v.Constraint != "crosstalk" {
		t.Fatalf("violation = %s", v.Constraint)
	}
	want := "Crosstalk (318.6666666666667 um) should be less than or equal to 150 um for good homogeneity."
	if v.Message != want {
		t.Fatalf("message = %q, want %q", v.Message, want)
	}
}

func TestNarrowerSourceClearsCrosstalk(t *testing.T) {
	svc := newService(t)

	host, _ := svc.Spec("koehler")
	doc := host.DefaultInputs()
	doc["source.radius"] = 0.4
	values, errs := host.ParseParameters(doc)
	if len(errs) != 0 {
		t.Fatalf("parse: %v", errs)
	}

	record, err := svc.Run(context.Background(), "koehler", design.NewParameterStore(values))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(record.Violations) != 0 {
		t.Fatalf("violations = %v", record.Violations)
	}
	approx(t, record.Results, "homogeneity", 21.4002677504, optics.None)
}

func TestConstraintSweepReportsAllViolations(t *testing.T) {
	svc := newService(t)

	host, _ := svc.Spec("koehler")
	doc := host.DefaultInputs()
	// Longer lenslets drop the Fresnel number below five and push the
	// source image past half a pitch at the same time.
	doc["mla.focal_length"] = 10.0
	values, errs := host.ParseParameters(doc)
	if len(errs) != 0 {
		t.Fatalf("parse: %v", errs)
	}

	record, err := svc.Run(context.Background(), "koehler", design.NewParameterStore(values))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(record.Violations) != 2 {
		t.Fatalf("violations = %v", record.Violations)
	}
	if record.Violations[0].Constraint != "fresnel_number_minimum" {
		t.Fatalf("first violation = %s", record.Violations[0].Constraint)
	}
	if !strings.Contains(record.Violations[0].Message, "should be greater than or equal to 5") {
		t.Fatalf("message = %q", record.Violations[0].Message)
	}
	if record.Violations[1].Constraint != "crosstalk" {
		t.Fatalf("second violation = %s", record.Violations[1].Constraint)
	}
}

func TestHomogeneityConstraintMessage(t *testing.T) {
	svc := newService(t)

	host, _ := svc.Spec("koehler")
	doc := host.DefaultInputs()
	// A small well-collimated source underfills the integrator.
	doc["source.radius"] = 0.4
	doc["source.divergence"] = 10.0
	values, errs := host.ParseParameters(doc)
	if len(errs) != 0 {
		t.Fatalf("parse: %v", errs)
	}

	record, err := svc.Run(context.Background(), "koehler", design.NewParameterStore(values))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(record.Violations) != 1 {
		t.Fatalf("violations = %v", record.Violations)
	}
	v := record.Violations[0]
	if v.Constraint != "homogeneity_minimum" {
		t.Fatalf("violation = %s", v.Constraint)
	}
	if !strings.Contains(v.Message, "Homogeneity (") || !strings.Contains(v.Message, "should be greater than or equal to 5") {
		t.Fatalf("message = %q", v.Message)
	}
}

func TestDivergenceRequiresAngleUnits(t *testing.T) {
	svc := newService(t)
	host, _ := svc.Spec("koehler")

	doc := host.DefaultInputs()
	doc["source.divergence.units"] = "mm"
	_, errs := host.ParseParameters(doc)
	if len(errs) != 1 || errs[0].Name != "source.divergence" {
		t.Fatalf("parse errors = %v", errs)
	}
	if !strings.Contains(errs[0].Message, "unit of angle") {
		t.Fatalf("message = %q", errs[0].Message)
	}

	// A length-tagged divergence smuggled past parsing fails inside the
	// beam radius formula.
	values, parseErrs := host.ParseParameters(host.DefaultInputs())
	if len(parseErrs) != 0 {
		t.Fatalf("parse: %v", parseErrs)
	}
	values["source.divergence"] = optics.NewQuantity(100, optics.Millimeter)
	_, err := svc.Run(context.Background(), "koehler", design.NewParameterStore(values))
	var feErr *design.FormulaEvaluationError
	if !errors.As(err, &feErr) {
		t.Fatalf("expected FormulaEvaluationError, got %v", err)
	}
	if feErr.Formula != "beam_radius_mla" {
		t.Fatalf("formula = %s", feErr.Formula)
	}
	var incompatible *optics.IncompatibleUnitsError
	if !errors.As(err, &incompatible) {
		t.Fatalf("expected IncompatibleUnitsError, got %v", err)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	svc := newService(t)

	first, err := svc.Run(context.Background(), "koehler", defaultStore(t))
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := svc.Run(context.Background(), "koehler", defaultStore(t))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !reflect.DeepEqual(first.Results.Ordered(), second.Results.Ordered()) {
		t.Fatal("results differ between identical runs")
	}
	if !reflect.DeepEqual(first.Violations, second.Violations) {
		t.Fatal("violations differ between identical runs")
	}
}

func TestMissingInputsListedTogether(t *testing.T) {
	svc := newService(t)

	host, _ := svc.Spec("koehler")
	doc := host.DefaultInputs()
	delete(doc, "mla.pitch")
	delete(doc, "mla.pitch.units")
	delete(doc, "source.wavelength")
	delete(doc, "source.wavelength.units")
	values, errs := host.ParseParameters(doc)
	if len(errs) != 2 {
		t.Fatalf("parse errors = %v", errs)
	}
	if errs[0].Name != "mla.pitch" || errs[1].Name != "source.wavelength" {
		t.Fatalf("parse errors out of order: %v", errs)
	}

	_, err := svc.Run(context.Background(), "koehler", design.NewParameterStore(values))
	var missing *design.MissingInputError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingInputError, got %v", err)
	}
	want := []string{"mla.pitch", "source.wavelength"}
	if !reflect.DeepEqual(missing.Keys, want) {
		t.Fatalf("missing = %v, want %v", missing.Keys, want)
	}
}
