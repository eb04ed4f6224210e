package dpm

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
	if descriptor.Type != "dpm" {
		t.Fatalf("type = %s", descriptor.Type)
	}
	if len(descriptor.Parameters) != 13 {
		t.Fatalf("parameters = %d", len(descriptor.Parameters))
	}
	if len(descriptor.Formulas) != 18 {
		t.Fatalf("formulas = %d", len(descriptor.Formulas))
	}
	if len(descriptor.Constraints) != 5 {
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

	record, err := svc.Run(context.Background(), "dpm", defaultStore(t))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	wantOrder := []string{
		"4f_magnification",
		"system_magnification",
		"resolution",
		"minimum_resolution",
		"maximum_grating_period",
		"maximum_pixel_size",
		"camera_diagonal",
		"field_of_view_horizontal",
		"field_of_view_vertical",
		"fourier_plane_spacing",
		"fourier_plane_sizes",
		"minimum_lens_1_na",
		"minimum_lens_2_na",
		"lens_1_na",
		"lens_2_na",
		"minimum_4f_magnification",
		"maximum_pinhole_diameter",
		"coupling_ratio",
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
	approx(t, results, "4f_magnification", -4, optics.None)
	approx(t, results, "system_magnification", 80, optics.None)
	approx(t, results, "resolution", 1.952, optics.Micrometer)
	approx(t, results, "minimum_resolution", 0.5952380952, optics.Micrometer)
	approx(t, results, "maximum_grating_period", 10.6666666667, optics.Micrometer)
	approx(t, results, "maximum_pixel_size", 4.9937578027, optics.Micrometer)
	approx(t, results, "camera_diagonal", 3.7652021885, optics.Millimeter)
	approx(t, results, "field_of_view_horizontal", 33.28, optics.Micrometer)
	approx(t, results, "field_of_view_vertical", 33.28, optics.Micrometer)
	approx(t, results, "fourier_plane_spacing", 14.4, optics.Millimeter)
	approx(t, results, "fourier_plane_sizes", 1.5, optics.Millimeter)
	approx(t, results, "minimum_lens_1_na", 0.212, optics.None)
	approx(t, results, "minimum_lens_2_na", 0.0740266667, optics.None)
	approx(t, results, "lens_1_na", 0.3048, optics.None)
	approx(t, results, "lens_2_na", 0.0762, optics.None)
	approx(t, results, "minimum_4f_magnification", 3.445, optics.None)
	approx(t, results, "maximum_pinhole_diameter", 31.1058997, optics.Micrometer)
	approx(t, results, "coupling_ratio", 0.0414745325, optics.None)

	// The stock defaults trip exactly the pixel sampling bound: 5.2 um
	// pixels against a 4.99 um maximum.
	if len(record.Violations) != 1 {
		t.Fatalf("violations = %v", record.Violations)
	}
	v := record.Violations[0]
	if v.Constraint != "pixel_size_maximum" {
		t.Fatalf("violation = %s", v.Constraint)
	}
	if !strings.Contains(v.Message, "Pixel size exceeds the maximum requirement") {
		t.Fatalf("message = %q", v.Message)
	}
	if !strings.Contains(v.Message, "um") {
		t.Fatalf("message lacks units: %q", v.Message)
	}
}

func TestFourierPlaneSpacingWorkedExample(t *testing.T) {
	svc := newService(t)

	doc := map[string]any{
		"objective.magnification":            40.0,
		"objective.numerical_aperture":       0.8,
		"camera.pixel_size":                  5.86,
		"camera.pixel_size.units":            "um",
		"camera.horizontal_number_of_pixels": 512,
		"camera.vertical_number_of_pixels":   512,
		"light_source.wavelength":            0.532,
		"light_source.wavelength.units":      "um",
		"grating.period":                     50.0,
		"grating.period.units":               "um",
		"lens_1.focal_length":                100.0,
		"lens_1.focal_length.units":          "mm",
		"lens_1.clear_aperture":              45.72,
		"lens_1.clear_aperture.units":        "mm",
		"lens_2.focal_length":                100.0,
		"lens_2.focal_length.units":          "mm",
		"lens_2.clear_aperture":              45.72,
		"lens_2.clear_aperture.units":        "mm",
		"pinhole.diameter":                   30.0,
		"pinhole.diameter.units":             "um",
		"misc.central_lobe_size_factor":      4.0,
	}
	host, ok := svc.Spec("dpm")
	if !ok {
		t.Fatal("dpm not registered")
	}
	values, errs := host.ParseParameters(doc)
	if len(errs) != 0 {
		t.Fatalf("parse: %v", errs)
	}

	record, err := svc.Run(context.Background(), "dpm", design.NewParameterStore(values))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	approx(t, record.Results, "fourier_plane_spacing", 1.064, optics.Millimeter)
	approx(t, record.Results, "4f_magnification", -1, optics.None)
	approx(t, record.Results, "maximum_pixel_size", 18.7265917603, optics.Micrometer)

	res, _ := record.Results.Lookup("fourier_plane_spacing")
	if res.Equation == "" || res.Title == "" {
		t.Fatalf("metadata missing: %+v", res)
	}

	// 5.86 um pixels sample this 50 um grating comfortably.
	for _, v := range record.Violations {
		if v.Constraint == "pixel_size_maximum" {
			t.Fatalf("unexpected pixel violation: %v", v)
		}
	}
}

func TestMagnificationConstraintMessage(t *testing.T) {
	svc := newService(t)

	host, _ := svc.Spec("dpm")
	doc := host.DefaultInputs()
	// Demagnifying 4f relay: |M_4f| = 0.25 against a minimum around 3.4.
	doc["lens_1.focal_length"] = 300.0
	doc["lens_2.focal_length"] = 75.0
	values, errs := host.ParseParameters(doc)
	if len(errs) != 0 {
		t.Fatalf("parse: %v", errs)
	}

	record, err := svc.Run(context.Background(), "dpm", design.NewParameterStore(values))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var found bool
	for _, v := range record.Violations {
		if v.Constraint != "4f_magnification_minimum" {
			continue
		}
		found = true
		if !strings.Contains(v.Message, "Minimum:") || !strings.Contains(v.Message, "Actual:") {
			t.Fatalf("message = %q", v.Message)
		}
	}
	if !found {
		t.Fatalf("expected 4f magnification violation, got %v", record.Violations)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	svc := newService(t)

	first, err := svc.Run(context.Background(), "dpm", defaultStore(t))
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := svc.Run(context.Background(), "dpm", defaultStore(t))
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

	host, _ := svc.Spec("dpm")
	doc := host.DefaultInputs()
	delete(doc, "grating.period")
	delete(doc, "grating.period.units")
	delete(doc, "pinhole.diameter")
	delete(doc, "pinhole.diameter.units")
	values, errs := host.ParseParameters(doc)
	if len(errs) != 2 {
		t.Fatalf("parse errors = %v", errs)
	}
	if errs[0].Name != "grating.period" || errs[1].Name != "pinhole.diameter" {
		t.Fatalf("parse errors out of order: %v", errs)
	}

	_, err := svc.Run(context.Background(), "dpm", design.NewParameterStore(values))
	var missing *design.MissingInputError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingInputError, got %v", err)
	}
	want := []string{"grating.period", "pinhole.diameter"}
	if !reflect.DeepEqual(missing.Keys, want) {
		t.Fatalf("missing = %v, want %v", missing.Keys, want)
	}
}
