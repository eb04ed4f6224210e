package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"image/png"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"udesign/designs/dpm"
	"udesign/designs/koehler"
	"udesign/internal/engine"
	archivemem "udesign/internal/infra/archive/memory"
	"udesign/pkg/design"
)

func newEngine(t *testing.T) *engine.Service {
	t.Helper()
	svc := engine.NewService(engine.WithArchive(archivemem.NewArchive()))
	if _, err := svc.Install(dpm.New()); err != nil {
		t.Fatalf("install dpm: %v", err)
	}
	if _, err := svc.Install(koehler.New()); err != nil {
		t.Fatalf("install koehler: %v", err)
	}
	return svc
}

func runDesign(t *testing.T, svc *engine.Service, microscopeType string) design.RunRecord {
	t.Helper()
	host, ok := svc.Spec(microscopeType)
	if !ok {
		t.Fatalf("microscope type %s missing", microscopeType)
	}
	values, errs := host.ParseParameters(host.DefaultInputs())
	if len(errs) != 0 {
		t.Fatalf("default inputs rejected: %v", errs)
	}
	record, err := svc.Run(context.Background(), microscopeType, design.NewParameterStore(values))
	if err != nil {
		t.Fatalf("run %s: %v", microscopeType, err)
	}
	return record
}

func descriptorFor(t *testing.T, svc *engine.Service, microscopeType string) design.SpecDescriptor {
	t.Helper()
	host, ok := svc.Spec(microscopeType)
	if !ok {
		t.Fatalf("microscope type %s missing", microscopeType)
	}
	return host.Descriptor()
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat(" JSON ")
	if err != nil || format != FormatJSON {
		t.Fatalf("parse = %s, %v", format, err)
	}
	if _, err := ParseFormat("xml"); err == nil || !strings.Contains(err.Error(), "unsupported export format") {
		t.Fatalf("expected unsupported format error, got %v", err)
	}
}

func TestRenderJSONRoundTrip(t *testing.T) {
	svc := newEngine(t)
	record := runDesign(t, svc, "dpm")

	payload, err := Render(FormatJSON, descriptorFor(t, svc, "dpm"), record)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	var decoded design.RunRecord
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ID != record.ID || decoded.Type != "dpm" {
		t.Fatalf("decoded = %s/%s", decoded.ID, decoded.Type)
	}
	if decoded.Results.Len() != record.Results.Len() {
		t.Fatalf("results = %d, want %d", decoded.Results.Len(), record.Results.Len())
	}
}

func TestRenderCSVListsResultsInOrder(t *testing.T) {
	svc := newEngine(t)
	record := runDesign(t, svc, "koehler")

	payload, err := Render(FormatCSV, descriptorFor(t, svc, "koehler"), record)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	rows, err := csv.NewReader(bytes.NewReader(payload)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != record.Results.Len()+1 {
		t.Fatalf("rows = %d", len(rows))
	}
	header := strings.Join(rows[0], ",")
	if header != "name,title,equation,value,units" {
		t.Fatalf("header = %s", header)
	}
	ordered := record.Results.Ordered()
	for i, result := range ordered {
		if rows[i+1][0] != result.Name {
			t.Fatalf("row %d = %s, want %s", i+1, rows[i+1][0], result.Name)
		}
	}
}

func TestRenderHTMLReport(t *testing.T) {
	svc := newEngine(t)

	record := runDesign(t, svc, "dpm")
	page, err := Render(FormatHTML, descriptorFor(t, svc, "dpm"), record)
	if err != nil {
		t.Fatalf("render dpm: %v", err)
	}
	report := string(page)
	for _, want := range []string{
		"Diffraction Phase Microscope",
		"mathjax",
		`\(`,
		"light_source.wavelength",
		"data:image/png;base64,",
		record.ID,
	} {
		if !strings.Contains(report, want) {
			t.Fatalf("report missing %q", want)
		}
	}

	koehlerRecord := runDesign(t, svc, "koehler")
	page, err = Render(FormatHTML, descriptorFor(t, svc, "koehler"), koehlerRecord)
	if err != nil {
		t.Fatalf("render koehler: %v", err)
	}
	report = string(page)
	if !strings.Contains(report, "Constraint violations") || !strings.Contains(report, "crosstalk") {
		t.Fatal("report missing violation section")
	}
	if strings.Contains(report, "data:image/png") {
		t.Fatal("unexpected plot in koehler report")
	}
}

func TestRenderPNGPlot(t *testing.T) {
	svc := newEngine(t)

	record := runDesign(t, svc, "dpm")
	payload, err := Render(FormatPNG, descriptorFor(t, svc, "dpm"), record)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 640 || bounds.Dy() != 320 {
		t.Fatalf("bounds = %v", bounds)
	}

	koehlerRecord := runDesign(t, svc, "koehler")
	if _, err := Render(FormatPNG, descriptorFor(t, svc, "koehler"), koehlerRecord); err == nil ||
		!strings.Contains(err.Error(), "no fourier-plane results") {
		t.Fatalf("expected plot error, got %v", err)
	}
}

func TestRenderXLSXWorkbook(t *testing.T) {
	svc := newEngine(t)
	record := runDesign(t, svc, "koehler")

	payload, err := Render(FormatXLSX, descriptorFor(t, svc, "koehler"), record)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer func() { _ = f.Close() }()

	first, err := f.GetCellValue("Results", "A2")
	if err != nil {
		t.Fatalf("results cell: %v", err)
	}
	if first != "flat_field_size" {
		t.Fatalf("first result = %s", first)
	}
	inputs, err := f.GetRows("Inputs")
	if err != nil {
		t.Fatalf("inputs sheet: %v", err)
	}
	if len(inputs) != len(record.Inputs)+1 {
		t.Fatalf("input rows = %d, want %d", len(inputs), len(record.Inputs)+1)
	}
	violations, err := f.GetRows("Violations")
	if err != nil {
		t.Fatalf("violations sheet: %v", err)
	}
	if len(violations) != 2 || violations[1][0] != "crosstalk" {
		t.Fatalf("violations sheet = %v", violations)
	}
}
