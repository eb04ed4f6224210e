// Package reports renders finalized design runs into report artifacts and
// serves them over HTTP. Rendering consumes a completed run as data; it never
// re-evaluates formulas or constraints.
package reports

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"udesign/pkg/design"
)

// Format identifies one report rendering.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
	FormatPNG  Format = "png"
	FormatXLSX Format = "xlsx"
)

// ParseFormat normalizes a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	format := Format(strings.ToLower(strings.TrimSpace(s)))
	switch format {
	case FormatJSON, FormatCSV, FormatHTML, FormatPNG, FormatXLSX:
		return format, nil
	}
	return "", fmt.Errorf("unsupported export format %s", s)
}

// ContentType returns the MIME type served for the rendering.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatPNG:
		return "image/png"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json"
	}
}

// Ext returns the artifact file extension.
func (f Format) Ext() string { return string(f) }

// Render materializes a finalized run in the requested format.
func Render(format Format, desc design.SpecDescriptor, record design.RunRecord) ([]byte, error) {
	switch format {
	case FormatJSON:
		payload, err := json.Marshal(record)
		if err != nil {
			return nil, fmt.Errorf("marshal run: %w", err)
		}
		return payload, nil
	case FormatCSV:
		return renderCSV(record)
	case FormatHTML:
		return renderHTML(desc, record)
	case FormatPNG:
		return fourierPlanePlot(record)
	case FormatXLSX:
		return renderXLSX(record)
	default:
		return nil, fmt.Errorf("unsupported export format %s", format)
	}
}

func renderCSV(record design.RunRecord) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write([]string{"name", "title", "equation", "value", "units"}); err != nil {
		return nil, err
	}
	for _, result := range record.Results.Ordered() {
		row := []string{
			result.Name,
			result.Title,
			result.Equation,
			strconv.FormatFloat(result.Value.Magnitude, 'g', -1, 64),
			result.Value.Unit.String(),
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<script id="MathJax-script" async src="https://cdn.jsdelivr.net/npm/mathjax@3/es5/tex-chtml.js"></script>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; margin-bottom: 1.5em; }
th, td { border: 1px solid #ccc; padding: 0.3em 0.8em; text-align: left; }
th { background: #f0f0f0; }
.violation { color: #b00020; }
footer { margin-top: 2em; color: #666; font-size: 0.8em; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>Type {{.Type}}, specification {{.Version}}, run {{.RunID}} created {{.CreatedAt}}.</p>
<h2>Inputs</h2>
<table>
<thead><tr><th>Parameter</th><th>Value</th><th>Units</th></tr></thead>
<tbody>
{{range .Inputs}}<tr><td>{{.Name}}</td><td>{{.Value}}</td><td>{{.Units}}</td></tr>
{{end}}</tbody>
</table>
<h2>Results</h2>
<table>
<thead><tr><th>Result</th><th>Equation</th><th>Value</th><th>Units</th></tr></thead>
<tbody>
{{range .Results}}<tr><td>{{.Title}}</td><td>{{if .Equation}}\({{.Equation}}\){{end}}</td><td>{{.Value}}</td><td>{{.Units}}</td></tr>
{{end}}</tbody>
</table>
{{if .Violations}}<h2>Constraint violations</h2>
<ul>
{{range .Violations}}<li class="violation">{{.Constraint}}: {{.Message}}</li>
{{end}}</ul>
{{end}}{{if .Plot}}<h2>Fourier plane</h2>
<img src="data:image/png;base64,{{.Plot}}" alt="Fourier plane orders">
{{end}}<footer>Generated {{.GeneratedAt}}.</footer>
</body>
</html>
`))

type reportRow struct {
	Name, Title, Equation, Value, Units string
}

type reportData struct {
	Title       string
	Type        string
	Version     string
	RunID       string
	CreatedAt   string
	Inputs      []reportRow
	Results     []reportRow
	Violations  []design.Violation
	Plot        string
	GeneratedAt string
}

func renderHTML(desc design.SpecDescriptor, record design.RunRecord) ([]byte, error) {
	title := desc.Title
	if title == "" {
		title = record.Type
	}
	data := reportData{
		Title:       title,
		Type:        record.Type,
		Version:     record.SpecVersion,
		RunID:       record.ID,
		CreatedAt:   record.CreatedAt.Format(time.RFC3339),
		Violations:  record.Violations,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}

	keys := make([]string, 0, len(record.Inputs))
	for key := range record.Inputs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		q := record.Inputs[key]
		data.Inputs = append(data.Inputs, reportRow{
			Name:  key,
			Value: displayFloat(q.Magnitude),
			Units: q.Unit.String(),
		})
	}
	for _, result := range record.Results.Ordered() {
		data.Results = append(data.Results, reportRow{
			Title:    result.Title,
			Equation: result.Equation,
			Value:    displayFloat(result.Value.Magnitude),
			Units:    result.Value.Unit.String(),
		})
	}

	// The plot only exists for designs that compute Fourier-plane geometry.
	if plot, err := fourierPlanePlot(record); err == nil {
		data.Plot = base64.StdEncoding.EncodeToString(plot)
	}

	buf := &bytes.Buffer{}
	if err := reportTemplate.Execute(buf, data); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

func renderXLSX(record design.RunRecord) ([]byte, error) {
	f := excelize.NewFile()
	f.SetSheetName("Sheet1", "Results")

	setRow := func(sheet string, row int, cells ...any) {
		for i, value := range cells {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			f.SetCellValue(sheet, cell, value)
		}
	}

	setRow("Results", 1, "name", "title", "equation", "value", "units")
	for i, result := range record.Results.Ordered() {
		setRow("Results", i+2, result.Name, result.Title, result.Equation,
			result.Value.Magnitude, result.Value.Unit.String())
	}

	f.NewSheet("Inputs")
	setRow("Inputs", 1, "parameter", "value", "units")
	keys := make([]string, 0, len(record.Inputs))
	for key := range record.Inputs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for i, key := range keys {
		q := record.Inputs[key]
		setRow("Inputs", i+2, key, q.Magnitude, q.Unit.String())
	}

	if len(record.Violations) > 0 {
		f.NewSheet("Violations")
		setRow("Violations", 1, "constraint", "message")
		for i, violation := range record.Violations {
			setRow("Violations", i+2, violation.Constraint, violation.Message)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// fourierPlanePlot draws the 0th and 1st order pupil images in the Fourier
// plane to scale: two disks of diameter fourier_plane_sizes whose centres sit
// fourier_plane_spacing apart.
func fourierPlanePlot(record design.RunRecord) ([]byte, error) {
	spacing, okSpacing := record.Results.Lookup("fourier_plane_spacing")
	size, okSize := record.Results.Lookup("fourier_plane_sizes")
	if !okSpacing || !okSize {
		return nil, fmt.Errorf("design %s has no fourier-plane results", record.Type)
	}
	gap := spacing.Value.SI()
	radius := size.Value.SI() / 2
	if gap <= 0 || radius <= 0 {
		return nil, fmt.Errorf("fourier-plane geometry of run %s is degenerate", record.ID)
	}

	const width, height, margin = 640, 320, 40
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)

	scale := float64(width-2*margin) / (gap + 2*radius)
	cy := height / 2
	axis := color.RGBA{180, 180, 180, 255}
	for x := margin; x < width-margin; x++ {
		img.Set(x, cy, axis)
	}

	r := int(radius*scale + 0.5)
	if r < 2 {
		r = 2
	}
	order := color.RGBA{0, 102, 204, 255}
	drawDisk(img, margin+r, cy, r, order)
	drawDisk(img, margin+r+int(gap*scale+0.5), cy, r, order)

	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawDisk(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r {
				img.Set(x, y, c)
			}
		}
	}
}

func displayFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
