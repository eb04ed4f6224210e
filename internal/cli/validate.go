package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"udesign/internal/adapters/reports"
	"udesign/internal/engine"
	"udesign/pkg/design"
	"udesign/pkg/optics"
)

var (
	validateType   string
	validateInput  string
	validateOutput string
	validateFormat string
	validateStrict bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Evaluate a design and check its constraints",
	Long: `Evaluate the formulas of a microscope design from a JSON input
document and check the results against the design constraints.
Violations are reported as normal output, not errors.

Examples:
  udesign validate --type dpm --input design.json
  udesign validate --type dpm --input design.json --format html -o report.html
  udesign validate --type koehler --input - --strict < design.json`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVarP(&validateType, "type", "t", "", "Microscope type (required)")
	validateCmd.Flags().StringVarP(&validateInput, "input", "i", "-", "Input JSON file, - for stdin")
	validateCmd.Flags().StringVarP(&validateOutput, "output", "o", "", "Write rendered output to a file")
	validateCmd.Flags().StringVarP(&validateFormat, "format", "f", "", "Render as json, csv, html, png, or xlsx")
	validateCmd.Flags().BoolVar(&validateStrict, "strict", false, "Exit with code 2 when constraints are violated")
	_ = validateCmd.MarkFlagRequired("type")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	opts := []engine.Option{engine.WithLogger(logger)}
	if cfg.Archive.Driver != "" {
		store, err := openArchive(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		opts = append(opts, engine.WithArchive(store))
	}
	svc, err := newService(opts...)
	if err != nil {
		return err
	}

	host, ok := svc.Spec(validateType)
	if !ok {
		return &design.UnknownMicroscopeTypeError{Type: validateType}
	}

	doc, err := readInputDoc(validateInput)
	if err != nil {
		return err
	}
	params, perrs := host.ParseParameters(doc)
	if len(perrs) > 0 {
		fmt.Fprintln(os.Stderr, renderError("invalid parameters:"))
		for _, pe := range perrs {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", pe.Name, pe.Message)
		}
		return &exitError{code: 1}
	}

	record, err := svc.Run(cmd.Context(), validateType, design.NewParameterStore(params))
	if err != nil {
		return err
	}

	if validateFormat != "" {
		if err := writeRendered(host.Descriptor(), record); err != nil {
			return err
		}
	} else {
		printRunSummary(host.Descriptor(), record)
	}

	if validateStrict && len(record.Violations) > 0 {
		return &exitError{code: 2}
	}
	return nil
}

// readInputDoc loads the flat input document from a file or stdin.
func readInputDoc(path string) (map[string]any, error) {
	var data []byte
	var err error
	if path == "" || path == "-" {
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
	} else {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse input JSON: %w", err)
	}
	return doc, nil
}

// writeRendered renders the run in the requested format and writes it to
// the output file or stdout.
func writeRendered(desc design.SpecDescriptor, record design.RunRecord) error {
	format, err := reports.ParseFormat(validateFormat)
	if err != nil {
		return err
	}
	if validateOutput == "" && isBinaryFormat(format) && isTerminal(os.Stdout) {
		return fmt.Errorf("refusing to write %s to a terminal, use --output", format)
	}
	payload, err := reports.Render(format, desc, record)
	if err != nil {
		return err
	}
	if validateOutput == "" {
		_, err = os.Stdout.Write(payload)
		return err
	}
	if err := os.WriteFile(validateOutput, payload, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func isBinaryFormat(f reports.Format) bool {
	return f == reports.FormatPNG || f == reports.FormatXLSX
}

// printRunSummary renders the run to the terminal: inputs are elided,
// results come in declaration order, violations at the end.
func printRunSummary(desc design.SpecDescriptor, record design.RunRecord) {
	fmt.Printf("%s %s  %s\n", renderBold(desc.Title), renderDim("v"+record.SpecVersion),
		renderDim("run "+record.ID))

	nameWidth := 0
	for _, res := range record.Results.Ordered() {
		if len(res.Name) > nameWidth {
			nameWidth = len(res.Name)
		}
	}
	fmt.Println()
	for _, res := range record.Results.Ordered() {
		fmt.Printf("  %-*s  %s\n", nameWidth, res.Name, formatQuantity(res.Value))
	}

	fmt.Println()
	if len(record.Violations) == 0 {
		fmt.Printf("%s all %d constraints satisfied\n",
			renderSuccess("✓"), len(desc.Constraints))
		return
	}
	for _, v := range record.Violations {
		fmt.Printf("%s %s\n", renderWarn("✗ "+v.Constraint+":"), v.Message)
	}
}

func formatQuantity(q optics.Quantity) string {
	mag := strconv.FormatFloat(q.Magnitude, 'g', 6, 64)
	if unit := q.Unit.String(); unit != "" {
		return mag + " " + unit
	}
	return mag
}
