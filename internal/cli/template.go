package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	templateType   string
	templateOutput string
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Generate a JSON input template for a microscope type",
	Long: `Generate a JSON input document pre-filled with the default value of
every parameter. Quantity parameters carry a sibling "<key>.units"
entry naming their unit.

Examples:
  udesign template --type dpm
  udesign template --type koehler -o koehler.json`,
	RunE: runTemplate,
}

func init() {
	templateCmd.Flags().StringVarP(&templateType, "type", "t", "", "Microscope type (required)")
	templateCmd.Flags().StringVarP(&templateOutput, "output", "o", "", "Write to a file instead of stdout")
	_ = templateCmd.MarkFlagRequired("type")
	rootCmd.AddCommand(templateCmd)
}

func runTemplate(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	doc, err := svc.Template(templateType)
	if err != nil {
		return err
	}
	// MarshalIndent sorts map keys, so the same type always yields the
	// same bytes.
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal template: %w", err)
	}
	payload = append(payload, '\n')

	if templateOutput == "" {
		_, err = os.Stdout.Write(payload)
		return err
	}
	if err := os.WriteFile(templateOutput, payload, 0o644); err != nil {
		return fmt.Errorf("write template: %w", err)
	}
	return nil
}
