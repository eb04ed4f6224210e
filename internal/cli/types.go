package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var typesJSON bool

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List registered microscope types",
	Long: `List the microscope types this build can evaluate, with their
parameter, formula, and constraint counts.

Examples:
  udesign types
  udesign types --json`,
	RunE: runTypes,
}

func init() {
	typesCmd.Flags().BoolVar(&typesJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(typesCmd)
}

func runTypes(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	descriptors := svc.Types()

	if typesJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(descriptors)
	}
	for _, d := range descriptors {
		fmt.Printf("%s  %s %s\n", renderBold(d.Type), d.Title, renderDim("v"+d.Version))
		fmt.Printf("    %d parameters, %d formulas, %d constraints\n",
			len(d.Parameters), len(d.Formulas), len(d.Constraints))
	}
	return nil
}
