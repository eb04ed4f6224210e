package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"udesign/internal/engine"
	"udesign/pkg/design"
)

var (
	runsListType  string
	runsListLimit int
	runsListJSON  bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect archived design runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived runs, newest first",
	Long: `List archived design runs from the configured archive backend.

Examples:
  udesign runs list
  udesign runs list --type koehler --limit 5
  udesign runs list --json`,
	RunE: runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print one archived run as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

func init() {
	runsListCmd.Flags().StringVarP(&runsListType, "type", "t", "", "Filter by microscope type")
	runsListCmd.Flags().IntVarP(&runsListLimit, "limit", "n", 20, "Maximum number of runs to show")
	runsListCmd.Flags().BoolVar(&runsListJSON, "json", false, "Output as JSON")
	runsCmd.AddCommand(runsListCmd, runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

// newArchivedService opens the configured archive and builds a service
// around it. The caller runs the returned closer when done.
func newArchivedService() (*engine.Service, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := openArchive(cfg)
	if err != nil {
		return nil, nil, err
	}
	svc, err := newService(engine.WithLogger(newLogger(cfg)), engine.WithArchive(store))
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return svc, func() { _ = store.Close() }, nil
}

func runRunsList(cmd *cobra.Command, args []string) error {
	svc, closeArchive, err := newArchivedService()
	if err != nil {
		return err
	}
	defer closeArchive()

	records, err := svc.ListRuns(cmd.Context(), design.RunFilter{
		Type:  runsListType,
		Limit: runsListLimit,
	})
	if err != nil {
		return err
	}

	if runsListJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	if len(records) == 0 {
		fmt.Println(renderDim("no archived runs"))
		return nil
	}
	for _, rec := range records {
		status := renderSuccess("ok")
		if n := len(rec.Violations); n > 0 {
			status = renderWarn(fmt.Sprintf("%d violated", n))
		}
		fmt.Printf("%s  %-8s %s  %s\n", rec.ID, rec.Type,
			renderDim(rec.CreatedAt.UTC().Format(time.RFC3339)), status)
	}
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	svc, closeArchive, err := newArchivedService()
	if err != nil {
		return err
	}
	defer closeArchive()

	record, found, err := svc.GetRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("run %s not found", args[0])
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(record)
}
