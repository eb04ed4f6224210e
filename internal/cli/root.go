// Package cli implements the udesign command tree.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"udesign/designs/dpm"
	"udesign/designs/koehler"
	"udesign/internal/config"
	"udesign/internal/engine"
	"udesign/internal/infra/archive"
	"udesign/pkg/design"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "udesign",
	Short: "Compute and validate microscope design parameters",
	Long: `udesign evaluates microscope designs from a small set of physical
input parameters. It derives secondary optical quantities through
closed-form formulas and checks them against engineering constraints.

Supported microscope types are listed by "udesign types". A JSON input
template for a type comes from "udesign template", and "udesign
validate" evaluates a filled-in template.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file (default ~/.config/udesign/config.toml)")
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			if exit.msg != "" {
				fmt.Fprintln(os.Stderr, renderError("error: "+exit.msg))
			}
			return exit.code
		}
		fmt.Fprintln(os.Stderr, renderError("error: "+err.Error()))
		return 1
	}
	return 0
}

// exitError carries a specific process exit code through cobra. An empty
// message means the command already reported the details itself.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}

// newLogger builds the tint-backed slog logger at the configured level.
// Colors are disabled when stderr is not a terminal.
func newLogger(cfg config.Config) *slog.Logger {
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      cfg.Level(),
		TimeFormat: "15:04:05",
		NoColor:    !isTerminal(os.Stderr),
	}))
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// newService builds the engine with the built-in design packages
// registered.
func newService(opts ...engine.Option) (*engine.Service, error) {
	svc := engine.NewService(opts...)
	if _, err := svc.Install(dpm.New()); err != nil {
		return nil, fmt.Errorf("register dpm: %w", err)
	}
	if _, err := svc.Install(koehler.New()); err != nil {
		return nil, fmt.Errorf("register koehler: %w", err)
	}
	return svc, nil
}

// openArchive opens the run archive named by the configuration. An empty
// driver falls through to the factory default.
func openArchive(cfg config.Config) (design.RunArchive, error) {
	store, err := archive.Open(archive.Driver(cfg.Archive.Driver),
		cfg.Archive.SQLitePath, cfg.Archive.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return store, nil
}
