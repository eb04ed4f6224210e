// Command designcheck verifies that the committed input templates under
// docs/templates stay in sync with the registered design specifications.
// It is run in CI; -update rewrites the templates after a spec change.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"udesign/designs/dpm"
	"udesign/designs/koehler"
	"udesign/internal/engine"
)

var exitFunc = os.Exit

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("designcheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var dir string
	var update bool
	fs.StringVar(&dir, "templates", "docs/templates", "path to the committed template directory")
	fs.BoolVar(&update, "update", false, "rewrite stale templates instead of failing")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := run(dir, update); err != nil {
		if _, writeErr := fmt.Fprintf(stderr, "Template validation failed: %v\n", err); writeErr != nil {
			return 1
		}
		return 1
	}
	if _, writeErr := fmt.Fprintln(stdout, "Template validation passed."); writeErr != nil {
		return 1
	}
	return 0
}

func run(dir string, update bool) error {
	svc := engine.NewService()
	if _, err := svc.Install(dpm.New()); err != nil {
		return err
	}
	if _, err := svc.Install(koehler.New()); err != nil {
		return err
	}

	var stale []string
	for _, desc := range svc.Types() {
		want, err := renderTemplate(svc, desc.Type)
		if err != nil {
			return err
		}
		// The generated template must ingest cleanly; a failure here
		// means a design declares defaults its own parameters reject.
		if err := checkIngest(svc, desc.Type, want); err != nil {
			return err
		}

		path := filepath.Join(dir, desc.Type+".json")
		got, err := os.ReadFile(path)
		switch {
		case err == nil && bytes.Equal(got, want):
			continue
		case err != nil && !os.IsNotExist(err):
			return fmt.Errorf("read %s: %w", path, err)
		}
		if !update {
			stale = append(stale, path)
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
		if err := os.WriteFile(path, want, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if len(stale) > 0 {
		return fmt.Errorf("templates out of date: %s (run designcheck -update)",
			strings.Join(stale, ", "))
	}
	return nil
}

func renderTemplate(svc *engine.Service, microscopeType string) ([]byte, error) {
	doc, err := svc.Template(microscopeType)
	if err != nil {
		return nil, err
	}
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal %s template: %w", microscopeType, err)
	}
	return append(payload, '\n'), nil
}

func checkIngest(svc *engine.Service, microscopeType string, template []byte) error {
	host, ok := svc.Spec(microscopeType)
	if !ok {
		return fmt.Errorf("microscope type %s not registered", microscopeType)
	}
	var doc map[string]any
	if err := json.Unmarshal(template, &doc); err != nil {
		return fmt.Errorf("parse %s template: %w", microscopeType, err)
	}
	if _, errs := host.ParseParameters(doc); len(errs) > 0 {
		return fmt.Errorf("%s template does not ingest: %s: %s",
			microscopeType, errs[0].Name, errs[0].Message)
	}
	return nil
}
