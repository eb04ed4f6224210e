// Command validate_any_usage enforces the any usage allowlist over the
// declaration API and the bundled designs.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"udesign/internal/validation"
)

const (
	defaultAllowlistPath = "internal/ci/any_allowlist.json"
	defaultRoots         = "pkg/design,pkg/optics,designs"
)

var (
	exitFunc  = os.Exit
	getwd     = os.Getwd
	checkFunc = validation.CheckAnyUsageFromFile
)

func main() {
	exitFunc(run(os.Args, os.Stderr, checkFunc))
}

func run(args []string, stderr io.Writer, check func(string, string, []string) ([]validation.Violation, error)) int {
	if len(args) == 0 {
		return 1
	}
	flags := flag.NewFlagSet(args[0], flag.ContinueOnError)
	flags.SetOutput(stderr)
	allowlist := flags.String("allowlist", defaultAllowlistPath, "path to any usage allowlist")
	rootsFlag := flags.String("roots", defaultRoots, "comma-separated roots to scan")
	if err := flags.Parse(args[1:]); err != nil {
		return 1
	}

	roots := splitRoots(*rootsFlag)
	if len(roots) == 0 {
		_, _ = fmt.Fprintln(stderr, "no roots provided for any usage validation")
		return 1
	}
	baseDir, err := getwd()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "resolve working directory: %v\n", err)
		return 1
	}

	violations, err := check(*allowlist, baseDir, roots)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "any usage guard failed: %v\n", err)
		return 1
	}
	if len(violations) == 0 {
		return 0
	}
	_, _ = fmt.Fprintf(stderr, "Found %d disallowed any usages:\n\n", len(violations))
	for _, violation := range violations {
		location := fmt.Sprintf("%s:%d", violation.File, violation.Line)
		if violation.Symbol != "" {
			location += " (" + violation.Symbol + ")"
		}
		_, _ = fmt.Fprintln(stderr, location)
		if violation.Message != "" {
			_, _ = fmt.Fprintf(stderr, "  %s\n", violation.Message)
		}
		if violation.Code != "" {
			_, _ = fmt.Fprintf(stderr, "  Code: %s\n", violation.Code)
		}
		_, _ = fmt.Fprintln(stderr)
	}
	return 1
}

func splitRoots(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	raw := strings.Split(value, ",")
	out := make([]string, 0, len(raw))
	for _, entry := range raw {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		out = append(out, entry)
	}
	return out
}
