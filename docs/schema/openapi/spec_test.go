package openapi

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSpecReturnsCopyAndMatchesFile(t *testing.T) {
	want, err := os.ReadFile(filepath.Clean(filepath.Join("udesign.yaml")))
	if err != nil {
		t.Fatalf("read udesign.yaml: %v", err)
	}

	spec := Spec()
	if len(spec) == 0 {
		t.Fatal("Spec returned empty content")
	}
	if !bytes.Equal(spec, want) {
		t.Fatalf("Spec does not match embedded OpenAPI contents")
	}

	spec[0] ^= 0xFF
	if bytes.Equal(spec, Document) {
		t.Fatalf("Spec did not return a defensive copy")
	}
	if !bytes.Equal(Spec(), want) {
		t.Fatalf("Spec mutation leaked into embedded content")
	}
}

// The document is hand-maintained, so pin the routes the handler actually
// serves; a new endpoint must land in both places.
func TestSpecNamesServedRoutes(t *testing.T) {
	doc := string(Document)
	if !strings.HasPrefix(doc, "openapi:") {
		t.Fatalf("document does not start with an openapi version: %q", doc[:40])
	}
	for _, route := range []string{
		"/healthz",
		"/metrics",
		"/api/v1/openapi.yaml",
		"/api/v1/designs",
		"/api/v1/designs/{type}",
		"/api/v1/designs/{type}/validate",
		"/api/v1/designs/{type}/run",
		"/api/v1/exports",
		"/api/v1/exports/{id}",
		"/api/v1/exports/{id}/download",
	} {
		if !strings.Contains(doc, "  "+route+":") {
			t.Errorf("document does not describe %s", route)
		}
	}
}
