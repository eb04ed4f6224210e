package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"udesign/docs/schema/openapi"
	"udesign/internal/infra/blob"
	"udesign/pkg/design"
	"udesign/pkg/optics"
)

// Engine exposes the design service operations the HTTP layer and the export
// worker need. *engine.Service satisfies it.
type Engine interface {
	Types() []design.SpecDescriptor
	Spec(microscopeType string) (design.HostSpec, bool)
	Run(ctx context.Context, microscopeType string, store *design.ParameterStore) (design.RunRecord, error)
	GetRun(ctx context.Context, id string) (design.RunRecord, bool, error)
}

// Handler provides HTTP access to design evaluation and exports.
type Handler struct {
	Engine  Engine
	Exports ExportScheduler
	Blobs   blob.Store
	Metrics http.Handler
}

// NewHandler constructs a design HTTP handler.
func NewHandler(engine Engine) *Handler {
	return &Handler{Engine: engine}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Engine == nil {
		writeError(w, http.StatusInternalServerError, "design engine not configured")
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/healthz":
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	case path == "/metrics":
		if h.Metrics == nil {
			http.NotFound(w, r)
			return
		}
		h.Metrics.ServeHTTP(w, r)
		return
	case r.Method == http.MethodGet && path == "/api/v1/openapi.yaml":
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(openapi.Spec())
		return
	case r.Method == http.MethodGet && path == "/api/v1/designs":
		writeJSON(w, http.StatusOK, map[string]any{"designs": h.Engine.Types()})
		return
	case strings.HasPrefix(path, "/api/v1/exports"):
		if h.Exports == nil {
			http.NotFound(w, r)
			return
		}
		h.handleExports(w, r, path)
		return
	case strings.HasPrefix(path, "/api/v1/designs/"):
		h.handleDesign(w, r, strings.TrimPrefix(path, "/api/v1/designs/"))
		return
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleDesign(w http.ResponseWriter, r *http.Request, remainder string) {
	segments := strings.Split(remainder, "/")
	spec, ok := h.Engine.Spec(segments[0])
	if !ok {
		writeError(w, http.StatusNotFound, "microscope type not found")
		return
	}

	switch len(segments) {
	case 1:
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"design": spec.Descriptor()})
	case 2:
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		switch segments[1] {
		case "validate":
			h.handleValidate(w, r, spec)
		case "run":
			h.handleRun(w, r, spec)
		default:
			writeError(w, http.StatusNotFound, "design endpoint not found")
		}
	default:
		writeError(w, http.StatusNotFound, "design endpoint not found")
	}
}

type designRequest struct {
	Parameters map[string]any `json:"parameters"`
}

type validationResponse struct {
	Type       string                     `json:"type"`
	Valid      bool                       `json:"valid"`
	Parameters map[string]optics.Quantity `json:"parameters,omitempty"`
	Errors     []design.ParameterError    `json:"errors,omitempty"`
}

const emptyBodySentinel = "EOF"

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request, spec design.HostSpec) {
	var req designRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != emptyBodySentinel {
		writeError(w, http.StatusBadRequest, "invalid validation request payload")
		return
	}
	cleaned, errs := spec.ParseParameters(req.Parameters)
	writeJSON(w, http.StatusOK, validationResponse{
		Type:       spec.Type(),
		Valid:      len(errs) == 0,
		Parameters: cleaned,
		Errors:     errs,
	})
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request, spec design.HostSpec) {
	var req designRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != emptyBodySentinel {
		writeError(w, http.StatusBadRequest, "invalid run request payload")
		return
	}

	cleaned, errs := spec.ParseParameters(req.Parameters)
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, validationResponse{
			Type:       spec.Type(),
			Valid:      false,
			Parameters: cleaned,
			Errors:     errs,
		})
		return
	}

	format, ok := negotiateRunFormat(r)
	if !ok {
		writeError(w, http.StatusNotAcceptable, "requested format not supported")
		return
	}

	record, err := h.Engine.Run(r.Context(), spec.Type(), design.NewParameterStore(cleaned))
	if err != nil {
		var missing *design.MissingInputError
		if errors.As(err, &missing) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	switch format {
	case FormatCSV:
		payload, err := Render(FormatCSV, spec.Descriptor(), record)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		filename := fmt.Sprintf("%s-%s.csv", record.Type, time.Now().UTC().Format("20060102T150405Z"))
		w.Header().Set("Content-Type", FormatCSV.ContentType())
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		_, _ = w.Write(payload)
	case FormatHTML:
		payload, err := Render(FormatHTML, spec.Descriptor(), record)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", FormatHTML.ContentType())
		_, _ = w.Write(payload)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"run": record})
	}
}

// negotiateRunFormat resolves the synchronous run format from the format
// query parameter, falling back to the Accept header, then JSON.
func negotiateRunFormat(r *http.Request) (Format, bool) {
	wanted := strings.ToLower(r.URL.Query().Get("format"))
	if wanted == "" {
		accept := r.Header.Get("Accept")
		switch {
		case strings.Contains(accept, "text/csv"):
			return FormatCSV, true
		case strings.Contains(accept, "text/html"):
			return FormatHTML, true
		default:
			return FormatJSON, true
		}
	}
	switch Format(wanted) {
	case FormatJSON, FormatCSV, FormatHTML:
		return Format(wanted), true
	}
	return "", false
}

type exportRequest struct {
	RunID       string   `json:"run_id"`
	Formats     []string `json:"formats"`
	RequestedBy string   `json:"requested_by"`
	Reason      string   `json:"reason"`
}

func (h *Handler) handleExports(w http.ResponseWriter, r *http.Request, path string) {
	if path == "/api/v1/exports" {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleExportCreate(w, r)
		return
	}

	rest := strings.TrimPrefix(path, "/api/v1/exports/")
	if rest == path || rest == "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if id, found := strings.CutSuffix(rest, "/download"); found {
		h.handleExportDownload(w, r, id)
		return
	}
	record, ok := h.Exports.GetExport(rest)
	if !ok {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"export": record})
}

func (h *Handler) handleExportCreate(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != emptyBodySentinel {
		writeError(w, http.StatusBadRequest, "invalid export request payload")
		return
	}

	formats := make([]Format, 0, len(req.Formats))
	for _, raw := range req.Formats {
		format, err := ParseFormat(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		formats = append(formats, format)
	}

	record, err := h.Exports.EnqueueExport(r.Context(), ExportInput{
		RunID:       req.RunID,
		Formats:     formats,
		RequestedBy: req.RequestedBy,
		Reason:      req.Reason,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"export": record})
}

func (h *Handler) handleExportDownload(w http.ResponseWriter, r *http.Request, id string) {
	record, ok := h.Exports.GetExport(id)
	if !ok {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	if record.Status != ExportStatusSucceeded {
		writeError(w, http.StatusConflict, "export not complete")
		return
	}

	var artifact *ExportArtifact
	if wanted := r.URL.Query().Get("format"); wanted != "" {
		format, err := ParseFormat(wanted)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		for i := range record.Artifacts {
			if record.Artifacts[i].Format == format {
				artifact = &record.Artifacts[i]
				break
			}
		}
	} else if len(record.Artifacts) > 0 {
		artifact = &record.Artifacts[0]
	}
	if artifact == nil {
		writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	if h.Blobs == nil || artifact.Key == "" {
		writeError(w, http.StatusNotFound, "artifact payload unavailable")
		return
	}

	_, body, err := h.Blobs.Get(r.Context(), artifact.Key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("fetch artifact: %v", err))
		return
	}
	defer func() { _ = body.Close() }()

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "report."+artifact.Format.Ext()))
	_, _ = io.Copy(w, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
