package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"udesign/pkg/design"
)

// Logger receives structured engine events. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MetricsRecorder aggregates per-operation outcome and timing data.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

// Tracer opens a span around each service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan finalizes one traced operation.
type TraceSpan interface {
	End(err error)
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// ErrNoArchive is returned by run retrieval when no archive is configured.
var ErrNoArchive = errors.New("engine: no run archive configured")

// Operation names reported to metrics recorders and tracers.
const (
	opRun      = "run"
	opGetRun   = "get_run"
	opListRuns = "list_runs"
)

// Service resolves microscope types and evaluates design runs. It is the
// single entry point the CLI and HTTP layers talk to.
type Service struct {
	registry *Registry
	plugins  map[string]PluginMetadata
	archive  design.RunArchive
	metrics  MetricsRecorder
	tracer   Tracer
	logger   Logger
	clock    func() time.Time
	newID    func() string
}

// Option customizes a Service at construction.
type Option func(*Service)

// WithArchive persists every evaluated run into the supplied archive.
func WithArchive(archive design.RunArchive) Option {
	return func(s *Service) { s.archive = archive }
}

// WithMetricsRecorder wires per-operation metrics.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithTracer wires per-operation tracing.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithLogger wires structured logging.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the run timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.clock = now
		}
	}
}

// WithIDGenerator overrides the run identifier source.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewService constructs an empty service. Design packages are added through
// Install.
func NewService(opts ...Option) *Service {
	s := &Service{
		registry: NewRegistry(),
		plugins:  make(map[string]PluginMetadata),
		metrics:  noopMetricsRecorder{},
		tracer:   noopTracer{},
		logger:   noopLogger{},
		clock:    time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Install registers a plugin, staging its specifications so a failed
// registration leaves the service untouched.
func (s *Service) Install(plugin Plugin) (PluginMetadata, error) {
	if plugin == nil {
		return PluginMetadata{}, fmt.Errorf("plugin cannot be nil")
	}
	if _, ok := s.plugins[plugin.Name()]; ok {
		return PluginMetadata{}, fmt.Errorf("plugin %s already registered", plugin.Name())
	}

	staging := NewRegistry()
	if err := plugin.Register(staging); err != nil {
		return PluginMetadata{}, err
	}
	types := staging.Types()
	for _, t := range types {
		if _, exists := s.registry.Spec(t); exists {
			return PluginMetadata{}, fmt.Errorf("microscope type %s already registered", t)
		}
	}
	for _, t := range types {
		host, _ := staging.Spec(t)
		s.registry.specs[t] = host
	}

	meta := PluginMetadata{
		Name:    plugin.Name(),
		Version: plugin.Version(),
		Types:   types,
	}
	s.plugins[plugin.Name()] = meta
	s.logger.Info("design plugin installed",
		"plugin", meta.Name, "version", meta.Version, "types", strings.Join(types, ","))
	return meta, nil
}

// InstalledPlugins returns metadata for installed plugins sorted by name.
func (s *Service) InstalledPlugins() []PluginMetadata {
	out := make([]PluginMetadata, 0, len(s.plugins))
	for _, meta := range s.plugins {
		meta.Types = append([]string(nil), meta.Types...)
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Types returns descriptors for every registered specification sorted by
// microscope type.
func (s *Service) Types() []design.SpecDescriptor {
	return s.registry.Descriptors()
}

// Spec returns the validated specification for a microscope type.
func (s *Service) Spec(microscopeType string) (design.HostSpec, bool) {
	return s.registry.Spec(microscopeType)
}

// Describe returns the descriptor for one microscope type.
func (s *Service) Describe(microscopeType string) (design.SpecDescriptor, error) {
	spec, ok := s.registry.Spec(microscopeType)
	if !ok {
		return design.SpecDescriptor{}, &design.UnknownMicroscopeTypeError{Type: microscopeType}
	}
	return spec.Descriptor(), nil
}

// Template returns the default input document for one microscope type.
func (s *Service) Template(microscopeType string) (map[string]any, error) {
	spec, ok := s.registry.Spec(microscopeType)
	if !ok {
		return nil, &design.UnknownMicroscopeTypeError{Type: microscopeType}
	}
	return spec.DefaultInputs(), nil
}

// Run evaluates a design: it resolves the microscope type, computes every
// formula in declaration order, sweeps the constraints, and archives the
// record when an archive is configured. Constraint violations are part of the
// returned record, never an error.
func (s *Service) Run(ctx context.Context, microscopeType string, store *design.ParameterStore) (design.RunRecord, error) {
	var record design.RunRecord
	err := s.observed(ctx, opRun, func(ctx context.Context) error {
		spec, ok := s.registry.Spec(microscopeType)
		if !ok {
			return &design.UnknownMicroscopeTypeError{Type: microscopeType}
		}
		inputs, results, err := evaluate(spec, store)
		if err != nil {
			return err
		}
		violations := checkConstraints(spec, design.NewReview(design.NewParameterStore(inputs), results))

		record = design.RunRecord{
			ID:          s.newID(),
			Type:        spec.Type(),
			SpecVersion: spec.Version(),
			CreatedAt:   s.clock().UTC(),
			Inputs:      inputs,
			Results:     results,
			Violations:  violations,
		}
		if s.archive != nil {
			if err := s.archive.SaveRun(ctx, record); err != nil {
				return fmt.Errorf("archive run: %w", err)
			}
		}
		s.logger.Info("design run evaluated",
			"type", record.Type, "run_id", record.ID,
			"results", results.Len(), "violations", len(violations))
		return nil
	})
	if err != nil {
		return design.RunRecord{}, err
	}
	return record, nil
}

// GetRun retrieves one archived run by identifier.
func (s *Service) GetRun(ctx context.Context, id string) (design.RunRecord, bool, error) {
	var (
		record design.RunRecord
		found  bool
	)
	err := s.observed(ctx, opGetRun, func(ctx context.Context) error {
		if s.archive == nil {
			return ErrNoArchive
		}
		var err error
		record, found, err = s.archive.GetRun(ctx, id)
		return err
	})
	if err != nil {
		return design.RunRecord{}, false, err
	}
	return record, found, nil
}

// ListRuns returns archived runs, newest first.
func (s *Service) ListRuns(ctx context.Context, filter design.RunFilter) ([]design.RunRecord, error) {
	var records []design.RunRecord
	err := s.observed(ctx, opListRuns, func(ctx context.Context) error {
		if s.archive == nil {
			return ErrNoArchive
		}
		var err error
		records, err = s.archive.ListRuns(ctx, filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// observed wraps an operation with tracing and metrics.
func (s *Service) observed(ctx context.Context, operation string, fn func(context.Context) error) error {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, operation)
	err := fn(ctx)
	span.End(err)
	s.metrics.Observe(ctx, operation, err == nil, time.Since(started))
	return err
}
