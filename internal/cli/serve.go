package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"udesign/internal/adapters/reports"
	"udesign/internal/engine"
	"udesign/internal/infra/blob"
)

var (
	serveListen   string
	serveLockPath string
)

// serveLockTimeout is how long serve waits for the singleton lock.
const serveLockTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the design HTTP API",
	Long: `Serve the design API over HTTP: type listing, parameter validation,
design runs, async exports, and Prometheus metrics. Only one instance
runs per lock file.

Examples:
  udesign serve
  udesign serve --listen 127.0.0.1:9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveLockPath, "lock-file", "",
		"Singleton lock file (default <tmp>/udesign-serve.lock)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	unlock, err := acquireServeLock(serveLockPath)
	if err != nil {
		return err
	}
	defer unlock()

	reg := prometheus.NewRegistry()
	recorder, err := engine.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	store, err := openArchive(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	svc, err := newService(
		engine.WithLogger(logger),
		engine.WithMetricsRecorder(recorder),
		engine.WithArchive(store),
	)
	if err != nil {
		return err
	}

	blobStore, err := blob.Open(cmd.Context(), blob.Driver(cfg.Blob.Driver), blob.Options{
		Root:      cfg.Blob.Root,
		Bucket:    cfg.Blob.Bucket,
		Region:    cfg.Blob.Region,
		Endpoint:  cfg.Blob.Endpoint,
		PathStyle: cfg.Blob.PathStyle,
	})
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	worker := reports.NewWorker(svc, blobStore, &reports.MemoryAuditLog{})
	worker.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := worker.Stop(stopCtx); err != nil {
			logger.Warn("export worker did not drain", "error", err)
		}
	}()

	handler := reports.NewHandler(svc)
	handler.Exports = worker
	handler.Blobs = blobStore
	handler.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	listen := serveListen
	if listen == "" {
		listen = cfg.Listen
	}
	srv := &http.Server{Addr: listen, Handler: handler}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if srv.Shutdown(shutdownCtx) != nil {
			_ = srv.Close()
		}
	}()

	logger.Info("design api listening", "addr", listen)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// acquireServeLock takes the exclusive serve lock, returning the release
// function. A held lock means another serve instance is running.
func acquireServeLock(path string) (func(), error) {
	if path == "" {
		path = filepath.Join(os.TempDir(), "udesign-serve.lock")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	lock := flock.New(path)
	ctx, cancel := context.WithTimeout(context.Background(), serveLockTimeout)
	defer cancel()
	locked, err := lock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("acquiring serve lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another serve instance holds %s", path)
	}
	return func() { _ = lock.Unlock() }, nil
}
