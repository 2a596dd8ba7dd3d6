// Package app is the orchestrator for the command line interface. Each command loads
// the configuration, sets up logging and the database and runs its part of the
// ingestion system.
package app

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rorycl/orderingest/config"
	"github.com/rorycl/orderingest/db"
	"github.com/rorycl/orderingest/ingest"
	"github.com/rorycl/orderingest/internal/mounts"
	"github.com/rorycl/orderingest/internal/watcher"
	"github.com/rorycl/orderingest/platform"
	"github.com/rorycl/orderingest/source"
	"github.com/rorycl/orderingest/web"
)

// processedTimeFormat prefixes the names of files moved to the processed directory.
const processedTimeFormat = "20060102T150405"

// App is the central orchestrator for the application's business logic.
type App struct {
	out    io.Writer // command output
	logOut io.Writer // log output
}

// New creates and returns a new App writing to stdout and logging to stderr.
func New() *App {
	return &App{
		out:    os.Stdout,
		logOut: os.Stderr,
	}
}

// NewLogger returns a structured logger writing human readable lines to w, using
// charmbracelet/log as the slog handler.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	handler := log.NewWithOptions(w, log.Options{
		Level:           log.Level(level),
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
	})
	return slog.New(handler)
}

// runtime holds the components a command needs.
type runtime struct {
	cfg      *config.Config
	log      *slog.Logger
	db       *db.DB
	registry *platform.Registry
	ingester *ingest.Ingester
	metrics  *ingest.Metrics
}

// setup loads the configuration at cfgPath and connects the components. A serving
// runtime records metrics and only fetches http(s) locators. The returned runtime
// must be closed.
func (a *App) setup(cfgPath string, serving bool) (*runtime, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger := NewLogger(a.logOut, cfg.LogLevel)

	sqlMount, err := mounts.NewFileMount("sql", db.SQLEmbeddedFS, cfg.SQLDir)
	if err != nil {
		return nil, fmt.Errorf("could not mount sql fs: %w", err)
	}
	logger.Debug("sql statements mounted", "mount", sqlMount.String())

	database, err := db.NewConnection(cfg.DatabasePath, sqlMount, logger)
	if err != nil {
		return nil, fmt.Errorf("database setup error: %w", err)
	}

	rt := &runtime{
		cfg:      cfg,
		log:      logger,
		db:       database,
		registry: platform.NewRegistry(),
	}
	opts := []ingest.Option{ingest.WithFailedRowAudit(cfg.Ingest.RecordFailedRows)}
	var fetchOpts []source.FetcherOption
	if serving {
		rt.metrics = ingest.NewMetrics()
		opts = append(opts, ingest.WithMetrics(rt.metrics))
		fetchOpts = append(fetchOpts, source.WithRemoteOnly())
	}
	fetcher := source.NewFetcher(&http.Client{Timeout: cfg.Ingest.HTTPTimeout}, logger, fetchOpts...)
	rt.ingester = ingest.New(database, rt.registry, fetcher, logger, opts...)
	return rt, nil
}

// Close closes the runtime's database.
func (rt *runtime) Close() error {
	return rt.db.Close()
}

// Ingest runs a single ingestion batch for locator and prints the result. An error
// is returned if the batch failed.
func (a *App) Ingest(ctx context.Context, cfgPath, locator string) error {
	rt, err := a.setup(cfgPath, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	result := rt.ingester.Run(ctx, locator)
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	if result.Status != ingest.StatusOK {
		return fmt.Errorf("ingest failed: %s", result.Message)
	}
	return nil
}

// Serve runs the http api until ctx is cancelled.
func (a *App) Serve(ctx context.Context, cfgPath string) error {
	rt, err := a.setup(cfgPath, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	webApp, err := web.New(rt.log, rt.cfg, rt.db, rt.ingester, rt.registry, rt.metrics)
	if err != nil {
		return err
	}
	return webApp.StartServer(ctx)
}

// Watch ingests the files already in the watch directory, then each file written to
// it until ctx is cancelled. Processed files are moved to the processed directory.
func (a *App) Watch(ctx context.Context, cfgPath string) error {
	rt, err := a.setup(cfgPath, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	if !rt.cfg.WatchEnabled() {
		return errors.New("watch.dir is not configured")
	}
	if err := os.MkdirAll(rt.cfg.Watch.ProcessedDir, 0755); err != nil {
		return fmt.Errorf("could not create processed dir: %w", err)
	}

	fw, err := watcher.New(rt.cfg.Watch.Dir, rt.cfg.Watch.Suffixes)
	if err != nil {
		return err
	}
	existing, err := fw.Existing()
	if err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- fw.Watch(ctx)
	}()

	rt.log.Info("watching for order files", "dir", rt.cfg.Watch.Dir, "suffixes", strings.Join(rt.cfg.Watch.Suffixes, ","))
	for _, path := range existing {
		a.processFile(ctx, rt, path)
	}
	for path := range fw.Files() {
		a.processFile(ctx, rt, path)
	}

	if err := <-errChan; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// processFile ingests a watched file and moves it to the processed directory. A file
// whose batch was interrupted is left in place to be retried.
func (a *App) processFile(ctx context.Context, rt *runtime, path string) {
	if ctx.Err() != nil {
		return
	}
	result := rt.ingester.Run(ctx, path)
	if result.Skipped > 0 {
		rt.log.Warn("file left in place", "file", path, "skipped", result.Skipped)
		return
	}

	name := time.Now().Format(processedTimeFormat) + "_" + filepath.Base(path)
	if result.Status != ingest.StatusOK {
		name = "failed_" + name
	}
	target := filepath.Join(rt.cfg.Watch.ProcessedDir, name)
	if err := os.Rename(path, target); err != nil {
		rt.log.Error("could not move processed file", "file", path, "error", err)
		return
	}
	rt.log.Info("file processed", "file", target, "status", result.Status, "message", result.Message)
}

// Platforms prints the supported platforms and their columns.
func (a *App) Platforms(ctx context.Context) error {
	registry := platform.NewRegistry()
	for _, name := range registry.Platforms() {
		schema, err := registry.Lookup(string(name))
		if err != nil {
			return err
		}
		columns := make([]string, len(schema.Columns))
		for i, c := range schema.Columns {
			columns[i] = c.Column
		}
		if _, err := fmt.Fprintf(a.out, "%s: %s\n", name, strings.Join(columns, ", ")); err != nil {
			return err
		}
	}
	return nil
}

// FailedRows prints the failed rows recorded for a batch as csv.
func (a *App) FailedRows(ctx context.Context, cfgPath, batchID string) error {
	rt, err := a.setup(cfgPath, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	rows, err := rt.db.FailedRowsGet(ctx, batchID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("no failed rows recorded for batch %q", batchID)
	}

	w := csv.NewWriter(a.out)
	_ = w.Write([]string{"row_number", "order_id", "error", "raw_row"})
	for _, r := range rows {
		_ = w.Write([]string{fmt.Sprint(r.RowNumber), r.OrderID, r.Error, r.RawRow})
	}
	w.Flush()
	return w.Error()
}

// ExportSQL writes the embedded sql statement files to dir, for use as the sql_dir
// override.
func (a *App) ExportSQL(ctx context.Context, dir string) error {
	sqlMount, err := mounts.NewFileMount("sql", db.SQLEmbeddedFS, "")
	if err != nil {
		return err
	}
	written, err := sqlMount.Materialize(dir)
	if err != nil {
		return err
	}
	for _, w := range written {
		if _, err := fmt.Fprintln(a.out, w); err != nil {
			return err
		}
	}
	return nil
}
