package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"codeshrink/internal/compaction"
	"codeshrink/internal/config"
	cserrors "codeshrink/internal/errors"
	"codeshrink/internal/ingest"
	"codeshrink/internal/jobs"
	"codeshrink/internal/metrics"
	"codeshrink/internal/paths"
	"codeshrink/internal/slogutil"
	"codeshrink/internal/storage"
	"codeshrink/internal/syntax"
)

// app carries the per-invocation configuration and loggers.
type app struct {
	root   string
	cfg    *config.Config
	logs   *slogutil.LoggerFactory
	logger *slog.Logger
}

// newApp resolves the project root, loads and validates the config and
// builds a logger writing to stderr and to the subsystem log file.
func newApp(cmd *cobra.Command, subsystem string) (*app, error) {
	root, err := getRoot()
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfig(root)
	if err != nil {
		return nil, cserrors.New(cserrors.ConfigInvalid, "failed to load config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, cserrors.New(cserrors.ConfigInvalid, err.Error(), err)
	}

	var cliLevel slog.Level
	if verbosity > 0 || quiet {
		cliLevel = slogutil.LevelFromVerbosity(verbosity, quiet)
	}
	logs := slogutil.NewLoggerFactory(initializedRoot(root), cfg, cliLevel)
	console := slogutil.LevelFromVerbosity(verbosity, quiet)

	return &app{
		root:   root,
		cfg:    cfg,
		logs:   logs,
		logger: logs.TeeLogger(cmd.ErrOrStderr(), console, subsystem),
	}, nil
}

func (a *app) Close() {
	_ = a.logs.Close()
}

func getRoot() (string, error) {
	if rootFlag != "" {
		return filepath.Abs(rootFlag)
	}
	return os.Getwd()
}

// initializedRoot returns root when it holds a .codeshrink directory and ""
// otherwise, so one-off commands leave no files behind.
func initializedRoot(root string) string {
	if info, err := os.Stat(paths.GetDataDir(root)); err == nil && info.IsDir() {
		return root
	}
	return ""
}

// newCompactor builds the engine from the loaded config.
func (a *app) newCompactor(opts compaction.Options) *compaction.Compactor {
	if !syntax.IsAvailable() {
		a.logger.Debug("Parser unavailable, only pattern substitution will run")
	}
	return compaction.New(opts, syntax.NewParser(), a.logger)
}

// withTimeout bounds one compaction by limits.timeoutMs.
func (a *app) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(a.cfg.Limits.TimeoutMs)*time.Millisecond)
}

// services are the storage and job collaborators of the batch commands.
type services struct {
	db       *storage.DB
	cache    *storage.ArtifactCache
	store    *jobs.Store
	runner   *jobs.Runner
	metrics  *metrics.Metrics
	ingester *ingest.Ingester
}

// openServices opens the project databases and wires the job runner with
// the compaction handlers. The runner is not started.
func (a *app) openServices() (*services, error) {
	db, err := storage.Open(a.root, a.logger)
	if err != nil {
		return nil, cserrors.New(cserrors.StorageError, "failed to open cache database", err)
	}
	store, err := jobs.OpenStore(paths.GetJobsDBPath(a.root), a.logger)
	if err != nil {
		_ = db.Close()
		return nil, cserrors.New(cserrors.StorageError, "failed to open job store", err)
	}

	s := &services{db: db, store: store, metrics: metrics.New()}
	if a.cfg.Cache.Enabled {
		s.cache = storage.NewArtifactCache(db, time.Duration(a.cfg.Cache.TtlSeconds)*time.Second)
	}

	s.runner = jobs.NewRunner(store, a.logger, jobs.RunnerConfigFrom(a.cfg))
	s.runner.OnFinish(func(j jobs.Job) {
		s.metrics.RecordJob(string(j.Type), string(j.Status), j.Duration().Seconds())
	})

	handlers := ingest.NewHandlers(ingest.Deps{
		Compactor:     a.newCompactor(compaction.OptionsFromConfig(a.cfg)),
		Cache:         s.cache,
		DB:            db,
		Metrics:       s.metrics,
		MaxInputBytes: a.cfg.Limits.MaxInputBytes,
		Logger:        a.logger,
	})
	handlers.Register(s.runner)
	s.ingester = ingest.New(a.cfg, s.runner, s.metrics, a.logger)
	return s, nil
}

// writeMetrics exports the collectors to metrics.textfile, if configured.
func (s *services) writeMetrics(a *app) {
	if err := s.metrics.WriteToTextfile(a.cfg.Metrics.Textfile); err != nil {
		a.logger.Warn("Failed to write metrics textfile", "path", a.cfg.Metrics.Textfile, "error", err.Error())
	}
}

func (s *services) Close() {
	if s.runner.IsRunning() {
		_ = s.runner.Stop(10 * time.Second)
	}
	_ = s.store.Close()
	_ = s.db.Close()
}

// readInput reads a file, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cserrors.New(cserrors.UnsupportedInput, "cannot read "+path, err)
	}
	return data, nil
}

// printResponse formats resp and writes it to the command output.
func printResponse(cmd *cobra.Command, resp any, format string) error {
	out, err := FormatResponse(resp, OutputFormat(format))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
	return err
}
