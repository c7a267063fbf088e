package slogutil

import (
	"io"
	"log/slog"

	"codeshrink/internal/config"
	"codeshrink/internal/paths"
)

// Subsystems with their own log file under .codeshrink/logs.
const (
	SubsystemCompact = "codeshrink"
	SubsystemWatch   = "watch"
	SubsystemJobs    = "jobs"
)

// LoggerFactory creates loggers for the CLI subsystems.
// Level precedence: CLI flags > config (including CODESHRINK_LOG_LEVEL) > info.
type LoggerFactory struct {
	root     string
	config   *config.Config
	cliLevel slog.Level // 0 means not set
	closers  []io.Closer
}

// NewLoggerFactory creates a new logger factory.
// cliLevel should be 0 if no CLI override was specified.
func NewLoggerFactory(root string, cfg *config.Config, cliLevel slog.Level) *LoggerFactory {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &LoggerFactory{
		root:     root,
		config:   cfg,
		cliLevel: cliLevel,
	}
}

// FileLogger returns a logger writing to <root>/.codeshrink/logs/<subsystem>.log.
// Any failure to open the file yields a discard logger; logging must never
// block compaction.
func (f *LoggerFactory) FileLogger(subsystem string) *slog.Logger {
	if f.root == "" {
		return NewDiscardLogger()
	}
	if _, err := paths.EnsureLogsDir(f.root); err != nil {
		return NewDiscardLogger()
	}

	logger, closer, err := NewFileLoggerWithRotation(
		paths.GetLogPath(f.root, subsystem),
		f.EffectiveLevel(),
		f.config.Logging.Format,
		f.config.Logging.MaxSize,
		f.config.Logging.MaxBackups,
	)
	if err != nil {
		return NewDiscardLogger()
	}

	f.closers = append(f.closers, closer)
	return logger
}

// TeeLogger returns a logger writing to console at consoleLevel and to the
// subsystem log file at the effective level. Console lines carry the
// subsystem as a prefix.
func (f *LoggerFactory) TeeLogger(console io.Writer, consoleLevel slog.Level, subsystem string) *slog.Logger {
	file := f.FileLogger(subsystem)
	consoleHandler := NewHandler(console, &slog.HandlerOptions{Level: consoleLevel}).
		WithAttrs([]slog.Attr{slog.String(AttrSubsystem, subsystem)})
	return NewTeeLogger(consoleHandler, file.Handler())
}

// EffectiveLevel returns the level for file loggers.
func (f *LoggerFactory) EffectiveLevel() slog.Level {
	if f.cliLevel != 0 {
		return f.cliLevel
	}
	if f.config.Logging.Level != "" {
		return LevelFromString(f.config.Logging.Level)
	}
	return slog.LevelInfo
}

// Close closes all open log files.
func (f *LoggerFactory) Close() error {
	var firstErr error
	for _, c := range f.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.closers = nil
	return firstErr
}
