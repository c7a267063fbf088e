package compaction

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"codeshrink/internal/config"
	"codeshrink/internal/rename"
	"codeshrink/internal/slogutil"
)

// Parser is the syntax collaborator of the pipeline.
type Parser interface {
	TokenSource
	rename.IdentifierSource
}

// Options configures a Compactor.
type Options struct {
	Strategy          Strategy
	RenameIdentifiers bool
	IDScheme          string
	MaxEntries        int
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		Strategy:          StrategyIndexed,
		RenameIdentifiers: true,
		IDScheme:          rename.SchemeColumn,
		MaxEntries:        MaxDictionaryEntries,
	}
}

// OptionsFromConfig reads engine options from the compaction config section.
// Invalid values fall back to defaults; config.Validate reports them.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	if cfg == nil {
		return opts
	}
	if s, err := ParseStrategy(cfg.Compaction.DetectStrategy); err == nil {
		opts.Strategy = s
	}
	opts.RenameIdentifiers = cfg.Compaction.RenameIdentifiers
	if _, err := rename.NewGenerator(cfg.Compaction.IDScheme); err == nil && cfg.Compaction.IDScheme != "" {
		opts.IDScheme = cfg.Compaction.IDScheme
	}
	return opts
}

// Fingerprint identifies the option set for cache keys.
func (o Options) Fingerprint() string {
	return fmt.Sprintf("%s|rename=%t|ids=%s|max=%d", o.Strategy, o.RenameIdentifiers, o.IDScheme, o.MaxEntries)
}

// Result is the outcome of one compaction.
type Result struct {
	Artifact   string     `json:"artifact" yaml:"artifact" toml:"artifact"`
	Report     Report     `json:"report" yaml:"report" toml:"report"`
	Dictionary Dictionary `json:"dictionary" yaml:"dictionary" toml:"dictionary"`
	// Renamed counts identifier occurrences replaced in this document.
	Renamed int `json:"renamed" yaml:"renamed" toml:"renamed"`
	// FailOpen lists stages that failed and were skipped.
	FailOpen []Stage `json:"failOpen,omitempty" yaml:"failOpen,omitempty" toml:"failOpen,omitempty"`
}

// Compactor runs the compaction pipeline. It holds no per-document state and
// is safe for concurrent use; identifier maps live in rename.Session values.
type Compactor struct {
	opts        Options
	normalizer  *Normalizer
	detector    *PatternDetector
	renamer     *rename.Renamer
	substitutor *Substitutor
	logger      *slog.Logger
}

// New creates a Compactor. A nil logger discards output.
func New(opts Options, parser Parser, logger *slog.Logger) *Compactor {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyIndexed
	}
	if opts.IDScheme == "" {
		opts.IDScheme = rename.SchemeColumn
	}
	return &Compactor{
		opts:        opts,
		normalizer:  NewNormalizer(parser, logger),
		detector:    NewPatternDetector(opts.Strategy, logger),
		renamer:     rename.NewRenamer(parser, logger),
		substitutor: NewSubstitutor(opts.MaxEntries),
		logger:      logger,
	}
}

// Options returns the options in use.
func (c *Compactor) Options() Options {
	return c.opts
}

// NewSession allocates an identifier session using the configured scheme.
func (c *Compactor) NewSession() *rename.Session {
	gen, err := rename.NewGenerator(c.opts.IDScheme)
	if err != nil {
		gen = rename.ColumnGenerator{}
	}
	return rename.NewSession(gen)
}

// Compact compacts one document with a fresh identifier session.
func (c *Compactor) Compact(ctx context.Context, unit SourceUnit) *Result {
	return c.CompactWithSession(ctx, unit, c.NewSession())
}

// CompactWithSession compacts unit, renaming through sess so that a group of
// documents shares one identifier map. sess must not be used concurrently.
//
// No stage error reaches the caller: a failing stage is skipped, recorded in
// Result.FailOpen and the best text so far carries on.
func (c *Compactor) CompactWithSession(ctx context.Context, unit SourceUnit, sess *rename.Session) (res *Result) {
	res = &Result{}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Compaction panicked, returning input",
				"path", unit.Path,
				"language", unit.Language,
				"panic", r,
			)
			res = &Result{
				Artifact: unit.Text,
				Report:   NewReport(unit.Text, unit.Text),
				FailOpen: append(res.FailOpen, StageInternal),
			}
		}
	}()

	normalized, err := c.normalizer.Normalize(ctx, unit)
	if err != nil {
		c.failOpen(res, StageNormalize, unit, err)
	}

	table, err := c.detector.Detect(ctx, normalized)
	if err != nil {
		c.failOpen(res, StageDetect, unit, err)
	}

	body := normalized
	if c.opts.RenameIdentifiers && rename.Supports(unit.Language) && sess != nil {
		body = c.renameAndNormalize(ctx, unit, sess, res, normalized)
	}

	artifact, dict := c.substitutor.Substitute(body, table)
	res.Artifact = artifact
	res.Dictionary = dict
	res.Report = NewReport(unit.Text, artifact)

	c.logger.Debug("Compacted source",
		"path", unit.Path,
		"language", unit.Language,
		"patterns", table.Len(),
		"entries", len(dict),
		"renamed", res.Renamed,
		"ratio", res.Report.Ratio,
	)
	return res
}

// renameAndNormalize renames the original text, whose layout the parser
// needs, and normalizes the result. On failure it returns fallback.
func (c *Compactor) renameAndNormalize(ctx context.Context, unit SourceUnit, sess *rename.Session, res *Result, fallback string) string {
	renamed, n, err := c.renamer.Rename(ctx, unit.Text, unit.Language, sess)
	if err != nil {
		c.failOpen(res, StageRename, unit, err)
		return fallback
	}
	if n == 0 {
		return fallback
	}
	body, err := c.normalizer.Normalize(ctx, SourceUnit{Text: renamed, Language: unit.Language, Path: unit.Path})
	if err != nil {
		c.failOpen(res, StageRename, unit, err)
		return fallback
	}
	res.Renamed = n
	return body
}

func (c *Compactor) failOpen(res *Result, stage Stage, unit SourceUnit, err error) {
	res.FailOpen = append(res.FailOpen, stage)
	c.logger.Warn("Compaction stage skipped",
		"stage", stage,
		"path", unit.Path,
		"language", unit.Language,
		"error", err,
	)
}

// CompactFile reads path and compacts it with a fresh session.
func (c *Compactor) CompactFile(ctx context.Context, path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return c.Compact(ctx, NewSourceUnit(path, string(data))), nil
}
