// Package ingest compacts whole trees and zip archives through the job
// runner and writes the artifacts with an index file.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"codeshrink/internal/compaction"
	"codeshrink/internal/config"
	cserrors "codeshrink/internal/errors"
	"codeshrink/internal/jobs"
	"codeshrink/internal/metrics"
	"codeshrink/internal/slogutil"
)

// IndexName is the index file written at the root of the output directory.
const IndexName = "index.json"

// Options select the input and output of one run.
type Options struct {
	// Source is a directory or a .zip archive.
	Source string
	Out    string
	// NoCompact copies text files through unchanged.
	NoCompact bool
	// SessionScope overrides the configured scope when set.
	SessionScope string
}

// Index describes one run. It is written to IndexName.
type Index struct {
	Source       string            `json:"source" yaml:"source" toml:"source"`
	SessionScope string            `json:"sessionScope" yaml:"sessionScope" toml:"sessionScope"`
	SessionID    string            `json:"sessionId,omitempty" yaml:"sessionId,omitempty" toml:"sessionId,omitempty"`
	Files        []jobs.FileResult `json:"files" yaml:"files" toml:"files"`
	Skipped      []Skip            `json:"skipped,omitempty" yaml:"skipped,omitempty" toml:"skipped,omitempty"`
	Total        compaction.Report `json:"total" yaml:"total" toml:"total"`
}

// Ingester submits compaction jobs for a tree and collects their results.
type Ingester struct {
	cfg     *config.Config
	runner  *jobs.Runner
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates an Ingester. The runner must have the Handlers registered and
// be started. m may be nil.
func New(cfg *config.Config, runner *jobs.Runner, m *metrics.Metrics, logger *slog.Logger) *Ingester {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Ingester{cfg: cfg, runner: runner, metrics: m, logger: logger}
}

// Run compacts every selected file of opts.Source into opts.Out and writes
// the index. Files that fail individually are reported in the index; Run
// only fails when the run as a whole cannot proceed.
func (in *Ingester) Run(ctx context.Context, opts Options) (*Index, error) {
	source, err := filepath.Abs(opts.Source)
	if err != nil {
		return nil, err
	}
	out, err := filepath.Abs(opts.Out)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(source)
	if err != nil {
		return nil, cserrors.New(cserrors.UnsupportedInput, "cannot read source", err)
	}

	root := source
	if !info.IsDir() {
		if !IsZip(source) {
			return nil, cserrors.New(cserrors.UnsupportedInput, "source must be a directory or a .zip archive", nil)
		}
		tmp, err := os.MkdirTemp("", "codeshrink-ingest-*")
		if err != nil {
			return nil, err
		}
		defer func() { _ = os.RemoveAll(tmp) }()

		n, err := ExtractZip(source, tmp, int64(in.cfg.Limits.MaxInputBytes))
		if err != nil {
			return nil, cserrors.New(cserrors.UnsupportedInput, "cannot extract archive", err)
		}
		in.logger.Info("Extracted archive", "source", source, "files", n)
		root = tmp
	}

	manifest, err := LoadManifest(root)
	if err != nil {
		return nil, cserrors.New(cserrors.ConfigInvalid, "invalid ingest manifest", err)
	}
	settings, err := ResolveSettings(in.cfg, manifest)
	if err != nil {
		return nil, cserrors.New(cserrors.ConfigInvalid, "invalid ingest settings", err)
	}
	if opts.SessionScope != "" {
		settings.SessionScope = opts.SessionScope
	}

	cands, skips, err := Collect(ctx, root, settings, out)
	if err != nil {
		return nil, err
	}
	for _, s := range skips {
		in.recordSkip(s)
	}

	in.logger.Info("Ingesting tree",
		"source", source,
		"files", len(cands),
		"skipped", len(skips),
		"sessionScope", settings.SessionScope,
	)

	scopes := make([]jobs.CompactFileScope, len(cands))
	for i, c := range cands {
		scopes[i] = jobs.CompactFileScope{
			Source:    c.Path,
			Output:    filepath.Join(out, filepath.FromSlash(c.RelPath)),
			RelPath:   c.RelPath,
			NoCompact: opts.NoCompact,
			Language:  c.Language,
		}
	}

	idx := &Index{Source: source, SessionScope: settings.SessionScope, Skipped: skips}
	switch settings.SessionScope {
	case ScopeProject:
		err = in.runGroup(ctx, scopes, idx)
	default:
		err = in.runFiles(ctx, scopes, idx)
	}
	if err != nil {
		return nil, err
	}

	for _, f := range idx.Files {
		if f.ErrorCode == "" {
			idx.Total = idx.Total.Add(f.Report)
		}
	}
	if idx.Files == nil {
		idx.Files = []jobs.FileResult{}
	}

	if err := writeIndex(filepath.Join(out, IndexName), idx); err != nil {
		return nil, err
	}
	return idx, nil
}

// Update refreshes a directory previously ingested into opts.Out: changed
// files are recompacted, the artifacts of removed files are deleted and the
// index is rewritten. Paths are slash-separated and relative to
// opts.Source. In project scope, or without a readable index, the whole
// tree is ingested again.
func (in *Ingester) Update(ctx context.Context, opts Options, changed, removed []string) (*Index, error) {
	source, err := filepath.Abs(opts.Source)
	if err != nil {
		return nil, err
	}
	out, err := filepath.Abs(opts.Out)
	if err != nil {
		return nil, err
	}

	settings, err := LoadSettings(in.cfg, source)
	if err != nil {
		return nil, cserrors.New(cserrors.ConfigInvalid, "invalid ingest settings", err)
	}
	if opts.SessionScope != "" {
		settings.SessionScope = opts.SessionScope
	}
	prev, err := loadIndex(filepath.Join(out, IndexName))
	if settings.SessionScope == ScopeProject || err != nil {
		return in.Run(ctx, opts)
	}

	scopes := make([]jobs.CompactFileScope, 0, len(changed))
	for _, rel := range changed {
		scopes = append(scopes, jobs.CompactFileScope{
			Source:    filepath.Join(source, filepath.FromSlash(rel)),
			Output:    filepath.Join(out, filepath.FromSlash(rel)),
			RelPath:   rel,
			NoCompact: opts.NoCompact,
			Language:  settings.languageOf(rel),
		})
	}
	fresh := &Index{}
	if err := in.runFiles(ctx, scopes, fresh); err != nil {
		return nil, err
	}

	byPath := make(map[string]jobs.FileResult, len(prev.Files)+len(fresh.Files))
	var order []string
	for _, f := range append(prev.Files, fresh.Files...) {
		if _, ok := byPath[f.RelPath]; !ok {
			order = append(order, f.RelPath)
		}
		byPath[f.RelPath] = f
	}
	for _, rel := range removed {
		delete(byPath, rel)
		if err := os.Remove(filepath.Join(out, filepath.FromSlash(rel))); err != nil && !os.IsNotExist(err) {
			in.logger.Warn("Failed to remove artifact", "path", rel, "error", err.Error())
		}
	}

	idx := &Index{Source: source, SessionScope: settings.SessionScope, Skipped: prev.Skipped, Files: []jobs.FileResult{}}
	for _, rel := range order {
		f, ok := byPath[rel]
		if !ok {
			continue
		}
		idx.Files = append(idx.Files, f)
		if f.ErrorCode == "" {
			idx.Total = idx.Total.Add(f.Report)
		}
	}

	in.logger.Info("Updated artifacts", "changed", len(changed), "removed", len(removed))
	if err := writeIndex(filepath.Join(out, IndexName), idx); err != nil {
		return nil, err
	}
	return idx, nil
}

// runFiles submits one job per file and waits for all of them.
func (in *Ingester) runFiles(ctx context.Context, scopes []jobs.CompactFileScope, idx *Index) error {
	ids := make([]string, len(scopes))
	for i, scope := range scopes {
		job, err := jobs.NewJob(jobs.JobTypeCompactFile, scope)
		if err != nil {
			return err
		}
		if err := in.runner.Submit(job); err != nil {
			return err
		}
		ids[i] = job.ID
	}

	for i, id := range ids {
		job, err := in.runner.Await(ctx, id)
		if err != nil {
			return err
		}
		if job.Status != jobs.JobCompleted {
			idx.Files = append(idx.Files, failedFile(scopes[i], job))
			continue
		}
		var res jobs.FileResult
		if err := job.DecodeResult(&res); err != nil {
			return fmt.Errorf("invalid result of job %s: %w", id, err)
		}
		idx.Files = append(idx.Files, res)
	}
	return nil
}

// runGroup submits the whole tree as one group job sharing a session.
func (in *Ingester) runGroup(ctx context.Context, scopes []jobs.CompactFileScope, idx *Index) error {
	if len(scopes) == 0 {
		return nil
	}
	job, err := jobs.NewJob(jobs.JobTypeCompactGroup, jobs.CompactGroupScope{Files: scopes})
	if err != nil {
		return err
	}
	if err := in.runner.Submit(job); err != nil {
		return err
	}
	done, err := in.runner.Await(ctx, job.ID)
	if err != nil {
		return err
	}
	if done.Status != jobs.JobCompleted {
		code := cserrors.ErrorCode(done.ErrorCode)
		if code == "" {
			code = cserrors.InternalError
		}
		return cserrors.New(code, fmt.Sprintf("group job %s %s: %s", done.ID, done.Status, done.Error), nil)
	}

	var res jobs.GroupResult
	if err := done.DecodeResult(&res); err != nil {
		return fmt.Errorf("invalid result of job %s: %w", done.ID, err)
	}
	idx.SessionID = res.SessionID
	idx.Files = res.Files
	return nil
}

func failedFile(scope jobs.CompactFileScope, job *jobs.Job) jobs.FileResult {
	code := job.ErrorCode
	if code == "" {
		code = string(cserrors.InternalError)
	}
	msg := job.Error
	if job.Status == jobs.JobCancelled {
		msg = "job cancelled"
	}
	return jobs.FileResult{RelPath: scope.RelPath, Language: scope.Language, ErrorCode: code, Error: msg}
}

func (in *Ingester) recordSkip(s Skip) {
	in.logger.Debug("Skipping file", "path", s.RelPath, "code", s.Code, "reason", s.Reason)
	if in.metrics == nil {
		return
	}
	lang := string(compaction.NewSourceUnit(s.RelPath, "").Language)
	in.metrics.RecordFile(metrics.FileResult{Language: lang, Outcome: metrics.OutcomeSkipped})
}

func loadIndex(p string) (*Index, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, err
	}
	return &idx, nil
}

func writeIndex(p string, idx *Index) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(p, string(data)+"\n")
}
