package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"codeshrink/internal/compaction"
	cserrors "codeshrink/internal/errors"
	"codeshrink/internal/jobs"
	"codeshrink/internal/metrics"
	"codeshrink/internal/rename"
	"codeshrink/internal/slogutil"
	"codeshrink/internal/storage"
	"codeshrink/internal/syntax"
)

// Deps are the collaborators of the compaction job handlers. Cache, DB and
// Metrics are optional.
type Deps struct {
	Compactor     *compaction.Compactor
	Cache         *storage.ArtifactCache
	DB            *storage.DB
	Metrics       *metrics.Metrics
	MaxInputBytes int
	Logger        *slog.Logger
}

// Handlers run compact_file and compact_group jobs.
type Handlers struct {
	Deps
}

// NewHandlers creates the job handlers.
func NewHandlers(d Deps) *Handlers {
	if d.Logger == nil {
		d.Logger = slogutil.NewDiscardLogger()
	}
	return &Handlers{Deps: d}
}

// Register installs the handlers on r.
func (h *Handlers) Register(r *jobs.Runner) {
	r.RegisterHandler(jobs.JobTypeCompactFile, h.CompactFile)
	r.RegisterHandler(jobs.JobTypeCompactGroup, h.CompactGroup)
}

// CompactFile compacts one file with a fresh identifier session.
func (h *Handlers) CompactFile(ctx context.Context, job *jobs.Job, progress func(int)) (any, error) {
	scope, err := jobs.ParseCompactFileScope(job.Scope)
	if err != nil {
		return nil, err
	}
	res, err := h.compactOne(ctx, *scope, nil)
	if err != nil {
		h.recordFailure(*scope, err)
		return nil, err
	}
	return res, nil
}

// CompactGroup compacts the files of a group in order through one shared
// identifier session and persists the session's identifier map. A file that
// is too large or not text is recorded in the result and skipped.
func (h *Handlers) CompactGroup(ctx context.Context, job *jobs.Job, progress func(int)) (any, error) {
	scope, err := jobs.ParseCompactGroupScope(job.Scope)
	if err != nil {
		return nil, err
	}

	sess := h.Compactor.NewSession()
	result := jobs.GroupResult{SessionID: sess.ID, Files: make([]jobs.FileResult, 0, len(scope.Files))}

	for i, f := range scope.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := h.compactOne(ctx, f, sess)
		if err != nil {
			if !skippable(err) {
				return nil, err
			}
			h.recordFailure(f, err)
			res = jobs.FileResult{
				RelPath:   f.RelPath,
				ErrorCode: string(cserrors.CodeOf(err)),
				Error:     err.Error(),
			}
		}
		result.Files = append(result.Files, res)
		progress((i + 1) * 100 / len(scope.Files))
	}

	if h.DB != nil && sess.Len() > 0 {
		if err := h.DB.SaveIdentifierMap(ctx, sess); err != nil {
			return nil, cserrors.New(cserrors.StorageError, "failed to save identifier map", err)
		}
	}
	return result, nil
}

func skippable(err error) bool {
	return cserrors.Is(err, cserrors.InputTooLarge) || cserrors.Is(err, cserrors.UnsupportedInput)
}

// compactOne compacts scope.Source and writes the artifact. A nil sess means
// document scope: a fresh session and the artifact cache are used.
func (h *Handlers) compactOne(ctx context.Context, scope jobs.CompactFileScope, sess *rename.Session) (jobs.FileResult, error) {
	data, err := os.ReadFile(scope.Source)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return jobs.FileResult{}, cserrors.New(cserrors.UnsupportedInput, "file not found: "+scope.RelPath, err)
		}
		return jobs.FileResult{}, fmt.Errorf("failed to read %s: %w", scope.RelPath, err)
	}
	if h.MaxInputBytes > 0 && len(data) > h.MaxInputBytes {
		return jobs.FileResult{}, cserrors.New(cserrors.InputTooLarge,
			fmt.Sprintf("%s is %d bytes, limit is %d", scope.RelPath, len(data), h.MaxInputBytes), nil)
	}
	if !IsText(scope.Source, data) {
		return jobs.FileResult{}, cserrors.New(cserrors.UnsupportedInput, scope.RelPath+" is not a text file", nil)
	}

	unit := compaction.NewSourceUnit(scope.RelPath, string(data))
	if scope.Language != "" {
		unit.Language = syntax.Language(scope.Language)
	}

	out := jobs.FileResult{
		RelPath:  scope.RelPath,
		Output:   scope.Output,
		Language: string(unit.Language),
	}

	var artifact string
	if scope.NoCompact {
		artifact = unit.Text
		out.Report = compaction.NewReport(unit.Text, unit.Text)
	} else {
		res, cached, err := h.compact(ctx, unit, sess)
		if err != nil {
			return jobs.FileResult{}, err
		}
		artifact = res.Artifact
		out.Compressed = true
		out.Cached = cached
		out.Renamed = res.Renamed
		out.FailOpen = res.FailOpen
		out.Report = res.Report
	}

	if scope.Output != "" {
		if err := writeFile(scope.Output, artifact); err != nil {
			return jobs.FileResult{}, err
		}
	}

	h.recordFile(out)
	return out, nil
}

// compact runs the engine, consulting the cache in document scope. The
// engine fails open on cancellation, so ctx is checked afterwards to let the
// runner record a timeout.
func (h *Handlers) compact(ctx context.Context, unit compaction.SourceUnit, sess *rename.Session) (*compaction.Result, bool, error) {
	var key string
	if sess == nil && h.Cache != nil {
		key = storage.Key(unit.Language, h.Compactor.Options().Fingerprint(), unit.Text)
		res, ok, err := h.Cache.Get(ctx, key)
		if err != nil {
			h.Logger.Warn("Artifact cache lookup failed", "path", unit.Path, "error", err.Error())
		} else if ok {
			return res, true, nil
		}
	}

	var res *compaction.Result
	if sess == nil {
		res = h.Compactor.Compact(ctx, unit)
	} else {
		res = h.Compactor.CompactWithSession(ctx, unit, sess)
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	if key != "" {
		if err := h.Cache.Put(ctx, key, unit.Language, h.Compactor.Options().Fingerprint(), res); err != nil {
			h.Logger.Warn("Artifact cache store failed", "path", unit.Path, "error", err.Error())
		}
	}
	return res, false, nil
}

func (h *Handlers) recordFile(r jobs.FileResult) {
	if h.Metrics == nil {
		return
	}
	outcome := metrics.OutcomeCompacted
	if !r.Compressed {
		outcome = metrics.OutcomeCopied
	}
	stages := make([]string, len(r.FailOpen))
	for i, s := range r.FailOpen {
		stages[i] = string(s)
	}
	h.Metrics.RecordFile(metrics.FileResult{
		Language:       r.Language,
		Outcome:        outcome,
		OriginalChars:  r.Report.OriginalChars,
		CompactedChars: r.Report.CompactedChars,
		Renamed:        r.Renamed,
		FailOpen:       stages,
		Cached:         r.Cached,
	})
}

func (h *Handlers) recordFailure(scope jobs.CompactFileScope, err error) {
	h.Logger.Warn("File not compacted", "path", scope.RelPath, "error", err.Error())
	if h.Metrics == nil {
		return
	}
	outcome := metrics.OutcomeFailed
	if skippable(err) {
		outcome = metrics.OutcomeSkipped
	}
	lang := scope.Language
	if lang == "" {
		lang = string(compaction.NewSourceUnit(scope.RelPath, "").Language)
	}
	h.Metrics.RecordFile(metrics.FileResult{Language: lang, Outcome: outcome})
}

func writeFile(p, content string) error {
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}
