package ingest

import (
	"context"
	"io/fs"
	"path/filepath"

	cserrors "codeshrink/internal/errors"
	"codeshrink/internal/paths"
)

// Candidate is a file selected for compaction.
type Candidate struct {
	Path     string
	RelPath  string
	Language string
	Size     int64
}

// Skip records a file left out of a run.
type Skip struct {
	RelPath string `json:"relPath" yaml:"relPath" toml:"relPath"`
	Code    string `json:"code" yaml:"code" toml:"code"`
	Reason  string `json:"reason" yaml:"reason" toml:"reason"`
}

// Collect walks root and returns the files to compact, sorted by path, plus
// the files it skipped. Directories listed in prune (absolute) and the data
// directory are not entered.
func Collect(ctx context.Context, root string, s Settings, prune ...string) ([]Candidate, []Skip, error) {
	filter, err := NewFilter(s.Include, s.Exclude)
	if err != nil {
		return nil, nil, cserrors.New(cserrors.ConfigInvalid, "invalid ingest pattern", err)
	}

	root, err = filepath.Abs(root)
	if err != nil {
		return nil, nil, err
	}

	pruned := make(map[string]bool, len(prune))
	for _, p := range prune {
		if abs, err := filepath.Abs(p); err == nil {
			pruned[abs] = true
		}
	}

	var cands []Candidate
	var skips []Skip

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if pruned[p] || paths.IsDataPath(rel) || filter.Excluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if rel == ManifestName || !d.Type().IsRegular() || !filter.Match(rel) {
			return nil
		}
		if IsBinaryName(d.Name()) {
			skips = append(skips, Skip{RelPath: rel, Code: string(cserrors.UnsupportedInput), Reason: "binary file"})
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if s.MaxInputBytes > 0 && info.Size() > int64(s.MaxInputBytes) {
			skips = append(skips, Skip{RelPath: rel, Code: string(cserrors.InputTooLarge), Reason: "file exceeds limits.maxInputBytes"})
			return nil
		}

		cands = append(cands, Candidate{
			Path:     p,
			RelPath:  rel,
			Language: s.languageOf(rel),
			Size:     info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return cands, skips, nil
}
