// Package compaction implements the lossy-but-expandable source compaction
// pipeline: normalization, repeated-pattern detection, optional identifier
// renaming, dictionary substitution and size reporting.
package compaction

import (
	"path/filepath"
	"strings"

	"codeshrink/internal/syntax"
)

// SourceUnit is one document handed to the engine.
type SourceUnit struct {
	Text     string
	Language syntax.Language
	// Path is informational; it only appears in logs.
	Path string
}

// NewSourceUnit builds a unit from a path and its content, deriving the
// language from the file extension. Unknown extensions are carried as their
// bare extension and treated as pass-through text.
func NewSourceUnit(path, text string) SourceUnit {
	ext := filepath.Ext(path)
	lang, ok := syntax.LanguageFromExtension(ext)
	if !ok {
		lang = syntax.Language(strings.ToLower(strings.TrimPrefix(ext, ".")))
	}
	return SourceUnit{Text: text, Language: lang, Path: path}
}

// Stage names a pipeline step for fail-open reporting.
type Stage string

const (
	StageNormalize Stage = "normalize"
	StageDetect    Stage = "detect"
	StageRename    Stage = "rename"
	// StageInternal marks a recovered panic; the input is returned as is.
	StageInternal Stage = "internal"
)
