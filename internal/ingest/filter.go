package ingest

import (
	"bytes"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
)

// binarySuffixes are skipped without being read.
var binarySuffixes = []string{".pyc", ".git", ".bin", ".exe", ".dll", ".so"}

// textExtensions are read as text without sniffing for binary content.
var textExtensions = map[string]bool{
	".txt": true, ".py": true, ".md": true, ".html": true, ".js": true, ".jsx": true,
	".ts": true, ".tsx": true, ".css": true, ".scss": true, ".sass": true, ".less": true,
	".json": true, ".yaml": true, ".yml": true, ".xml": true, ".csv": true, ".sql": true,
	".php": true, ".rb": true, ".java": true, ".c": true, ".cpp": true, ".h": true,
	".hpp": true, ".cs": true, ".go": true, ".rs": true, ".swift": true, ".kt": true,
	".kts": true, ".dart": true, ".lua": true, ".pl": true, ".pm": true, ".sh": true,
	".bash": true, ".r": true, ".groovy": true, ".scala": true, ".clj": true, ".coffee": true,
	".ex": true, ".exs": true, ".erl": true, ".hrl": true, ".hs": true, ".vue": true,
	".svelte": true, ".ipynb": true, ".ini": true, ".toml": true, ".env": true, ".conf": true,
	".config": true, ".properties": true, ".gradle": true, ".tf": true, ".tfvars": true,
	".graphql": true, ".gql": true, ".proto": true, ".sol": true, ".m": true, ".mm": true,
	".plist": true, ".bat": true, ".ps1": true, ".vbs": true, ".asm": true, ".s": true,
	".d": true, ".jl": true, ".elm": true, ".fs": true, ".fsx": true, ".dockerfile": true,
	".lock": true, ".rst": true, ".adoc": true, ".wiki": true, ".log": true, ".gitignore": true,
	".editorconfig": true, ".pug": true, ".jade": true, ".nix": true, ".vim": true,
	".dtd": true, ".xsl": true, ".xslt": true,
}

// IsBinaryName reports whether name has a known binary suffix.
func IsBinaryName(name string) bool {
	for _, suffix := range binarySuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// IsText reports whether data can be ingested as text. Files with a known
// text extension only need to be valid UTF-8; anything else must also be
// free of NUL bytes.
func IsText(name string, data []byte) bool {
	if !utf8.Valid(data) {
		return false
	}
	if textExtensions[strings.ToLower(filepath.Ext(name))] {
		return true
	}
	return bytes.IndexByte(data, 0) < 0
}

// Filter selects tree paths with doublestar include and exclude globs.
// Paths are slash-separated and relative to the tree root.
type Filter struct {
	include []string
	exclude []string
}

// NewFilter validates the patterns and builds a Filter. An empty include
// list includes everything.
func NewFilter(include, exclude []string) (*Filter, error) {
	for _, p := range append(append([]string{}, include...), exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid glob pattern %q", p)
		}
	}
	return &Filter{include: include, exclude: exclude}, nil
}

// Excluded reports whether rel matches an exclude pattern.
func (f *Filter) Excluded(rel string) bool {
	rel = path.Clean(filepath.ToSlash(rel))
	for _, p := range f.exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// Match reports whether the file at rel is ingested.
func (f *Filter) Match(rel string) bool {
	if f.Excluded(rel) {
		return false
	}
	if len(f.include) == 0 {
		return true
	}
	rel = path.Clean(filepath.ToSlash(rel))
	for _, p := range f.include {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}
