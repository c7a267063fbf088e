package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"codeshrink/internal/config"
	"codeshrink/internal/syntax"
)

// ManifestName is the per-tree ingest manifest at the tree root.
const ManifestName = ".codeshrink.toml"

// Manifest overrides ingest settings for one tree.
//
//	include = ["src/**"]
//	exclude = ["**/testdata/**"]
//	session_scope = "project"
//	max_input_bytes = 524288
//
//	[languages]
//	".pyi" = "python"
type Manifest struct {
	Include       []string          `toml:"include"`
	Exclude       []string          `toml:"exclude"`
	SessionScope  string            `toml:"session_scope"`
	MaxInputBytes int               `toml:"max_input_bytes"`
	Languages     map[string]string `toml:"languages"`
}

// LoadManifest reads the manifest of the tree at root. A missing manifest
// yields an empty one.
func LoadManifest(root string) (*Manifest, error) {
	var m Manifest
	p := filepath.Join(root, ManifestName)
	if _, err := toml.DecodeFile(p, &m); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Manifest{}, nil
		}
		return nil, fmt.Errorf("failed to parse %s: %w", p, err)
	}
	return &m, nil
}

// Session scopes.
const (
	ScopeDocument = "document"
	ScopeProject  = "project"
)

// Settings is the effective ingest configuration for one run.
type Settings struct {
	Include       []string
	Exclude       []string
	SessionScope  string
	MaxInputBytes int
	// Languages maps a lowercase extension with its dot to a language.
	Languages map[string]syntax.Language
}

// ResolveSettings layers the manifest over the config. Manifest include
// patterns replace the configured ones; exclude patterns are added.
func ResolveSettings(cfg *config.Config, m *Manifest) (Settings, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if m == nil {
		m = &Manifest{}
	}

	s := Settings{
		Include:       cfg.Ingest.Include,
		Exclude:       append(append([]string{}, cfg.Ingest.Exclude...), m.Exclude...),
		SessionScope:  cfg.Ingest.SessionScope,
		MaxInputBytes: cfg.Limits.MaxInputBytes,
		Languages:     make(map[string]syntax.Language),
	}
	if len(m.Include) > 0 {
		s.Include = m.Include
	}
	if m.SessionScope != "" {
		s.SessionScope = m.SessionScope
	}
	if m.MaxInputBytes > 0 {
		s.MaxInputBytes = m.MaxInputBytes
	}
	for ext, lang := range m.Languages {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		s.Languages[ext] = syntax.ParseLanguage(lang)
	}

	if s.SessionScope == "" {
		s.SessionScope = ScopeDocument
	}
	if s.SessionScope != ScopeDocument && s.SessionScope != ScopeProject {
		return s, fmt.Errorf("invalid session scope %q", s.SessionScope)
	}
	return s, nil
}

// LoadSettings resolves the settings for the tree at root.
func LoadSettings(cfg *config.Config, root string) (Settings, error) {
	m, err := LoadManifest(root)
	if err != nil {
		return Settings{}, err
	}
	return ResolveSettings(cfg, m)
}

// Filter builds the path filter of s.
func (s Settings) Filter() (*Filter, error) {
	return NewFilter(s.Include, s.Exclude)
}

func (s Settings) languageOf(name string) string {
	if lang, ok := s.Languages[strings.ToLower(filepath.Ext(name))]; ok {
		return string(lang)
	}
	return ""
}
