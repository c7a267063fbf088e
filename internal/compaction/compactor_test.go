package compaction

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"codeshrink/internal/config"
	"codeshrink/internal/rename"
	"codeshrink/internal/syntax"
)

// stubParser lexes with fakeLexer and reports no identifiers unless told to.
type stubParser struct {
	fakeLexer
	identErr error
	panics   bool
}

func (p *stubParser) Tokens(ctx context.Context, src []byte, lang syntax.Language) ([]syntax.Token, error) {
	if p.panics {
		panic("tokenizer exploded")
	}
	return p.fakeLexer.Tokens(ctx, src, lang)
}

func (p *stubParser) Identifiers(_ context.Context, _ []byte, _ syntax.Language) ([]syntax.Identifier, error) {
	return nil, p.identErr
}

func TestCompact_PassThroughLanguage(t *testing.T) {
	c := New(DefaultOptions(), &stubParser{}, nil)

	line := "def process_item(item):"
	var b strings.Builder
	for i := 1; i <= 5; i++ {
		b.WriteString(line)
		b.WriteString(strings.Repeat("x", i))
		b.WriteString("\n")
	}
	text := b.String()

	res := c.Compact(context.Background(), SourceUnit{Text: text, Language: "text"})
	if len(res.FailOpen) != 0 {
		t.Errorf("unexpected fail-open stages: %v", res.FailOpen)
	}
	if !strings.HasPrefix(res.Artifact, HeaderPrefix) {
		t.Fatalf("artifact lacks header: %q", res.Artifact)
	}
	if len(res.Dictionary) == 0 {
		t.Error("expected dictionary entries")
	}
	if got := Expand(res.Artifact); got != text {
		t.Errorf("Expand = %q, want %q", got, text)
	}
	if res.Report.OriginalChars != len(text) || res.Report.CompactedChars >= len(text) {
		t.Errorf("unexpected report %+v", res.Report)
	}
}

func TestCompact_ShortInput(t *testing.T) {
	c := New(DefaultOptions(), &stubParser{}, nil)
	res := c.Compact(context.Background(), SourceUnit{Text: "x  =  1", Language: syntax.LangPython})

	if res.Artifact != HeaderPrefix+"\nx=1" {
		t.Errorf("artifact = %q", res.Artifact)
	}
	if len(res.Dictionary) != 0 {
		t.Errorf("expected empty dictionary, got %+v", res.Dictionary)
	}
}

func TestCompact_EmptyInput(t *testing.T) {
	c := New(DefaultOptions(), &stubParser{}, nil)
	res := c.Compact(context.Background(), SourceUnit{})
	if res.Artifact != HeaderPrefix+"\n" {
		t.Errorf("artifact = %q", res.Artifact)
	}
	if res.Report.Ratio != 100 {
		t.Errorf("ratio = %v, want 100", res.Report.Ratio)
	}
}

func TestCompact_FailOpen(t *testing.T) {
	parser := &stubParser{fakeLexer: fakeLexer{err: errors.New("no grammar")}, identErr: syntax.ErrSyntax}
	c := New(DefaultOptions(), parser, nil)

	text := "value  =  compute(value)  # tail"
	res := c.Compact(context.Background(), SourceUnit{Text: text, Language: syntax.LangPython, Path: "broken.py"})

	if !slices.Contains(res.FailOpen, StageNormalize) || !slices.Contains(res.FailOpen, StageRename) {
		t.Errorf("FailOpen = %v, want normalize and rename", res.FailOpen)
	}
	if got := Expand(res.Artifact); got != text {
		t.Errorf("Expand = %q, want original text", got)
	}
}

func TestCompact_RecoversPanic(t *testing.T) {
	c := New(DefaultOptions(), &stubParser{panics: true}, nil)
	text := "print(1)"
	res := c.Compact(context.Background(), SourceUnit{Text: text, Language: syntax.LangPython})

	if res.Artifact != text {
		t.Errorf("artifact = %q, want input", res.Artifact)
	}
	if !slices.Contains(res.FailOpen, StageInternal) {
		t.Errorf("FailOpen = %v, want internal", res.FailOpen)
	}
}

func TestCompact_Cancelled(t *testing.T) {
	c := New(DefaultOptions(), &stubParser{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	text := strings.Repeat("repeated_statement_here();", 10)
	res := c.Compact(ctx, SourceUnit{Text: text, Language: "text"})
	if !slices.Contains(res.FailOpen, StageDetect) {
		t.Errorf("FailOpen = %v, want detect", res.FailOpen)
	}
	if got := Expand(res.Artifact); got != text {
		t.Error("cancelled compaction must still expand to its body")
	}
}

func TestCompact_NeverPanics(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	langs := []syntax.Language{syntax.LangPython, syntax.LangJavaScript, "text", ""}
	c := New(DefaultOptions(), &stubParser{}, nil)

	for i := 0; i < 50; i++ {
		buf := make([]byte, rng.Intn(300))
		for j := range buf {
			// Bias towards a small alphabet so patterns repeat.
			if rng.Intn(4) == 0 {
				buf[j] = byte(rng.Intn(256))
			} else {
				buf[j] = "ab#;= \n\\"[rng.Intn(8)]
			}
		}
		unit := SourceUnit{Text: string(buf), Language: langs[i%len(langs)]}

		res := c.Compact(context.Background(), unit)
		if res == nil {
			t.Fatalf("input %d: nil result", i)
		}
		if !strings.HasPrefix(res.Artifact, HeaderPrefix) && !slices.Contains(res.FailOpen, StageInternal) {
			t.Errorf("input %d: artifact without header", i)
		}
		if len(res.Dictionary) > MaxDictionaryEntries {
			t.Errorf("input %d: %d entries", i, len(res.Dictionary))
		}
		if res.Report.OriginalChars < 0 || res.Report.CompactedChars < 0 {
			t.Errorf("input %d: bad report %+v", i, res.Report)
		}
	}
}

func TestCompactWithSession_SharedAcrossDocuments(t *testing.T) {
	c := New(DefaultOptions(), &stubParser{}, nil)
	sess := c.NewSession()
	if _, err := sess.Assign("already_mapped", nil); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	c.CompactWithSession(context.Background(), SourceUnit{Text: "a = 1", Language: syntax.LangPython}, sess)
	if sess.Len() != 1 {
		t.Errorf("session should be left intact, Len = %d", sess.Len())
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Compaction.DetectStrategy = "scan"
	cfg.Compaction.RenameIdentifiers = false
	cfg.Compaction.IDScheme = "legacy"

	opts := OptionsFromConfig(cfg)
	if opts.Strategy != StrategyScan || opts.RenameIdentifiers || opts.IDScheme != rename.SchemeLegacy {
		t.Errorf("unexpected options %+v", opts)
	}

	cfg.Compaction.DetectStrategy = "bogus"
	cfg.Compaction.IDScheme = "bogus"
	opts = OptionsFromConfig(cfg)
	if opts.Strategy != StrategyIndexed || opts.IDScheme != rename.SchemeColumn {
		t.Errorf("invalid values should fall back to defaults, got %+v", opts)
	}

	if OptionsFromConfig(nil) != DefaultOptions() {
		t.Error("nil config should give defaults")
	}
}

func TestNewSession_UsesScheme(t *testing.T) {
	opts := DefaultOptions()
	opts.IDScheme = rename.SchemeLegacy
	sess := New(opts, &stubParser{}, nil).NewSession()
	if sess.Generator().Scheme() != rename.SchemeLegacy {
		t.Errorf("scheme = %s", sess.Generator().Scheme())
	}
}

func TestOptions_Fingerprint(t *testing.T) {
	a := DefaultOptions()
	b := DefaultOptions()
	b.Strategy = StrategyScan
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("fingerprints should differ")
	}
	if a.Fingerprint() != DefaultOptions().Fingerprint() {
		t.Error("fingerprint should be stable")
	}
}

func TestCompactFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	content := "plain  notes\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	c := New(DefaultOptions(), &stubParser{}, nil)
	res, err := c.CompactFile(context.Background(), path)
	if err != nil {
		t.Fatalf("CompactFile: %v", err)
	}
	if Expand(res.Artifact) != content {
		t.Errorf("pass-through file changed: %q", res.Artifact)
	}

	if _, err := c.CompactFile(context.Background(), filepath.Join(dir, "missing.py")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestNewSourceUnit(t *testing.T) {
	tests := []struct {
		path string
		want syntax.Language
	}{
		{"src/app.py", syntax.LangPython},
		{"web/index.JS", syntax.LangJavaScript},
		{"README.md", "md"},
		{"Makefile", ""},
	}
	for _, tt := range tests {
		if got := NewSourceUnit(tt.path, "").Language; got != tt.want {
			t.Errorf("NewSourceUnit(%q).Language = %q, want %q", tt.path, got, tt.want)
		}
	}
}
