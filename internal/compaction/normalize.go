package compaction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"codeshrink/internal/slogutil"
	"codeshrink/internal/syntax"
)

// TokenSource produces the lexical token stream of a document.
// *syntax.Parser satisfies it.
type TokenSource interface {
	Tokens(ctx context.Context, source []byte, lang syntax.Language) ([]syntax.Token, error)
}

// structural bytes never get a separating space next to them.
const structural = "{},:;=()[]"

// Normalizer strips comments and collapses insignificant whitespace while
// copying string-like literals byte for byte.
type Normalizer struct {
	source TokenSource
	logger *slog.Logger
}

// NewNormalizer creates a Normalizer. A nil logger discards output.
func NewNormalizer(source TokenSource, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Normalizer{source: source, logger: logger}
}

// Normalize returns the normalized text of unit. Languages without lexical
// rules pass through unchanged. When tokenization fails the input is returned
// together with the error so the caller can record a fail-open.
func (n *Normalizer) Normalize(ctx context.Context, unit SourceUnit) (string, error) {
	if !syntax.HasLexicalRules(unit.Language) {
		return unit.Text, nil
	}

	tokens, err := n.source.Tokens(ctx, []byte(unit.Text), unit.Language)
	if err != nil {
		return unit.Text, fmt.Errorf("normalize %s: %w", unit.Language, err)
	}

	out := collapse(unit.Text, tokens)
	n.logger.Debug("Normalized source",
		"path", unit.Path,
		"language", unit.Language,
		"tokens", len(tokens),
		"before", len(unit.Text),
		"after", len(out),
	)
	return out, nil
}

// collapse rebuilds text from its token stream. Comments count as whitespace.
// Any run of whitespace becomes one space, or nothing when it touches a
// structural character or the ends of the text.
func collapse(text string, tokens []syntax.Token) string {
	w := &spacer{}
	w.b.Grow(len(text))

	pos := 0
	for _, tok := range tokens {
		if tok.Start < pos || tok.End < tok.Start || tok.End > len(text) {
			continue
		}
		w.gap(text[pos:tok.Start])
		pos = tok.End

		seg := text[tok.Start:tok.End]
		switch {
		case tok.Kind == syntax.TokenComment:
			w.pending = true
		case tok.Kind == syntax.TokenCode && isBlank(seg):
			w.pending = true
		default:
			w.emit(seg)
		}
	}
	w.gap(text[pos:])
	return w.b.String()
}

type spacer struct {
	b       strings.Builder
	pending bool
	last    byte
}

// gap handles bytes between tokens. They are normally whitespace, but error
// recovery can leave other characters that must survive.
func (w *spacer) gap(s string) {
	start := -1
	for i, r := range s {
		if unicode.IsSpace(r) {
			if start >= 0 {
				w.emit(s[start:i])
				start = -1
			}
			w.pending = true
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		w.emit(s[start:])
	}
}

func (w *spacer) emit(seg string) {
	if seg == "" {
		return
	}
	if w.pending && w.b.Len() > 0 &&
		!strings.ContainsRune(structural, rune(w.last)) &&
		!strings.ContainsRune(structural, rune(seg[0])) {
		w.b.WriteByte(' ')
	}
	w.pending = false
	w.b.WriteString(seg)
	w.last = seg[len(seg)-1]
}

// isBlank reports whether s is empty or whitespace only.
func isBlank(s string) bool {
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if !unicode.IsSpace(r) {
			return false
		}
		s = s[size:]
	}
	return true
}
