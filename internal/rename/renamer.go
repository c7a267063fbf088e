package rename

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"codeshrink/internal/slogutil"
	"codeshrink/internal/syntax"
)

var (
	// ErrParse is returned when the source cannot be parsed for renaming.
	ErrParse = errors.New("rename: parse failed")

	// ErrRender is returned when the rename edits cannot be applied.
	ErrRender = errors.New("rename: render failed")

	// ErrCollision is returned when a short name issued earlier in the session
	// equals a name that must stay unchanged in the current document.
	ErrCollision = errors.New("rename: short name collides with a kept name")
)

// IdentifierSource lists the identifier occurrences of a source file.
// *syntax.Parser satisfies it.
type IdentifierSource interface {
	Identifiers(ctx context.Context, source []byte, lang syntax.Language) ([]syntax.Identifier, error)
}

// Renamer replaces renameable identifiers with short names from a Session.
type Renamer struct {
	source IdentifierSource
	logger *slog.Logger
}

// NewRenamer creates a Renamer. A nil logger discards output.
func NewRenamer(source IdentifierSource, logger *slog.Logger) *Renamer {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Renamer{source: source, logger: logger}
}

// Supports reports whether identifiers of lang can be renamed.
func Supports(lang syntax.Language) bool {
	return syntax.HasIdentifierRules(lang)
}

// edit replaces text[start:end] with repl.
type edit struct {
	start, end int
	repl       string
}

// Rename rewrites text with every renameable identifier replaced by its
// session short name and returns the number of occurrences replaced. On any
// error the returned text is the input unchanged.
//
// A name is kept when it is reserved for lang, matches the dunder, private or
// constant predicates, or occurs anywhere in the document in a protected
// position (attribute, keyword argument, import, export). A name with no
// binding site in the document is free (a builtin or a global defined
// elsewhere) and is kept too, unless the session already renamed it while
// compacting an earlier document.
func (r *Renamer) Rename(ctx context.Context, text string, lang syntax.Language, sess *Session) (string, int, error) {
	if !Supports(lang) {
		return text, 0, fmt.Errorf("%w: %s", syntax.ErrUnsupportedLanguage, lang)
	}

	idents, err := r.source.Identifiers(ctx, []byte(text), lang)
	if err != nil {
		return text, 0, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(idents) == 0 {
		return text, 0, nil
	}

	bound := make(map[string]bool)
	for _, id := range idents {
		if id.Binding {
			bound[id.Name] = true
		}
	}

	kept := make(map[string]bool)
	for _, id := range idents {
		if id.Protected || IsReserved(lang, id.Name) {
			kept[id.Name] = true
			continue
		}
		if !bound[id.Name] {
			if _, ok := sess.Lookup(id.Name); !ok {
				kept[id.Name] = true
			}
		}
	}

	for _, id := range idents {
		if kept[id.Name] {
			continue
		}
		if short, ok := sess.Lookup(id.Name); ok && kept[short] {
			return text, 0, fmt.Errorf("%w: %s -> %s", ErrCollision, id.Name, short)
		}
	}

	reserved := ReservedNames(lang)
	avoid := func(candidate string) bool {
		return reserved[candidate] || kept[candidate]
	}

	edits := make([]edit, 0, len(idents))
	for _, id := range idents {
		if kept[id.Name] {
			continue
		}
		short, err := sess.Assign(id.Name, avoid)
		if err != nil {
			return text, 0, err
		}
		if short == id.Name {
			continue
		}
		edits = append(edits, edit{start: id.Start, end: id.End, repl: short})
	}

	out, err := render(text, edits)
	if err != nil {
		return text, 0, err
	}

	r.logger.Debug("Renamed identifiers",
		"language", lang,
		"occurrences", len(edits),
		"session", sess.ID,
		"mapped", sess.Len(),
	)
	return out, len(edits), nil
}

// render applies edits, which must be sorted by start and must not overlap.
func render(text string, edits []edit) (string, error) {
	var b strings.Builder
	b.Grow(len(text))

	pos := 0
	for _, e := range edits {
		if e.start < pos || e.end < e.start || e.end > len(text) {
			return "", fmt.Errorf("%w: bad edit range [%d,%d)", ErrRender, e.start, e.end)
		}
		b.WriteString(text[pos:e.start])
		b.WriteString(e.repl)
		pos = e.end
	}
	b.WriteString(text[pos:])
	return b.String(), nil
}
