package compaction

import (
	"sort"
	"strconv"
	"strings"
)

const (
	// HeaderPrefix starts the dictionary header line of every artifact.
	HeaderPrefix = "# dict:"

	// MaxDictionaryEntries bounds the dictionary size.
	MaxDictionaryEntries = 30

	// savingsMargin is the minimum number of characters a pattern must save
	// beyond its own dictionary entry to qualify.
	savingsMargin = 10

	markerFence = "##"
)

// Entry is one dictionary mapping from marker to pattern.
type Entry struct {
	Marker  string `json:"marker" yaml:"marker" toml:"marker"`
	Pattern string `json:"pattern" yaml:"pattern" toml:"pattern"`
}

// Dictionary is the ordered header of an artifact. Entry i uses Marker(i).
type Dictionary []Entry

// Marker returns the placeholder for dictionary index i.
func Marker(i int) string {
	return markerFence + strconv.Itoa(i) + markerFence
}

// Qualifies reports whether replacing p saves more than its entry costs:
// len*(count-1) > len+10, with len in characters.
func Qualifies(p Pattern) bool {
	l := p.Length()
	return l*(p.Count-1) > l+savingsMargin
}

// Substitutor replaces the best repeated patterns of a body with markers.
type Substitutor struct {
	maxEntries int
}

// NewSubstitutor creates a Substitutor. maxEntries <= 0 selects
// MaxDictionaryEntries.
func NewSubstitutor(maxEntries int) *Substitutor {
	if maxEntries <= 0 || maxEntries > MaxDictionaryEntries {
		maxEntries = MaxDictionaryEntries
	}
	return &Substitutor{maxEntries: maxEntries}
}

// Substitute returns the artifact for body and the dictionary it uses.
//
// Qualifying patterns are ranked by length*count, descending, with ties kept
// in discovery order, and only the first maxEntries of the ranking are
// considered. Patterns that start or end with '#' or contain "##" are never
// candidates, which keeps markers from being split or rewritten. A candidate
// is replaced only if it still occurs at least twice in the current body, so
// every entry written to the header is used; markers are numbered over the
// entries actually written.
//
// Bodies containing "##" followed by a digit get an empty dictionary; such
// text could read as a marker once placed next to one.
func (s *Substitutor) Substitute(body string, table *PatternTable) (string, Dictionary) {
	dict := Dictionary{}
	if table == nil || hasMarkerLikeRun(body) {
		return Render(dict, body), dict
	}

	candidates := rankCandidates(table.Entries())
	if len(candidates) > s.maxEntries {
		candidates = candidates[:s.maxEntries]
	}
	for _, c := range candidates {
		if strings.Count(body, c.Text) < 2 {
			continue
		}
		marker := Marker(len(dict))
		body = strings.ReplaceAll(body, c.Text, marker)
		dict = append(dict, Entry{Marker: marker, Pattern: c.Text})
	}
	return Render(dict, body), dict
}

// rankCandidates filters and orders patterns for substitution.
func rankCandidates(patterns []Pattern) []Pattern {
	out := patterns[:0]
	for _, p := range patterns {
		if !Qualifies(p) {
			continue
		}
		if strings.HasPrefix(p.Text, "#") || strings.HasSuffix(p.Text, "#") ||
			strings.Contains(p.Text, markerFence) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Length()*out[i].Count > out[j].Length()*out[j].Count
	})
	return out
}

func hasMarkerLikeRun(s string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], markerFence)
		if j < 0 {
			return false
		}
		k := i + j + len(markerFence)
		if k < len(s) && isDigit(s[k]) {
			return true
		}
		i += j + 1
	}
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

// Render writes the header line for dict followed by body.
func Render(dict Dictionary, body string) string {
	var b strings.Builder
	b.Grow(len(HeaderPrefix) + len(body) + 64)
	b.WriteString(HeaderPrefix)
	for i, e := range dict {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(e.Marker)
		b.WriteByte('=')
		b.WriteString(escapeField(e.Pattern))
	}
	b.WriteByte('\n')
	b.WriteString(body)
	return b.String()
}

// escapeField makes a pattern safe inside the single-line header.
func escapeField(s string) string {
	if !strings.ContainsAny(s, "\\;\n") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			b.WriteString(`\\`)
		case ';':
			b.WriteString(`\;`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
