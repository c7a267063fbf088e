package compaction

import (
	"context"
	"fmt"
	"index/suffixarray"
	"log/slog"
	"strings"

	"codeshrink/internal/slogutil"
)

const (
	// MinPatternLength is the shortest candidate, in characters.
	MinPatternLength = 20
	// MaxPatternLength bounds candidates; lengths are in [Min, Max).
	MaxPatternLength = 100
)

// Strategy selects how occurrences are counted.
type Strategy string

const (
	// StrategyIndexed counts through a suffix array built once per document.
	StrategyIndexed Strategy = "indexed"
	// StrategyScan counts with a repeated forward search per candidate.
	StrategyScan Strategy = "scan"
)

// ParseStrategy resolves a configured strategy name. The empty string
// selects StrategyIndexed.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(s)) {
	case "", StrategyIndexed:
		return StrategyIndexed, nil
	case StrategyScan:
		return StrategyScan, nil
	default:
		return "", fmt.Errorf("unknown detect strategy %q", s)
	}
}

// Pattern is a repeated substring and its overlapping occurrence count.
type Pattern struct {
	Text  string `json:"text" yaml:"text" toml:"text"`
	Count int    `json:"count" yaml:"count" toml:"count"`
}

// Length returns the pattern length in characters.
func (p Pattern) Length() int {
	return runeLen(p.Text)
}

// PatternTable holds repeated substrings in discovery order.
type PatternTable struct {
	entries []Pattern
	index   map[string]int
}

// NewPatternTable creates an empty table.
func NewPatternTable() *PatternTable {
	return &PatternTable{index: make(map[string]int)}
}

func (t *PatternTable) add(text string, count int) {
	if _, ok := t.index[text]; ok {
		return
	}
	t.index[text] = len(t.entries)
	t.entries = append(t.entries, Pattern{Text: text, Count: count})
}

// Len returns the number of patterns.
func (t *PatternTable) Len() int {
	return len(t.entries)
}

// Count returns the occurrence count of text, or 0 when it is not a pattern.
func (t *PatternTable) Count(text string) int {
	if i, ok := t.index[text]; ok {
		return t.entries[i].Count
	}
	return 0
}

// Entries returns a copy of the patterns in discovery order.
func (t *PatternTable) Entries() []Pattern {
	out := make([]Pattern, len(t.entries))
	copy(out, t.entries)
	return out
}

// PatternDetector finds substrings of MinPatternLength to MaxPatternLength-1
// characters that occur more than once and contain an ASCII letter.
type PatternDetector struct {
	strategy Strategy
	logger   *slog.Logger
}

// NewPatternDetector creates a detector. A nil logger discards output.
func NewPatternDetector(strategy Strategy, logger *slog.Logger) *PatternDetector {
	if strategy == "" {
		strategy = StrategyIndexed
	}
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &PatternDetector{strategy: strategy, logger: logger}
}

// Strategy returns the counting strategy in use.
func (d *PatternDetector) Strategy() Strategy {
	return d.strategy
}

// Detect builds the pattern table of text. Lengths are visited in ascending
// order and start offsets left to right, which fixes the discovery order.
// The context is checked between lengths; on cancellation the table built so
// far is returned with the context error.
func (d *PatternDetector) Detect(ctx context.Context, text string) (*PatternTable, error) {
	table := NewPatternTable()

	// offsets[i] is the byte offset of the i-th character; the final entry
	// is len(text).
	offsets := make([]int, 0, len(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	n := len(offsets)
	offsets = append(offsets, len(text))

	if n < MinPatternLength {
		return table, nil
	}

	count := d.counter(text)
	for length := MinPatternLength; length < MaxPatternLength && length <= n; length++ {
		if err := ctx.Err(); err != nil {
			d.logger.Debug("Pattern detection interrupted", "length", length, "patterns", table.Len())
			return table, err
		}

		checked := make(map[string]struct{})
		for i := 0; i+length <= n; i++ {
			sub := text[offsets[i]:offsets[i+length]]
			if _, ok := checked[sub]; ok {
				continue
			}
			checked[sub] = struct{}{}
			if !hasASCIILetter(sub) {
				continue
			}
			if c := count(sub); c > 1 {
				table.add(sub, c)
			}
		}
	}

	d.logger.Debug("Detected patterns",
		"strategy", d.strategy,
		"chars", n,
		"patterns", table.Len(),
	)
	return table, nil
}

// counter returns the occurrence counting function for text.
func (d *PatternDetector) counter(text string) func(string) int {
	if d.strategy == StrategyScan {
		return func(p string) int { return countOverlapping(text, p) }
	}
	idx := suffixarray.New([]byte(text))
	return func(p string) int { return len(idx.Lookup([]byte(p), -1)) }
}

// countOverlapping counts occurrences of p in s, advancing one byte after
// each match. A valid pattern cannot match at a continuation byte, so this
// is the same as advancing one character.
func countOverlapping(s, p string) int {
	if p == "" {
		return 0
	}
	n := 0
	for pos := 0; ; {
		i := strings.Index(s[pos:], p)
		if i < 0 {
			return n
		}
		n++
		pos += i + 1
	}
}

func hasASCIILetter(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') {
			return true
		}
	}
	return false
}
