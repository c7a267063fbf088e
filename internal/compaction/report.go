package compaction

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// charsPerToken is the token estimate divisor.
const charsPerToken = 4

// Report summarizes the size effect of one compaction.
type Report struct {
	OriginalChars   int     `json:"originalChars" yaml:"originalChars" toml:"originalChars"`
	CompactedChars  int     `json:"compactedChars" yaml:"compactedChars" toml:"compactedChars"`
	Ratio           float64 `json:"ratio" yaml:"ratio" toml:"ratio"`
	OriginalTokens  int     `json:"originalTokens" yaml:"originalTokens" toml:"originalTokens"`
	CompactedTokens int     `json:"compactedTokens" yaml:"compactedTokens" toml:"compactedTokens"`
	TokenRatio      float64 `json:"tokenRatio" yaml:"tokenRatio" toml:"tokenRatio"`
}

// NewReport measures original against compacted. Ratios are percentages of
// the original and are 100 when the original is empty.
func NewReport(original, compacted string) Report {
	r := Report{
		OriginalChars:  runeLen(original),
		CompactedChars: runeLen(compacted),
	}
	r.OriginalTokens = EstimateTokens(r.OriginalChars)
	r.CompactedTokens = EstimateTokens(r.CompactedChars)
	r.Ratio = percent(r.CompactedChars, r.OriginalChars)
	r.TokenRatio = percent(r.CompactedTokens, r.OriginalTokens)
	return r
}

// EstimateTokens approximates a token count as ceil(chars/4).
func EstimateTokens(chars int) int {
	if chars <= 0 {
		return 0
	}
	return (chars + charsPerToken - 1) / charsPerToken
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 100
	}
	return float64(part) / float64(whole) * 100
}

// Add combines r with o, as for a batch of files. Token counts are the sums
// of the per-file estimates.
func (r Report) Add(o Report) Report {
	sum := Report{
		OriginalChars:   r.OriginalChars + o.OriginalChars,
		CompactedChars:  r.CompactedChars + o.CompactedChars,
		OriginalTokens:  r.OriginalTokens + o.OriginalTokens,
		CompactedTokens: r.CompactedTokens + o.CompactedTokens,
	}
	sum.Ratio = percent(sum.CompactedChars, sum.OriginalChars)
	sum.TokenRatio = percent(sum.CompactedTokens, sum.OriginalTokens)
	return sum
}

// Saved returns the number of characters removed. It is negative when the
// artifact grew.
func (r Report) Saved() int {
	return r.OriginalChars - r.CompactedChars
}

// String renders the human-readable report block.
func (r Report) String() string {
	var b strings.Builder
	b.WriteString("Compression Report:\n")
	fmt.Fprintf(&b, "- Original size: %d characters\n", r.OriginalChars)
	fmt.Fprintf(&b, "- Compressed size: %d characters\n", r.CompactedChars)
	fmt.Fprintf(&b, "- Compression ratio: %.2f%%\n", r.Ratio)
	fmt.Fprintf(&b, "- Estimated original tokens: %d\n", r.OriginalTokens)
	fmt.Fprintf(&b, "- Estimated compressed tokens: %d\n", r.CompactedTokens)
	fmt.Fprintf(&b, "- Token ratio: %.2f%%\n", r.TokenRatio)
	return b.String()
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
