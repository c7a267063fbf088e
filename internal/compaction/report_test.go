package compaction

import (
	"math"
	"strings"
	"testing"
)

func TestNewReport(t *testing.T) {
	tests := []struct {
		name           string
		original       string
		compacted      string
		wantRatio      float64
		wantOrigTokens int
		wantCompTokens int
		wantTokenRatio float64
		wantSaved      int
	}{
		{"both empty", "", "", 100, 0, 0, 100, 0},
		{"empty original", "", "# dict:\n", 100, 0, 2, 100, -8},
		{"halved", "0123456789", "01234", 50, 3, 2, 200.0 / 3, 5},
		{"grew", "abcd", "# dict:\nabcd", 300, 1, 3, 300, -8},
		{"characters not bytes", "ééééé", "éé", 40, 2, 1, 50, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReport(tt.original, tt.compacted)
			if math.Abs(r.Ratio-tt.wantRatio) > 1e-9 {
				t.Errorf("Ratio = %v, want %v", r.Ratio, tt.wantRatio)
			}
			if r.OriginalTokens != tt.wantOrigTokens || r.CompactedTokens != tt.wantCompTokens {
				t.Errorf("tokens = %d/%d, want %d/%d", r.OriginalTokens, r.CompactedTokens, tt.wantOrigTokens, tt.wantCompTokens)
			}
			if math.Abs(r.TokenRatio-tt.wantTokenRatio) > 1e-9 {
				t.Errorf("TokenRatio = %v, want %v", r.TokenRatio, tt.wantTokenRatio)
			}
			if r.Saved() != tt.wantSaved {
				t.Errorf("Saved = %d, want %d", r.Saved(), tt.wantSaved)
			}
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	for chars, want := range map[int]int{-1: 0, 0: 0, 1: 1, 4: 1, 5: 2, 8: 2, 9: 3} {
		if got := EstimateTokens(chars); got != want {
			t.Errorf("EstimateTokens(%d) = %d, want %d", chars, got, want)
		}
	}
}

func TestReport_String(t *testing.T) {
	out := NewReport("0123456789", "01234").String()
	for _, line := range []string{
		"Compression Report:\n",
		"- Original size: 10 characters\n",
		"- Compressed size: 5 characters\n",
		"- Compression ratio: 50.00%\n",
		"- Estimated original tokens: 3\n",
		"- Estimated compressed tokens: 2\n",
		"- Token ratio: 66.67%\n",
	} {
		if !strings.Contains(out, line) {
			t.Errorf("report missing %q:\n%s", line, out)
		}
	}
}

func TestReport_Add(t *testing.T) {
	var total Report
	total = total.Add(NewReport("0123456789", "01234"))
	total = total.Add(NewReport("0123456789", "0123456789"))

	if total.OriginalChars != 20 || total.CompactedChars != 15 {
		t.Errorf("chars = %d/%d, want 20/15", total.OriginalChars, total.CompactedChars)
	}
	if total.Ratio != 75 {
		t.Errorf("Ratio = %v, want 75", total.Ratio)
	}
	if total.OriginalTokens != 6 || total.CompactedTokens != 5 {
		t.Errorf("tokens = %d/%d, want 6/5", total.OriginalTokens, total.CompactedTokens)
	}
}
