package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMetrics_RecordAndWrite(t *testing.T) {
	m := New()

	m.RecordFile(FileResult{
		Language:       "python",
		Outcome:        OutcomeCompacted,
		OriginalChars:  200,
		CompactedChars: 100,
		Renamed:        7,
		FailOpen:       []string{"rename"},
	})
	m.RecordFile(FileResult{Language: "python", Outcome: OutcomeCompacted, OriginalChars: 10, CompactedChars: 10, Cached: true})
	m.RecordFile(FileResult{Language: "bin", Outcome: OutcomeSkipped, OriginalChars: 999})
	m.RecordJob("compact_file", "completed", 0.25)

	path := filepath.Join(t.TempDir(), "out", "codeshrink.prom")
	if err := m.WriteToTextfile(path); err != nil {
		t.Fatalf("WriteToTextfile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	text := string(data)

	for _, want := range []string{
		`codeshrink_files_total{language="python",outcome="compacted"} 2`,
		`codeshrink_files_total{language="bin",outcome="skipped"} 1`,
		`codeshrink_bytes_in_total 210`,
		`codeshrink_bytes_out_total 110`,
		`codeshrink_identifiers_renamed_total 7`,
		`codeshrink_fail_open_total{stage="rename"} 1`,
		`codeshrink_cache_hits_total 1`,
		`codeshrink_cache_misses_total 1`,
		`codeshrink_compaction_ratio_count 2`,
		`codeshrink_job_duration_seconds_count{status="completed",type="compact_file"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("textfile missing %q", want)
		}
	}
}

func TestMetrics_Independent(t *testing.T) {
	a, b := New(), New()
	a.RecordFile(FileResult{Language: "go", Outcome: OutcomeCopied, OriginalChars: 5, CompactedChars: 5})

	families, err := b.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == "codeshrink_files_total" && len(mf.GetMetric()) > 0 {
			t.Error("metrics leaked between instances")
		}
	}
}

func TestMetrics_EmptyPathIsNoop(t *testing.T) {
	if err := New().WriteToTextfile(""); err != nil {
		t.Errorf("WriteToTextfile(\"\") error = %v", err)
	}
}
