package testutil

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"strings"
	"testing"
)

var (
	// updateGolden controls whether golden files should be updated.
	// Use: go test ./... -run TestGolden -update
	updateGolden = flag.Bool("update", false, "update golden files")

	// goldenFile filters which fixture files are tested.
	// Use: go test ./... -run TestGolden -goldenFile=simple.cs
	goldenFile = flag.String("goldenFile", "", "filter fixture files (comma-separated names)")
)

// ShouldUpdate returns true if golden files should be updated.
func ShouldUpdate() bool {
	return *updateGolden
}

// ShouldTestFile returns true if the named fixture file should be tested.
func ShouldTestFile(name string) bool {
	if *goldenFile == "" {
		return true
	}
	for _, f := range strings.Split(*goldenFile, ",") {
		if strings.TrimSpace(f) == name {
			return true
		}
	}
	return false
}

// ForEachFile runs fn as a subtest for every selected input file of set.
func ForEachFile(t *testing.T, set *FixtureSet, fn func(t *testing.T, name, content string)) {
	t.Helper()

	files := set.Files(t)
	if len(files) == 0 {
		t.Skipf("No fixtures in %s", set.Root)
	}
	for _, name := range files {
		if !ShouldTestFile(name) {
			continue
		}
		t.Run(name, func(t *testing.T) {
			fn(t, name, set.Read(t, name))
		})
	}
}

// CompareGolden compares got against the golden file of an input file,
// failing with a diff on mismatch. With -update the golden file is written
// instead.
func CompareGolden(t *testing.T, set *FixtureSet, name string, got []byte) {
	t.Helper()

	goldenPath := set.ExpectedPath(name)
	if *updateGolden {
		UpdateGolden(t, set, name, got)
		t.Logf("Updated golden: %s", goldenPath)
		return
	}

	expected, err := os.ReadFile(goldenPath)
	if err != nil {
		if os.IsNotExist(err) {
			t.Fatalf("Golden file missing: %s\n\nGot:\n%s\n\nRun with -update to create:\n  go test ./... -run %s -update",
				goldenPath, string(got), t.Name())
		}
		t.Fatalf("Failed to read golden file: %v", err)
	}
	expected = []byte(NormalizeNewlines(string(expected)))

	if !bytes.Equal(got, expected) {
		diff := unifiedDiff(string(expected), string(got), goldenPath)
		t.Fatalf("Golden mismatch for %s:\n%s\n\nRun with -update to refresh:\n  go test ./... -run %s -update",
			name, diff, t.Name())
	}
}

// UpdateGolden writes data to the golden file of an input file.
func UpdateGolden(t *testing.T, set *FixtureSet, name string, data []byte) {
	t.Helper()

	if err := os.MkdirAll(set.ExpectedDir, 0o755); err != nil {
		t.Fatalf("Failed to create expected directory: %v", err)
	}
	if err := os.WriteFile(set.ExpectedPath(name), data, 0o644); err != nil {
		t.Fatalf("Failed to write golden file: %v", err)
	}
}

// unifiedDiff produces a line-by-line diff with up to three lines of
// leading context per hunk.
func unifiedDiff(expected, got, path string) string {
	var buf bytes.Buffer

	expectedLines := strings.Split(expected, "\n")
	gotLines := strings.Split(got, "\n")

	fmt.Fprintf(&buf, "--- %s (expected)\n", path)
	fmt.Fprintf(&buf, "+++ %s (got)\n", path)

	n := max(len(expectedLines), len(gotLines))
	var hunk []string
	hunkStart := -1

	flush := func() {
		if len(hunk) > 0 {
			fmt.Fprintf(&buf, "@@ -%d +%d @@\n", hunkStart+1, hunkStart+1)
			for _, line := range hunk {
				buf.WriteString(line)
				buf.WriteByte('\n')
			}
		}
		hunk = nil
		hunkStart = -1
	}

	for i := 0; i < n; i++ {
		exp, expOK := lineAt(expectedLines, i)
		g, gotOK := lineAt(gotLines, i)

		if expOK == gotOK && exp == g {
			if hunkStart >= 0 {
				hunk = append(hunk, " "+exp)
				if i-hunkStart > 6 {
					flush()
				}
			}
			continue
		}

		if hunkStart < 0 {
			hunkStart = i
			for j := max(0, i-3); j < i; j++ {
				hunk = append(hunk, " "+expectedLines[j])
			}
		}
		if expOK {
			hunk = append(hunk, "-"+exp)
		}
		if gotOK {
			hunk = append(hunk, "+"+g)
		}
	}
	flush()

	return buf.String()
}

func lineAt(lines []string, i int) (string, bool) {
	if i < len(lines) {
		return lines[i], true
	}
	return "", false
}
