// Package testutil provides testing utilities for fixture and golden tests.
package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
)

// FixtureSet is one directory of input files under testdata/fixtures.
type FixtureSet struct {
	// Name is the directory name, e.g. "artifacts"
	Name string

	// Root is the absolute path to the fixture directory
	Root string

	// ExpectedDir is the path to the expected/ directory
	ExpectedDir string
}

// LoadFixtureSet loads a fixture set, failing the test on error.
func LoadFixtureSet(t *testing.T, name string) *FixtureSet {
	t.Helper()

	dir := filepath.Join(getFixturesRoot(t), name)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Fatalf("Fixture directory not found: %s", dir)
	}

	return &FixtureSet{
		Name:        name,
		Root:        dir,
		ExpectedDir: filepath.Join(dir, "expected"),
	}
}

// Files returns the input file names of the set, sorted. The expected/
// directory is not included.
func (s *FixtureSet) Files(t *testing.T) []string {
	t.Helper()

	entries, err := os.ReadDir(s.Root)
	if err != nil {
		t.Fatalf("Failed to list fixtures: %v", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

// Read returns the content of an input file with line endings normalized.
func (s *FixtureSet) Read(t *testing.T, name string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(s.Root, name))
	if err != nil {
		t.Fatalf("Failed to read fixture %s: %v", name, err)
	}
	return NormalizeNewlines(string(data))
}

// ExpectedPath returns the path to the golden file for an input file.
func (s *FixtureSet) ExpectedPath(name string) string {
	return filepath.Join(s.ExpectedDir, name+".golden")
}

// NormalizeNewlines converts CRLF and lone CR line endings to LF, so
// fixtures checked out on Windows compare equal.
func NormalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// getFixturesRoot returns the absolute path to testdata/fixtures/.
func getFixturesRoot(t *testing.T) string {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get caller information")
	}

	// Navigate from internal/testutil to project root
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
	root := filepath.Join(projectRoot, "testdata", "fixtures")
	if _, err := os.Stat(root); os.IsNotExist(err) {
		t.Fatalf("Fixtures root not found: %s", root)
	}
	return root
}
