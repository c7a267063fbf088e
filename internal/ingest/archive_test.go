package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(f)
	for name, content := range files {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestExtractZip(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "src.zip")
	writeZip(t, archive, map[string]string{
		"pkg/a.py":  "print('a')\n",
		"README.md": "# readme\n",
		"big.txt":   strings.Repeat("x", 100),
	})

	dest := filepath.Join(dir, "out")
	n, err := ExtractZip(archive, dest, 50)
	if err != nil {
		t.Fatalf("ExtractZip() error = %v", err)
	}
	if n != 3 {
		t.Errorf("extracted %d files, want 3", n)
	}

	data, err := os.ReadFile(filepath.Join(dest, "pkg", "a.py"))
	if err != nil || string(data) != "print('a')\n" {
		t.Errorf("pkg/a.py = %q, %v", data, err)
	}

	// Oversized entries are cut just past the limit.
	big, _ := os.ReadFile(filepath.Join(dest, "big.txt"))
	if len(big) != 51 {
		t.Errorf("big.txt has %d bytes, want 51", len(big))
	}
}

func TestExtractZip_RejectsEscape(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.zip")
	writeZip(t, archive, map[string]string{"../escape.txt": "x"})

	if _, err := ExtractZip(archive, filepath.Join(dir, "out"), 0); err == nil {
		t.Fatal("expected error for entry outside destination")
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.txt")); err == nil {
		t.Error("entry was written outside destination")
	}
}

func TestExtractZip_NotAnArchive(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "fake.zip")
	if err := os.WriteFile(p, []byte("not a zip"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ExtractZip(p, filepath.Join(dir, "out"), 0); err == nil {
		t.Error("expected error")
	}
}

func TestIsZip(t *testing.T) {
	if !IsZip("a/b/src.ZIP") || IsZip("a/b/src.tar") {
		t.Error("IsZip mismatch")
	}
}
