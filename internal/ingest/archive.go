package ingest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ExtractZip unpacks archive into dest and returns the number of files
// written. Entries that would land outside dest are rejected. Each entry is
// cut at limit+1 bytes, so the walker still sees it as oversized; limit <= 0
// disables the cut.
func ExtractZip(archive, dest string, limit int64) (int, error) {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return 0, fmt.Errorf("failed to open zip archive: %w", err)
	}
	defer func() { _ = r.Close() }()

	dest, err = filepath.Abs(dest)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, f := range r.File {
		target := filepath.Join(dest, filepath.FromSlash(f.Name))
		if target != dest && !strings.HasPrefix(target, dest+string(filepath.Separator)) {
			return written, fmt.Errorf("zip entry escapes destination: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return written, err
			}
			continue
		}
		if !f.Mode().IsRegular() {
			continue
		}

		if err := extractEntry(f, target, limit); err != nil {
			return written, fmt.Errorf("failed to extract %s: %w", f.Name, err)
		}
		written++
	}
	return written, nil
}

func extractEntry(f *zip.File, target string, limit int64) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	var reader io.Reader = src
	if limit > 0 {
		reader = io.LimitReader(src, limit+1)
	}
	if _, err := io.Copy(out, reader); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// IsZip reports whether p names a zip archive.
func IsZip(p string) bool {
	return strings.EqualFold(filepath.Ext(p), ".zip")
}
