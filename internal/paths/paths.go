// Package paths resolves the per-project .codeshrink layout.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// DataDirName is the per-project data directory.
	DataDirName = ".codeshrink"

	configFileName = "config.json"
	cacheDBName    = "cache.db"
	jobsDBName     = "jobs.db"
	logsSubdir     = "logs"
)

// GetDataDir returns <root>/.codeshrink.
func GetDataDir(root string) string {
	return filepath.Join(root, DataDirName)
}

// EnsureDataDir creates <root>/.codeshrink if needed and returns it.
func EnsureDataDir(root string) (string, error) {
	dir := GetDataDir(root)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// GetConfigPath returns the config file path.
func GetConfigPath(root string) string {
	return filepath.Join(GetDataDir(root), configFileName)
}

// GetCacheDBPath returns the artifact cache database path.
func GetCacheDBPath(root string) string {
	return filepath.Join(GetDataDir(root), cacheDBName)
}

// GetJobsDBPath returns the job store database path.
func GetJobsDBPath(root string) string {
	return filepath.Join(GetDataDir(root), jobsDBName)
}

// GetLogsDir returns <root>/.codeshrink/logs.
func GetLogsDir(root string) string {
	return filepath.Join(GetDataDir(root), logsSubdir)
}

// EnsureLogsDir creates the logs directory if needed and returns it.
func EnsureLogsDir(root string) (string, error) {
	dir := GetLogsDir(root)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// GetLogPath returns the log file for a subsystem, e.g. "codeshrink" or "watch".
func GetLogPath(root, subsystem string) string {
	return filepath.Join(GetLogsDir(root), subsystem+".log")
}

// CanonicalizePath converts an absolute path to a root-relative canonical path
// - Resolves symlinks to real paths
// - Makes path relative to root
// - Returns forward slashes on every platform
func CanonicalizePath(absolutePath string, root string) (string, error) {
	resolved, err := filepath.EvalSymlinks(absolutePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		resolved = absolutePath
	}

	rootResolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		rootResolved = root
	}

	rel, err := filepath.Rel(rootResolved, resolved)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// IsWithinRoot checks if a path is within root
func IsWithinRoot(path string, root string) bool {
	canonical, err := CanonicalizePath(path, root)
	if err != nil {
		return false
	}
	return canonical != ".." && !strings.HasPrefix(canonical, "../")
}

// IsDataPath reports whether a root-relative path lies inside the data dir.
func IsDataPath(rel string) bool {
	rel = filepath.ToSlash(rel)
	return rel == DataDirName || strings.HasPrefix(rel, DataDirName+"/")
}

// JoinRootPath joins root with a canonical forward-slash path
func JoinRootPath(root string, canonicalPath string) string {
	parts := strings.Split(strings.ReplaceAll(canonicalPath, "\\", "/"), "/")
	return filepath.Join(append([]string{root}, parts...)...)
}
