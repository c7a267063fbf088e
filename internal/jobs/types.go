package jobs

import (
	"encoding/json"
	"errors"

	"codeshrink/internal/compaction"
)

// CompactFileScope is the parameter set of a compact_file job.
type CompactFileScope struct {
	// Source is the file to read.
	Source string `json:"source"`
	// Output is where the artifact is written. Empty means no file output.
	Output string `json:"output,omitempty"`
	// RelPath names the file in results and logs.
	RelPath string `json:"relPath"`
	// NoCompact copies the text through without compaction.
	NoCompact bool `json:"noCompact,omitempty"`
	// Language overrides the language derived from the file extension.
	Language string `json:"language,omitempty"`
}

// ParseCompactFileScope parses the scope JSON of a compact_file job.
func ParseCompactFileScope(scopeJSON string) (*CompactFileScope, error) {
	var scope CompactFileScope
	if scopeJSON != "" {
		if err := json.Unmarshal([]byte(scopeJSON), &scope); err != nil {
			return nil, err
		}
	}
	if scope.Source == "" {
		return nil, errors.New("compact_file scope requires a source")
	}
	if scope.RelPath == "" {
		scope.RelPath = scope.Source
	}
	return &scope, nil
}

// CompactGroupScope is the parameter set of a compact_group job.
type CompactGroupScope struct {
	Files []CompactFileScope `json:"files"`
}

// ParseCompactGroupScope parses the scope JSON of a compact_group job.
func ParseCompactGroupScope(scopeJSON string) (*CompactGroupScope, error) {
	var scope CompactGroupScope
	if scopeJSON != "" {
		if err := json.Unmarshal([]byte(scopeJSON), &scope); err != nil {
			return nil, err
		}
	}
	for i := range scope.Files {
		if scope.Files[i].Source == "" {
			return nil, errors.New("compact_group scope has a file without a source")
		}
		if scope.Files[i].RelPath == "" {
			scope.Files[i].RelPath = scope.Files[i].Source
		}
	}
	return &scope, nil
}

// FileResult is the outcome of compacting one file.
type FileResult struct {
	RelPath    string             `json:"relPath" yaml:"relPath" toml:"relPath"`
	Output     string             `json:"output,omitempty" yaml:"output,omitempty" toml:"output,omitempty"`
	Language   string             `json:"language" yaml:"language" toml:"language"`
	Compressed bool               `json:"compressed" yaml:"compressed" toml:"compressed"`
	Cached     bool               `json:"cached" yaml:"cached" toml:"cached"`
	Renamed    int                `json:"renamed" yaml:"renamed" toml:"renamed"`
	FailOpen   []compaction.Stage `json:"failOpen,omitempty" yaml:"failOpen,omitempty" toml:"failOpen,omitempty"`
	Report     compaction.Report  `json:"report" yaml:"report" toml:"report"`
	// ErrorCode and Error are set when the file was skipped inside a group.
	ErrorCode string `json:"errorCode,omitempty" yaml:"errorCode,omitempty" toml:"errorCode,omitempty"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty" toml:"error,omitempty"`
}

// GroupResult is the outcome of a compact_group job.
type GroupResult struct {
	SessionID string       `json:"sessionId" yaml:"sessionId" toml:"sessionId"`
	Files     []FileResult `json:"files" yaml:"files" toml:"files"`
}
