package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"codeshrink/internal/compaction"
	"codeshrink/internal/jobs"
	"codeshrink/internal/storage"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatHuman OutputFormat = "human"
	FormatYAML  OutputFormat = "yaml"
	FormatTOML  OutputFormat = "toml"
)

// FormatResponse formats a response according to the specified format
func FormatResponse(resp any, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(resp)
	case FormatYAML:
		return formatYAML(resp)
	case FormatTOML:
		return formatTOML(resp)
	case FormatHuman:
		return formatHuman(resp)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

func formatJSON(resp any) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

func formatYAML(resp any) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(resp); err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// formatTOML needs a table at the top level; slices are wrapped by the callers.
func formatTOML(resp any) (string, error) {
	data, err := toml.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("failed to marshal TOML: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

// formatHuman formats the response in human-readable format
func formatHuman(resp any) (string, error) {
	switch v := resp.(type) {
	case *compaction.Result:
		return formatResultHuman(v), nil
	case compaction.Report:
		return strings.TrimRight(v.String(), "\n"), nil
	case *jobs.ListJobsResponse:
		return formatJobsHuman(v), nil
	case *jobs.Job:
		return formatJobHuman(v), nil
	case *storage.CacheStats:
		return formatCacheStatsHuman(v), nil
	case *IngestSummary:
		return formatIngestHuman(v), nil
	default:
		return formatJSON(resp)
	}
}

func formatResultHuman(r *compaction.Result) string {
	var b strings.Builder
	b.WriteString(r.Artifact)
	if !strings.HasSuffix(r.Artifact, "\n") {
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(r.Report.String())
	fmt.Fprintf(&b, "- Dictionary entries: %d\n", len(r.Dictionary))
	fmt.Fprintf(&b, "- Identifiers renamed: %d\n", r.Renamed)
	if len(r.FailOpen) > 0 {
		stages := make([]string, len(r.FailOpen))
		for i, s := range r.FailOpen {
			stages[i] = string(s)
		}
		fmt.Fprintf(&b, "- Skipped stages: %s\n", strings.Join(stages, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatJobsHuman(resp *jobs.ListJobsResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Jobs (%d total)\n", resp.TotalCount)
	b.WriteString(strings.Repeat("=", 60) + "\n")
	for _, j := range resp.Jobs {
		fmt.Fprintf(&b, "%s  %-13s %-9s %3d%%  %s\n",
			j.ID, j.Type, j.Status, j.Progress, j.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		if j.Error != "" {
			fmt.Fprintf(&b, "    ! %s\n", j.Error)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatJobHuman(j *jobs.Job) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job %s\n", j.ID)
	b.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(&b, "Type: %s\n", j.Type)
	fmt.Fprintf(&b, "Status: %s (%d%%)\n", j.Status, j.Progress)
	fmt.Fprintf(&b, "Created: %s\n", j.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	if d := j.Duration(); d > 0 {
		fmt.Fprintf(&b, "Duration: %s\n", d)
	}
	if j.Error != "" {
		fmt.Fprintf(&b, "Error: [%s] %s\n", j.ErrorCode, j.Error)
	}
	if j.Scope != "" {
		fmt.Fprintf(&b, "Scope: %s\n", truncateString(j.Scope, 200))
	}
	if j.Result != "" {
		fmt.Fprintf(&b, "Result: %s\n", truncateString(j.Result, 500))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatCacheStatsHuman(s *storage.CacheStats) string {
	var b strings.Builder
	b.WriteString("Artifact Cache\n")
	b.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(&b, "Entries: %d (%d expired)\n", s.Entries, s.Expired)
	fmt.Fprintf(&b, "Hits: %d\n", s.Hits)
	fmt.Fprintf(&b, "Size: %s stored, %s raw\n", formatBytes(s.StoredBytes), formatBytes(s.RawBytes))
	fmt.Fprintf(&b, "Characters: %d original, %d compacted\n", s.OriginalChars, s.CompactedChars)
	fmt.Fprintf(&b, "Identifier maps: %d sessions, %d names\n", s.Sessions, s.Identifiers)
	return strings.TrimRight(b.String(), "\n")
}

func formatIngestHuman(s *IngestSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ingested %s -> %s\n", s.Source, s.Out)
	fmt.Fprintf(&b, "Files: %d compacted, %d copied, %d failed, %d skipped\n",
		s.Compacted, s.Copied, s.Failed, s.Skipped)
	if s.Cached > 0 {
		fmt.Fprintf(&b, "Cache hits: %d\n", s.Cached)
	}
	b.WriteString(s.Total.String())
	return strings.TrimRight(b.String(), "\n")
}

// formatBytes formats byte size in human-readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return strings.TrimSpace(s[:maxLen]) + "..."
}
