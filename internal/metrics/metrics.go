// Package metrics records compaction counters in a Prometheus registry and
// exports them as a node_exporter textfile.
package metrics

import (
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for compaction runs.
//
// Metrics:
//   - codeshrink_files_total{language,outcome} - files handled, by outcome
//   - codeshrink_bytes_in_total - characters read
//   - codeshrink_bytes_out_total - characters written
//   - codeshrink_fail_open_total{stage} - skipped pipeline stages
//   - codeshrink_identifiers_renamed_total - identifier occurrences replaced
//   - codeshrink_cache_hits_total / codeshrink_cache_misses_total
//   - codeshrink_compaction_ratio - artifact size as a fraction of input
//   - codeshrink_job_duration_seconds{type,status}
type Metrics struct {
	registry *prometheus.Registry

	FilesTotal       *prometheus.CounterVec
	BytesInTotal     prometheus.Counter
	BytesOutTotal    prometheus.Counter
	FailOpenTotal    *prometheus.CounterVec
	RenamedTotal     prometheus.Counter
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
	Ratio            prometheus.Histogram
	JobDuration      *prometheus.HistogramVec
}

// Outcomes for FilesTotal.
const (
	OutcomeCompacted = "compacted"
	OutcomeCopied    = "copied"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// New creates metrics in a private registry, so several instances can live
// in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		FilesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codeshrink_files_total",
				Help: "Total number of files handled",
			},
			[]string{"language", "outcome"},
		),
		BytesInTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "codeshrink_bytes_in_total",
			Help: "Total characters read from source files",
		}),
		BytesOutTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "codeshrink_bytes_out_total",
			Help: "Total characters written to artifacts",
		}),
		FailOpenTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codeshrink_fail_open_total",
				Help: "Total number of pipeline stages skipped after a failure",
			},
			[]string{"stage"},
		),
		RenamedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "codeshrink_identifiers_renamed_total",
			Help: "Total identifier occurrences replaced with short names",
		}),
		CacheHitsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "codeshrink_cache_hits_total",
			Help: "Total number of artifact cache hits",
		}),
		CacheMissesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "codeshrink_cache_misses_total",
			Help: "Total number of artifact cache misses",
		}),
		Ratio: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "codeshrink_compaction_ratio",
			Help:    "Artifact size as a fraction of the original",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 12), // 0.1 to 1.2
		}),
		JobDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "codeshrink_job_duration_seconds",
				Help:    "Duration of compaction jobs in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
			},
			[]string{"type", "status"},
		),
	}
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// FileResult is the per-file input to RecordFile.
type FileResult struct {
	Language       string
	Outcome        string
	OriginalChars  int
	CompactedChars int
	Renamed        int
	FailOpen       []string
	Cached         bool
}

// RecordFile records one handled file.
func (m *Metrics) RecordFile(r FileResult) {
	m.FilesTotal.WithLabelValues(r.Language, r.Outcome).Inc()
	if r.Outcome == OutcomeSkipped || r.Outcome == OutcomeFailed {
		return
	}
	m.BytesInTotal.Add(float64(r.OriginalChars))
	m.BytesOutTotal.Add(float64(r.CompactedChars))
	m.RenamedTotal.Add(float64(r.Renamed))
	for _, stage := range r.FailOpen {
		m.FailOpenTotal.WithLabelValues(stage).Inc()
	}
	if r.Outcome == OutcomeCompacted {
		if r.Cached {
			m.CacheHitsTotal.Inc()
		} else {
			m.CacheMissesTotal.Inc()
		}
		if r.OriginalChars > 0 {
			m.Ratio.Observe(float64(r.CompactedChars) / float64(r.OriginalChars))
		}
	}
}

// RecordJob records a finished job.
func (m *Metrics) RecordJob(jobType, status string, durationSeconds float64) {
	m.JobDuration.WithLabelValues(jobType, status).Observe(durationSeconds)
}

// WriteToTextfile writes all metrics to path in the text exposition format.
// An empty path is a no-op.
func (m *Metrics) WriteToTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
