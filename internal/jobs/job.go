// Package jobs runs compaction work in the background under a per-job
// timeout, persisting job state in a SQLite store.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	cserrors "codeshrink/internal/errors"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// JobType identifies the kind of work a job performs.
type JobType string

const (
	// JobTypeCompactFile compacts one file and writes its artifact.
	JobTypeCompactFile JobType = "compact_file"
	// JobTypeCompactGroup compacts several files with one shared identifier
	// session, in order.
	JobTypeCompactGroup JobType = "compact_group"
)

// Job represents a background task with its state and metadata.
type Job struct {
	ID          string     `json:"id" yaml:"id" toml:"id"`
	Type        JobType    `json:"type" yaml:"type" toml:"type"`
	Scope       string     `json:"scope,omitempty" yaml:"scope,omitempty" toml:"scope,omitempty"` // JSON-encoded parameters
	Status      JobStatus  `json:"status" yaml:"status" toml:"status"`
	Progress    int        `json:"progress" yaml:"progress" toml:"progress"` // 0-100
	CreatedAt   time.Time  `json:"createdAt" yaml:"createdAt" toml:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty" yaml:"startedAt,omitempty" toml:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty" yaml:"completedAt,omitempty" toml:"completedAt,omitempty"`
	Error       string     `json:"error,omitempty" yaml:"error,omitempty" toml:"error,omitempty"`
	ErrorCode   string     `json:"errorCode,omitempty" yaml:"errorCode,omitempty" toml:"errorCode,omitempty"`
	Result      string     `json:"result,omitempty" yaml:"result,omitempty" toml:"result,omitempty"` // JSON-encoded result
}

// NewJob creates a queued job with scope encoded as JSON.
func NewJob(jobType JobType, scope any) (*Job, error) {
	var scopeJSON string
	if scope != nil {
		data, err := json.Marshal(scope)
		if err != nil {
			return nil, err
		}
		scopeJSON = string(data)
	}

	return &Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Scope:     scopeJSON,
		Status:    JobQueued,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed || j.Status == JobCancelled
}

// CanCancel returns true if the job can be cancelled.
func (j *Job) CanCancel() bool {
	return j.Status == JobQueued || j.Status == JobRunning
}

// MarkStarted transitions the job to running state.
func (j *Job) MarkStarted() {
	now := time.Now().UTC()
	j.Status = JobRunning
	j.StartedAt = &now
}

// MarkCompleted transitions the job to completed state with result.
func (j *Job) MarkCompleted(result any) error {
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return err
		}
		j.Result = string(data)
	}

	now := time.Now().UTC()
	j.Status = JobCompleted
	j.Progress = 100
	j.CompletedAt = &now
	return nil
}

// MarkFailed transitions the job to failed state. ErrorCode is the code of
// err, or INTERNAL_ERROR for uncoded errors.
func (j *Job) MarkFailed(err error) {
	now := time.Now().UTC()
	j.Status = JobFailed
	j.CompletedAt = &now
	if err != nil {
		j.Error = err.Error()
		j.ErrorCode = string(cserrors.CodeOf(err))
	}
}

// MarkCancelled transitions the job to cancelled state.
func (j *Job) MarkCancelled() {
	now := time.Now().UTC()
	j.Status = JobCancelled
	j.CompletedAt = &now
}

// SetProgress updates the job's progress, clamped to 0-100.
func (j *Job) SetProgress(progress int) {
	j.Progress = min(max(progress, 0), 100)
}

// Duration returns how long the job took (or has been running).
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	end := time.Now().UTC()
	if j.CompletedAt != nil {
		end = *j.CompletedAt
	}
	return end.Sub(*j.StartedAt)
}

// DecodeResult unmarshals the job result into v.
func (j *Job) DecodeResult(v any) error {
	if j.Result == "" {
		return nil
	}
	return json.Unmarshal([]byte(j.Result), v)
}

// JobSummary is a lightweight view of a job for listing.
type JobSummary struct {
	ID          string     `json:"id" yaml:"id" toml:"id"`
	Type        JobType    `json:"type" yaml:"type" toml:"type"`
	Status      JobStatus  `json:"status" yaml:"status" toml:"status"`
	Progress    int        `json:"progress" yaml:"progress" toml:"progress"`
	CreatedAt   time.Time  `json:"createdAt" yaml:"createdAt" toml:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty" yaml:"completedAt,omitempty" toml:"completedAt,omitempty"`
	Error       string     `json:"error,omitempty" yaml:"error,omitempty" toml:"error,omitempty"`
}

// ToSummary creates a summary view of the job.
func (j *Job) ToSummary() JobSummary {
	return JobSummary{
		ID:          j.ID,
		Type:        j.Type,
		Status:      j.Status,
		Progress:    j.Progress,
		CreatedAt:   j.CreatedAt,
		CompletedAt: j.CompletedAt,
		Error:       j.Error,
	}
}

// ListJobsOptions contains options for listing jobs.
type ListJobsOptions struct {
	Status []JobStatus
	Type   []JobType
	Limit  int
	Offset int
}

// ListJobsResponse contains the result of listing jobs.
type ListJobsResponse struct {
	Jobs       []JobSummary `json:"jobs" yaml:"jobs" toml:"jobs"`
	TotalCount int          `json:"totalCount" yaml:"totalCount" toml:"totalCount"`
}
