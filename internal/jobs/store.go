package jobs

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"codeshrink/internal/slogutil"
)

// Store provides persistence for jobs in a separate SQLite database.
type Store struct {
	conn   *sql.DB
	logger *slog.Logger
	dbPath string
}

// OpenStore opens or creates the jobs database at dbPath.
func OpenStore(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create jobs directory: %w", err)
	}

	dbExists := fileExists(dbPath)

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open jobs database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-8000", // 8MB cache
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	store := &Store{
		conn:   conn,
		logger: logger,
		dbPath: dbPath,
	}

	if !dbExists {
		logger.Info("Creating jobs database", "path", dbPath)
	}
	if err := store.initializeSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize jobs schema: %w", err)
	}

	return store, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// initializeSchema creates the jobs tables.
func (s *Store) initializeSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			scope TEXT,
			status TEXT NOT NULL DEFAULT 'queued',
			progress INTEGER DEFAULT 0,
			created_at TEXT NOT NULL,
			started_at TEXT,
			completed_at TEXT,
			error TEXT,
			error_code TEXT,
			result TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
		CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at DESC);

		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);
		INSERT OR REPLACE INTO schema_version (version) VALUES (1);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

const jobColumns = `id, type, scope, status, progress, created_at, started_at, completed_at, error, error_code, result`

// CreateJob inserts a new job into the database.
func (s *Store) CreateJob(job *Job) error {
	_, err := s.conn.Exec(`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.Type,
		nullString(job.Scope),
		job.Status,
		job.Progress,
		formatTime(job.CreatedAt),
		nullTime(job.StartedAt),
		nullTime(job.CompletedAt),
		nullString(job.Error),
		nullString(job.ErrorCode),
		nullString(job.Result),
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Debug("Created job", "jobId", job.ID, "type", job.Type)
	return nil
}

// GetJob retrieves a job by ID. It returns nil, nil for an unknown ID.
func (s *Store) GetJob(id string) (*Job, error) {
	row := s.conn.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

const updateJobSQL = `
		UPDATE jobs SET
			status = ?,
			progress = ?,
			started_at = ?,
			completed_at = ?,
			error = ?,
			error_code = ?,
			result = ?
		WHERE id = ?`

func jobValues(job *Job) []any {
	return []any{
		job.Status,
		job.Progress,
		nullTime(job.StartedAt),
		nullTime(job.CompletedAt),
		nullString(job.Error),
		nullString(job.ErrorCode),
		nullString(job.Result),
		job.ID,
	}
}

// UpdateJob updates an existing job.
func (s *Store) UpdateJob(job *Job) error {
	result, err := s.conn.Exec(updateJobSQL, jobValues(job)...)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("job not found: %s", job.ID)
	}
	return nil
}

// TransitionJob writes job only if the stored status is still from, and
// reports whether it did. Workers claim queued jobs with it, so a job queued
// twice runs once.
func (s *Store) TransitionJob(job *Job, from JobStatus) (bool, error) {
	result, err := s.conn.Exec(updateJobSQL+" AND status = ?", append(jobValues(job), from)...)
	if err != nil {
		return false, fmt.Errorf("failed to update job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update job: %w", err)
	}
	return rows == 1, nil
}

// ListJobs retrieves jobs matching the given options, newest first.
func (s *Store) ListJobs(opts ListJobsOptions) (*ListJobsResponse, error) {
	var conditions []string
	var args []any

	if len(opts.Status) > 0 {
		conditions = append(conditions, "status IN ("+placeholders(len(opts.Status))+")")
		for _, status := range opts.Status {
			args = append(args, status)
		}
	}
	if len(opts.Type) > 0 {
		conditions = append(conditions, "type IN ("+placeholders(len(opts.Type))+")")
		for _, t := range opts.Type {
			args = append(args, t)
		}
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var totalCount int
	if err := s.conn.QueryRow("SELECT COUNT(*) FROM jobs "+whereClause, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	query := `SELECT ` + jobColumns + ` FROM jobs ` + whereClause + `
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	jobs := []JobSummary{}
	for rows.Next() {
		job, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job.ToSummary())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return &ListJobsResponse{Jobs: jobs, TotalCount: totalCount}, nil
}

// GetPendingJobs retrieves all queued jobs ordered by creation time.
func (s *Store) GetPendingJobs() ([]*Job, error) {
	rows, err := s.conn.Query(`SELECT ` + jobColumns + ` FROM jobs WHERE status = 'queued' ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CleanupOldJobs removes finished jobs that completed before now-retention.
func (s *Store) CleanupOldJobs(retention time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-retention))

	result, err := s.conn.Exec(`
		DELETE FROM jobs
		WHERE status IN ('completed', 'failed', 'cancelled')
		AND completed_at < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old jobs: %w", err)
	}
	return result.RowsAffected()
}

// scanJob reads one row through scan, which is (*sql.Row).Scan or
// (*sql.Rows).Scan.
func scanJob(scan func(dest ...any) error) (*Job, error) {
	var job Job
	var scope, startedAt, completedAt, errMsg, errCode, result sql.NullString
	var createdAt string

	err := scan(
		&job.ID,
		&job.Type,
		&scope,
		&job.Status,
		&job.Progress,
		&createdAt,
		&startedAt,
		&completedAt,
		&errMsg,
		&errCode,
		&result,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	job.Scope = scope.String
	job.Error = errMsg.String
	job.ErrorCode = errCode.String
	job.Result = result.String
	job.CreatedAt = parseTime(createdAt)
	if startedAt.Valid {
		t := parseTime(startedAt.String)
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := parseTime(completedAt.String)
		job.CompletedAt = &t
	}
	return &job, nil
}

// Timestamps use a fixed-width layout so they sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
