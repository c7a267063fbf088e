package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"codeshrink/internal/config"
	cserrors "codeshrink/internal/errors"
	"codeshrink/internal/slogutil"
)

// JobHandler executes a specific type of job.
type JobHandler func(ctx context.Context, job *Job, progress func(int)) (any, error)

// Runner manages background job execution.
type Runner struct {
	store    *Store
	logger   *slog.Logger
	handlers map[JobType]JobHandler

	queue       chan *Job
	queueSize   int
	workerCount int
	jobTimeout  time.Duration
	retention   time.Duration

	done     chan struct{}
	stopOnce sync.Once
	cancel   map[string]context.CancelFunc
	waiters  map[string][]chan *Job
	onFinish func(Job)

	mu sync.RWMutex
	wg sync.WaitGroup

	processedCount atomic.Int64
	failedCount    atomic.Int64

	recoveryInterval time.Duration
}

// RunnerConfig contains configuration for the job runner.
type RunnerConfig struct {
	QueueSize        int
	WorkerCount      int
	RecoveryInterval time.Duration // How often to check for orphaned jobs
	JobTimeout       time.Duration // Per-job deadline; zero disables it
	Retention        time.Duration // Finished jobs older than this are removed; zero keeps them
}

// DefaultRunnerConfig returns the default runner configuration.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		QueueSize:        100,
		WorkerCount:      4,
		RecoveryInterval: 30 * time.Second,
		JobTimeout:       30 * time.Second,
		Retention:        7 * 24 * time.Hour,
	}
}

// RunnerConfigFrom derives the runner configuration from cfg.
func RunnerConfigFrom(cfg *config.Config) RunnerConfig {
	rc := DefaultRunnerConfig()
	if cfg == nil {
		return rc
	}
	rc.QueueSize = cfg.Jobs.QueueSize
	rc.WorkerCount = cfg.Jobs.Workers
	rc.JobTimeout = time.Duration(cfg.Limits.TimeoutMs) * time.Millisecond
	rc.Retention = time.Duration(cfg.Jobs.RetentionHours) * time.Hour
	return rc
}

// NewRunner creates a new job runner. A nil logger discards output.
func NewRunner(store *Store, logger *slog.Logger, cfg RunnerConfig) *Runner {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.RecoveryInterval <= 0 {
		cfg.RecoveryInterval = 30 * time.Second
	}

	return &Runner{
		store:            store,
		logger:           logger,
		handlers:         make(map[JobType]JobHandler),
		queue:            make(chan *Job, cfg.QueueSize),
		queueSize:        cfg.QueueSize,
		workerCount:      cfg.WorkerCount,
		jobTimeout:       cfg.JobTimeout,
		retention:        cfg.Retention,
		done:             make(chan struct{}),
		cancel:           make(map[string]context.CancelFunc),
		waiters:          make(map[string][]chan *Job),
		recoveryInterval: cfg.RecoveryInterval,
	}
}

// RegisterHandler registers a handler for a job type.
func (r *Runner) RegisterHandler(jobType JobType, handler JobHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = handler
	r.logger.Debug("Registered job handler", "type", jobType)
}

// OnFinish sets a callback invoked with a copy of every job that reaches a
// terminal state.
func (r *Runner) OnFinish(fn func(Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFinish = fn
}

// Start begins processing jobs.
func (r *Runner) Start() error {
	r.logger.Info("Starting job runner",
		"workers", r.workerCount,
		"queueSize", r.queueSize,
		"jobTimeout", r.jobTimeout.String(),
		"recoveryInterval", r.recoveryInterval.String(),
	)

	for i := 0; i < r.workerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.wg.Add(1)
	go r.recoveryLoop()

	r.cleanup()
	r.recoverPendingJobs()
	return nil
}

// recoveryLoop periodically re-enqueues queued jobs and prunes old ones.
func (r *Runner) recoveryLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.recoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.recoverPendingJobs()
			r.cleanup()
		case <-r.done:
			r.logger.Debug("Recovery loop stopping")
			return
		}
	}
}

// recoverPendingJobs loads queued jobs from the database and enqueues them.
// A job enqueued twice is skipped by the second worker that sees it.
func (r *Runner) recoverPendingJobs() {
	pending, err := r.store.GetPendingJobs()
	if err != nil {
		r.logger.Warn("Failed to recover pending jobs", "error", err.Error())
		return
	}
	if len(pending) == 0 {
		return
	}

	recovered := 0
enqueue:
	for _, job := range pending {
		select {
		case r.queue <- job:
			recovered++
		default:
			// Queue still full, retry on next interval
			break enqueue
		}
	}

	if recovered > 0 {
		r.logger.Info("Recovered pending jobs",
			"recovered", recovered,
			"remaining", len(pending)-recovered,
		)
	}
}

func (r *Runner) cleanup() {
	if r.retention <= 0 {
		return
	}
	removed, err := r.store.CleanupOldJobs(r.retention)
	if err != nil {
		r.logger.Warn("Failed to clean up old jobs", "error", err.Error())
		return
	}
	if removed > 0 {
		r.logger.Info("Removed old jobs", "count", removed)
	}
}

// Stop gracefully shuts down the runner. Running jobs are cancelled.
func (r *Runner) Stop(timeout time.Duration) error {
	r.logger.Info("Stopping job runner")

	r.stopOnce.Do(func() { close(r.done) })

	r.mu.Lock()
	for id, cancel := range r.cancel {
		r.logger.Debug("Cancelling running job", "jobId", id)
		cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("Job runner stopped cleanly")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("job runner shutdown timed out after %v", timeout)
	}
}

// Submit persists job and adds it to the queue. When the queue is full the
// job stays in the database and is picked up by the recovery loop.
func (r *Runner) Submit(job *Job) error {
	select {
	case <-r.done:
		return fmt.Errorf("runner is shutting down")
	default:
	}

	if err := r.store.CreateJob(job); err != nil {
		return cserrors.New(cserrors.StorageError, "failed to persist job", err)
	}

	select {
	case r.queue <- job:
		r.logger.Debug("Job queued", "jobId", job.ID, "type", job.Type)
		return nil
	case <-time.After(100 * time.Millisecond):
		r.logger.Warn("Job queue full, job will be processed later", "jobId", job.ID)
		return nil
	case <-r.done:
		return fmt.Errorf("runner is shutting down")
	}
}

// Cancel attempts to cancel a job.
func (r *Runner) Cancel(jobID string) error {
	job, err := r.store.GetJob(jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return cserrors.New(cserrors.JobNotFound, "job not found: "+jobID, nil)
	}
	if !job.CanCancel() {
		return fmt.Errorf("job cannot be cancelled in state: %s", job.Status)
	}

	r.mu.Lock()
	cancel, running := r.cancel[jobID]
	r.mu.Unlock()
	if running {
		// The worker records the final state.
		cancel()
		return nil
	}

	from := job.Status
	job.MarkCancelled()
	ok, err := r.store.TransitionJob(job, from)
	if err != nil {
		return err
	}
	if !ok {
		// A worker claimed the job after it was read.
		r.mu.Lock()
		cancel, running = r.cancel[jobID]
		r.mu.Unlock()
		if running {
			cancel()
			return nil
		}
		return fmt.Errorf("job %s changed state while cancelling", jobID)
	}
	r.finish(job)
	return nil
}

// Await blocks until the job reaches a terminal state or ctx is done.
func (r *Runner) Await(ctx context.Context, jobID string) (*Job, error) {
	ch := make(chan *Job, 1)
	r.mu.Lock()
	r.waiters[jobID] = append(r.waiters[jobID], ch)
	r.mu.Unlock()

	defer r.dropWaiter(jobID, ch)

	job, err := r.store.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, cserrors.New(cserrors.JobNotFound, "job not found: "+jobID, nil)
	}
	if job.IsTerminal() {
		return job, nil
	}

	select {
	case job := <-ch:
		return job, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Runner) dropWaiter(jobID string, ch chan *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.waiters[jobID]
	for i, c := range list {
		if c == ch {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(r.waiters, jobID)
	} else {
		r.waiters[jobID] = list
	}
}

// finish notifies waiters and the OnFinish callback of a terminal job.
func (r *Runner) finish(job *Job) {
	r.mu.Lock()
	list := r.waiters[job.ID]
	delete(r.waiters, job.ID)
	onFinish := r.onFinish
	r.mu.Unlock()

	if onFinish != nil {
		onFinish(*job)
	}
	for _, ch := range list {
		snapshot := *job
		ch <- &snapshot
	}
}

// GetJob retrieves a job by ID.
func (r *Runner) GetJob(jobID string) (*Job, error) {
	return r.store.GetJob(jobID)
}

// ListJobs lists jobs with filters.
func (r *Runner) ListJobs(opts ListJobsOptions) (*ListJobsResponse, error) {
	return r.store.ListJobs(opts)
}

// worker processes jobs from the queue.
func (r *Runner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("Job worker started", "workerId", id)

	for {
		select {
		case job, ok := <-r.queue:
			if !ok {
				return
			}
			r.processJob(job)
		case <-r.done:
			r.logger.Debug("Job worker stopping", "workerId", id)
			return
		}
	}
}

// processJob executes a single job.
func (r *Runner) processJob(queued *Job) {
	// The queued copy may be stale: the job can have been cancelled or
	// picked up by another worker through recovery.
	job, err := r.store.GetJob(queued.ID)
	if err != nil {
		r.logger.Error("Failed to load job", "jobId", queued.ID, "error", err.Error())
		return
	}
	if job == nil || job.Status != JobQueued {
		return
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if r.jobTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), r.jobTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	defer cancel()

	// The cancel func is registered before the claim so Cancel never sees a
	// running job without one.
	r.mu.Lock()
	if _, busy := r.cancel[job.ID]; busy {
		r.mu.Unlock()
		return
	}
	r.cancel[job.ID] = cancel
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.cancel, job.ID)
		r.mu.Unlock()
	}()

	job.MarkStarted()
	claimed, err := r.store.TransitionJob(job, JobQueued)
	if err != nil {
		r.logger.Error("Failed to claim job", "jobId", job.ID, "error", err.Error())
		return
	}
	if !claimed {
		r.logger.Debug("Job already claimed", "jobId", job.ID)
		return
	}

	r.mu.RLock()
	handler, ok := r.handlers[job.Type]
	r.mu.RUnlock()

	if !ok {
		r.logger.Error("No handler for job type", "jobId", job.ID, "type", job.Type)
		job.MarkFailed(fmt.Errorf("no handler for job type: %s", job.Type))
		r.failedCount.Add(1)
		r.save(job)
		r.finish(job)
		return
	}

	r.logger.Info("Processing job", "jobId", job.ID, "type", job.Type)

	progress := func(pct int) {
		job.SetProgress(pct)
		if err := r.store.UpdateJob(job); err != nil {
			r.logger.Warn("Failed to update job progress", "jobId", job.ID, "error", err.Error())
		}
	}

	startTime := time.Now()
	result, err := r.run(ctx, handler, job, progress)
	duration := time.Since(startTime)

	switch {
	case err != nil && errors.Is(ctx.Err(), context.Canceled):
		job.MarkCancelled()
		r.logger.Info("Job cancelled", "jobId", job.ID, "duration", duration.String())
	case err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		job.MarkFailed(cserrors.New(cserrors.Timeout,
			fmt.Sprintf("job exceeded %v", r.jobTimeout), err))
		r.failedCount.Add(1)
		r.logger.Error("Job timed out", "jobId", job.ID, "duration", duration.String())
	case err != nil:
		job.MarkFailed(err)
		r.failedCount.Add(1)
		r.logger.Error("Job failed", "jobId", job.ID, "error", err.Error(), "duration", duration.String())
	default:
		if err := job.MarkCompleted(result); err != nil {
			r.logger.Error("Failed to serialize job result", "jobId", job.ID, "error", err.Error())
			job.MarkFailed(err)
			r.failedCount.Add(1)
		} else {
			r.processedCount.Add(1)
			r.logger.Info("Job completed", "jobId", job.ID, "duration", duration.String())
		}
	}

	r.save(job)
	r.finish(job)
}

// run calls handler and turns a panic into an INTERNAL_ERROR failure.
func (r *Runner) run(ctx context.Context, handler JobHandler, job *Job, progress func(int)) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = cserrors.New(cserrors.InternalError, fmt.Sprintf("job handler panicked: %v", p), nil)
		}
	}()
	return handler(ctx, job, progress)
}

func (r *Runner) save(job *Job) {
	if err := r.store.UpdateJob(job); err != nil {
		r.logger.Error("Failed to save job state", "jobId", job.ID, "status", job.Status, "error", err.Error())
	}
}

// Stats is a point-in-time view of the runner.
type Stats struct {
	QueueLength    int   `json:"queueLength" yaml:"queueLength" toml:"queueLength"`
	QueueCapacity  int   `json:"queueCapacity" yaml:"queueCapacity" toml:"queueCapacity"`
	RunningJobs    int   `json:"runningJobs" yaml:"runningJobs" toml:"runningJobs"`
	ProcessedTotal int64 `json:"processedTotal" yaml:"processedTotal" toml:"processedTotal"`
	FailedTotal    int64 `json:"failedTotal" yaml:"failedTotal" toml:"failedTotal"`
	WorkerCount    int   `json:"workerCount" yaml:"workerCount" toml:"workerCount"`
}

// Stats returns runner statistics.
func (r *Runner) Stats() Stats {
	r.mu.RLock()
	runningCount := len(r.cancel)
	r.mu.RUnlock()

	return Stats{
		QueueLength:    len(r.queue),
		QueueCapacity:  r.queueSize,
		RunningJobs:    runningCount,
		ProcessedTotal: r.processedCount.Load(),
		FailedTotal:    r.failedCount.Load(),
		WorkerCount:    r.workerCount,
	}
}

// IsRunning returns true if the runner is active.
func (r *Runner) IsRunning() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}
