package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	cserrors "codeshrink/internal/errors"
)

var errTest = errors.New("boom")

func startRunner(t *testing.T, cfg RunnerConfig, handlers map[JobType]JobHandler) *Runner {
	t.Helper()
	r := NewRunner(openTestStore(t), nil, cfg)
	for typ, h := range handlers {
		r.RegisterHandler(typ, h)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = r.Stop(5 * time.Second) })
	return r
}

func submitAndAwait(t *testing.T, r *Runner, job *Job) *Job {
	t.Helper()
	if err := r.Submit(job); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done, err := r.Await(ctx, job.ID)
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	return done
}

func TestRunner_CompletesJob(t *testing.T) {
	var mu sync.Mutex
	var finished []JobStatus

	r := startRunner(t, RunnerConfig{WorkerCount: 2}, map[JobType]JobHandler{
		JobTypeCompactFile: func(ctx context.Context, job *Job, progress func(int)) (any, error) {
			scope, err := ParseCompactFileScope(job.Scope)
			if err != nil {
				return nil, err
			}
			progress(50)
			return FileResult{RelPath: scope.RelPath, Compressed: true}, nil
		},
	})
	r.OnFinish(func(j Job) {
		mu.Lock()
		finished = append(finished, j.Status)
		mu.Unlock()
	})

	job, _ := NewJob(JobTypeCompactFile, CompactFileScope{Source: "a.py"})
	done := submitAndAwait(t, r, job)

	if done.Status != JobCompleted {
		t.Fatalf("Status = %v, want completed (error %q)", done.Status, done.Error)
	}
	var result FileResult
	if err := done.DecodeResult(&result); err != nil {
		t.Fatalf("DecodeResult() error = %v", err)
	}
	if result.RelPath != "a.py" || !result.Compressed {
		t.Errorf("result = %+v", result)
	}

	stored, _ := r.GetJob(job.ID)
	if stored.Status != JobCompleted || stored.Progress != 100 {
		t.Errorf("stored = %+v", stored)
	}
	if s := r.Stats(); s.ProcessedTotal != 1 || s.FailedTotal != 0 {
		t.Errorf("stats = %+v", s)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(finished) != 1 || finished[0] != JobCompleted {
		t.Errorf("OnFinish saw %v", finished)
	}
}

func TestRunner_HandlerError(t *testing.T) {
	r := startRunner(t, RunnerConfig{}, map[JobType]JobHandler{
		JobTypeCompactFile: func(context.Context, *Job, func(int)) (any, error) {
			return nil, cserrors.New(cserrors.InputTooLarge, "too big", nil)
		},
	})

	job, _ := NewJob(JobTypeCompactFile, nil)
	done := submitAndAwait(t, r, job)
	if done.Status != JobFailed || done.ErrorCode != string(cserrors.InputTooLarge) {
		t.Errorf("got status %v code %q", done.Status, done.ErrorCode)
	}
	if r.Stats().FailedTotal != 1 {
		t.Errorf("FailedTotal = %d, want 1", r.Stats().FailedTotal)
	}
}

func TestRunner_NoHandler(t *testing.T) {
	r := startRunner(t, RunnerConfig{}, nil)

	job, _ := NewJob(JobTypeCompactGroup, nil)
	done := submitAndAwait(t, r, job)
	if done.Status != JobFailed {
		t.Errorf("Status = %v, want failed", done.Status)
	}
}

func TestRunner_PanicBecomesFailure(t *testing.T) {
	r := startRunner(t, RunnerConfig{}, map[JobType]JobHandler{
		JobTypeCompactFile: func(context.Context, *Job, func(int)) (any, error) {
			panic("handler bug")
		},
	})

	job, _ := NewJob(JobTypeCompactFile, nil)
	done := submitAndAwait(t, r, job)
	if done.Status != JobFailed || done.ErrorCode != string(cserrors.InternalError) {
		t.Errorf("got status %v code %q", done.Status, done.ErrorCode)
	}
}

func TestRunner_Timeout(t *testing.T) {
	r := startRunner(t, RunnerConfig{JobTimeout: 20 * time.Millisecond}, map[JobType]JobHandler{
		JobTypeCompactFile: func(ctx context.Context, _ *Job, _ func(int)) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	job, _ := NewJob(JobTypeCompactFile, nil)
	done := submitAndAwait(t, r, job)
	if done.Status != JobFailed || done.ErrorCode != string(cserrors.Timeout) {
		t.Errorf("got status %v code %q", done.Status, done.ErrorCode)
	}
}

func TestRunner_CancelRunning(t *testing.T) {
	started := make(chan struct{})
	r := startRunner(t, RunnerConfig{}, map[JobType]JobHandler{
		JobTypeCompactFile: func(ctx context.Context, _ *Job, _ func(int)) (any, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	job, _ := NewJob(JobTypeCompactFile, nil)
	if err := r.Submit(job); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	<-started
	if err := r.Cancel(job.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done, err := r.Await(ctx, job.ID)
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if done.Status != JobCancelled {
		t.Errorf("Status = %v, want cancelled", done.Status)
	}
	if err := r.Cancel(job.ID); err == nil {
		t.Error("cancelling a finished job should fail")
	}
}

func TestRunner_CancelQueued(t *testing.T) {
	// Not started, so the job stays queued.
	r := NewRunner(openTestStore(t), nil, RunnerConfig{})

	job, _ := NewJob(JobTypeCompactFile, nil)
	if err := r.Submit(job); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := r.Cancel(job.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	done, err := r.Await(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if done.Status != JobCancelled {
		t.Errorf("Status = %v, want cancelled", done.Status)
	}

	// A stale queued copy is skipped by the worker.
	r.processJob(job)
	if stored, _ := r.GetJob(job.ID); stored.Status != JobCancelled {
		t.Errorf("Status = %v, want cancelled", stored.Status)
	}
}

func TestRunner_UnknownJob(t *testing.T) {
	r := NewRunner(openTestStore(t), nil, RunnerConfig{})

	if err := r.Cancel("missing"); !cserrors.Is(err, cserrors.JobNotFound) {
		t.Errorf("Cancel() error = %v, want JOB_NOT_FOUND", err)
	}
	if _, err := r.Await(context.Background(), "missing"); !cserrors.Is(err, cserrors.JobNotFound) {
		t.Errorf("Await() error = %v, want JOB_NOT_FOUND", err)
	}
}

func TestRunner_AwaitContextDone(t *testing.T) {
	r := NewRunner(openTestStore(t), nil, RunnerConfig{})

	job, _ := NewJob(JobTypeCompactFile, nil)
	_ = r.Submit(job)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := r.Await(ctx, job.ID); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Await() error = %v, want deadline exceeded", err)
	}
}

func TestRunner_RecoversPendingJobs(t *testing.T) {
	store := openTestStore(t)
	job, _ := NewJob(JobTypeCompactFile, nil)
	if err := store.CreateJob(job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	r := NewRunner(store, nil, RunnerConfig{})
	r.RegisterHandler(JobTypeCompactFile, func(context.Context, *Job, func(int)) (any, error) {
		return nil, nil
	})
	if err := r.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = r.Stop(5 * time.Second) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done, err := r.Await(ctx, job.ID)
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if done.Status != JobCompleted {
		t.Errorf("Status = %v, want completed", done.Status)
	}
}

func TestRunner_JobQueuedTwiceRunsOnce(t *testing.T) {
	store := openTestStore(t)
	job, _ := NewJob(JobTypeCompactFile, nil)
	if err := store.CreateJob(job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	var calls atomic.Int32
	handler := func(context.Context, *Job, func(int)) (any, error) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		return nil, nil
	}

	// Two runners on one store stand in for a worker that picked the job up
	// from the queue and another that picked it up again through recovery.
	runners := []*Runner{
		NewRunner(store, nil, RunnerConfig{}),
		NewRunner(store, nil, RunnerConfig{}),
		NewRunner(store, nil, RunnerConfig{}),
	}
	var wg sync.WaitGroup
	for i, r := range runners {
		r.RegisterHandler(JobTypeCompactFile, handler)
		// The first runner also sees the job twice itself.
		copies := 1
		if i == 0 {
			copies = 2
		}
		for c := 0; c < copies; c++ {
			wg.Add(1)
			go func(r *Runner) {
				defer wg.Done()
				queued := *job
				r.processJob(&queued)
			}(r)
		}
	}
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("handler ran %d times, want 1", n)
	}
	stored, err := store.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if stored.Status != JobCompleted {
		t.Errorf("Status = %v, want completed", stored.Status)
	}
}

func TestRunner_SubmitAfterStop(t *testing.T) {
	r := NewRunner(openTestStore(t), nil, RunnerConfig{})
	if err := r.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := r.Stop(time.Second); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if r.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
	job, _ := NewJob(JobTypeCompactFile, nil)
	if err := r.Submit(job); err == nil {
		t.Error("Submit() after Stop should fail")
	}
	// A second Stop must not panic.
	_ = r.Stop(time.Second)
}
