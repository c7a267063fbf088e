package jobs

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "jobs", "jobs.db"), nil)
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_CreateGetUpdate(t *testing.T) {
	store := openTestStore(t)

	job, _ := NewJob(JobTypeCompactFile, CompactFileScope{Source: "a.py"})
	if err := store.CreateJob(job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	got, err := store.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetJob() returned nil")
	}
	if got.Scope != job.Scope || got.Status != JobQueued {
		t.Errorf("got %+v", got)
	}
	if !got.CreatedAt.Equal(job.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, job.CreatedAt)
	}

	got.MarkStarted()
	got.MarkFailed(errTest)
	if err := store.UpdateJob(got); err != nil {
		t.Fatalf("UpdateJob() error = %v", err)
	}

	reloaded, _ := store.GetJob(job.ID)
	if reloaded.Status != JobFailed || reloaded.Error != "boom" || reloaded.ErrorCode != "INTERNAL_ERROR" {
		t.Errorf("reloaded = %+v", reloaded)
	}
	if reloaded.StartedAt == nil || reloaded.CompletedAt == nil {
		t.Error("timestamps should round-trip")
	}
}

func TestStore_Missing(t *testing.T) {
	store := openTestStore(t)

	got, err := store.GetJob("nope")
	if err != nil || got != nil {
		t.Errorf("GetJob(unknown) = %v, %v; want nil, nil", got, err)
	}
	if err := store.UpdateJob(&Job{ID: "nope", Status: JobRunning}); err == nil {
		t.Error("UpdateJob(unknown) should fail")
	}
}

func TestStore_ListAndPending(t *testing.T) {
	store := openTestStore(t)

	base := time.Now().UTC().Add(-time.Hour)
	var ids []string
	for i := 0; i < 5; i++ {
		job, _ := NewJob(JobTypeCompactFile, nil)
		job.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if i%2 == 1 {
			job.Type = JobTypeCompactGroup
		}
		if err := store.CreateJob(job); err != nil {
			t.Fatalf("CreateJob() error = %v", err)
		}
		ids = append(ids, job.ID)
	}

	done, _ := store.GetJob(ids[0])
	_ = done.MarkCompleted(nil)
	_ = store.UpdateJob(done)

	resp, err := store.ListJobs(ListJobsOptions{})
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if resp.TotalCount != 5 || len(resp.Jobs) != 5 {
		t.Fatalf("got %d/%d jobs, want 5/5", len(resp.Jobs), resp.TotalCount)
	}
	if resp.Jobs[0].ID != ids[4] {
		t.Errorf("newest first: got %s, want %s", resp.Jobs[0].ID, ids[4])
	}

	resp, _ = store.ListJobs(ListJobsOptions{Type: []JobType{JobTypeCompactGroup}})
	if resp.TotalCount != 2 {
		t.Errorf("group jobs = %d, want 2", resp.TotalCount)
	}

	resp, _ = store.ListJobs(ListJobsOptions{Status: []JobStatus{JobCompleted}})
	if resp.TotalCount != 1 || resp.Jobs[0].ID != ids[0] {
		t.Errorf("completed jobs = %+v", resp.Jobs)
	}

	resp, _ = store.ListJobs(ListJobsOptions{Limit: 2, Offset: 1})
	if len(resp.Jobs) != 2 || resp.TotalCount != 5 || resp.Jobs[0].ID != ids[3] {
		t.Errorf("paged = %+v (total %d)", resp.Jobs, resp.TotalCount)
	}

	pending, err := store.GetPendingJobs()
	if err != nil {
		t.Fatalf("GetPendingJobs() error = %v", err)
	}
	if len(pending) != 4 || pending[0].ID != ids[1] {
		t.Errorf("pending = %d jobs, first %s", len(pending), pending[0].ID)
	}
}

func TestStore_CleanupOldJobs(t *testing.T) {
	store := openTestStore(t)

	old, _ := NewJob(JobTypeCompactFile, nil)
	_ = store.CreateJob(old)
	_ = old.MarkCompleted(nil)
	past := time.Now().UTC().Add(-48 * time.Hour)
	old.CompletedAt = &past
	_ = store.UpdateJob(old)

	recent, _ := NewJob(JobTypeCompactFile, nil)
	_ = store.CreateJob(recent)
	_ = recent.MarkCompleted(nil)
	_ = store.UpdateJob(recent)

	queued, _ := NewJob(JobTypeCompactFile, nil)
	_ = store.CreateJob(queued)

	removed, err := store.CleanupOldJobs(24 * time.Hour)
	if err != nil {
		t.Fatalf("CleanupOldJobs() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if j, _ := store.GetJob(old.ID); j != nil {
		t.Error("old job should be gone")
	}
	if j, _ := store.GetJob(queued.ID); j == nil {
		t.Error("queued job must be kept")
	}
}

func TestStore_TransitionJob(t *testing.T) {
	store := openTestStore(t)

	job, _ := NewJob(JobTypeCompactFile, nil)
	if err := store.CreateJob(job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	first := *job
	first.MarkStarted()
	ok, err := store.TransitionJob(&first, JobQueued)
	if err != nil || !ok {
		t.Fatalf("first claim = %v, %v; want true", ok, err)
	}

	second := *job
	second.MarkStarted()
	ok, err = store.TransitionJob(&second, JobQueued)
	if err != nil {
		t.Fatalf("TransitionJob() error = %v", err)
	}
	if ok {
		t.Error("second claim of the same job succeeded")
	}

	got, _ := store.GetJob(job.ID)
	if got.Status != JobRunning || got.StartedAt == nil {
		t.Errorf("stored = %+v", got)
	}

	missing, _ := NewJob(JobTypeCompactFile, nil)
	if ok, err := store.TransitionJob(missing, JobQueued); err != nil || ok {
		t.Errorf("unknown job: ok=%v err=%v", ok, err)
	}
}
