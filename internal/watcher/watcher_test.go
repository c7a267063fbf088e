package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestEventTypeString(t *testing.T) {
	tests := []struct {
		eventType EventType
		want      string
	}{
		{EventCreate, "create"},
		{EventModify, "modify"},
		{EventDelete, "delete"},
		{EventType(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.eventType.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBatchDebouncerAdd(t *testing.T) {
	var received []Event
	var mu sync.Mutex

	emit := func(events []Event) {
		mu.Lock()
		received = events
		mu.Unlock()
	}

	b := NewBatchDebouncer(50*time.Millisecond, emit)

	b.Add(Event{Type: EventCreate, Path: "file1.py"})
	b.Add(Event{Type: EventModify, Path: "file2.py"})
	b.Add(Event{Type: EventDelete, Path: "file3.py"})

	if b.EventCount() != 3 {
		t.Errorf("EventCount() = %d, want 3", b.EventCount())
	}

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 3 {
		t.Fatalf("Should have received 3 events, got %d", len(received))
	}
	if received[0].Path != "file1.py" || received[2].Path != "file3.py" {
		t.Errorf("events out of order: %+v", received)
	}
}

func TestBatchDebouncerCoalesces(t *testing.T) {
	var received []Event
	b := NewBatchDebouncer(time.Hour, func(events []Event) { received = events })

	b.Add(Event{Type: EventCreate, Path: "a.py"})
	b.Add(Event{Type: EventModify, Path: "b.py"})
	b.Add(Event{Type: EventModify, Path: "a.py"})
	b.Add(Event{Type: EventDelete, Path: "b.py"})

	if b.EventCount() != 2 {
		t.Errorf("EventCount() = %d, want 2", b.EventCount())
	}
	b.Flush()

	if len(received) != 2 {
		t.Fatalf("received %+v", received)
	}
	if received[0].Path != "a.py" || received[0].Type != EventCreate {
		t.Errorf("a.py = %+v, want create", received[0])
	}
	if received[1].Path != "b.py" || received[1].Type != EventDelete {
		t.Errorf("b.py = %+v, want delete", received[1])
	}
}

func TestBatchDebouncerCancel(t *testing.T) {
	var called bool
	var mu sync.Mutex

	b := NewBatchDebouncer(50*time.Millisecond, func([]Event) {
		mu.Lock()
		called = true
		mu.Unlock()
	})
	b.Add(Event{Type: EventCreate, Path: "file.py"})
	b.Cancel()

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	if called {
		t.Error("Emit should not be called after cancel")
	}
	mu.Unlock()

	if b.EventCount() != 0 {
		t.Errorf("EventCount() = %d, want 0 after cancel", b.EventCount())
	}
}

func TestBatchDebouncerNoEmitWithNoEvents(t *testing.T) {
	called := false
	b := NewBatchDebouncer(10*time.Millisecond, func([]Event) { called = true })
	b.Flush()
	if called {
		t.Error("Emit should not be called with no events")
	}
}

// excludeDir ignores one directory name at the root.
type excludeDir string

func (e excludeDir) Excluded(rel string) bool { return rel == string(e) }
func (e excludeDir) Match(rel string) bool    { return filepath.Ext(rel) == ".py" }

type collector struct {
	mu     sync.Mutex
	events []Event
	ch     chan struct{}
}

func newCollector() *collector {
	return &collector{ch: make(chan struct{}, 16)}
}

func (c *collector) handle(_ context.Context, events []Event) {
	c.mu.Lock()
	c.events = append(c.events, events...)
	c.mu.Unlock()
	c.ch <- struct{}{}
}

func (c *collector) wait(t *testing.T) []Event {
	t.Helper()
	select {
	case <-c.ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for events")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.events
	c.events = nil
	return out
}

func (c *collector) quiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case <-c.ch:
		c.mu.Lock()
		defer c.mu.Unlock()
		t.Errorf("unexpected events: %+v", c.events)
	case <-time.After(d):
	}
}

func write(t *testing.T, p, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func findEvent(events []Event, path string) (Event, bool) {
	for _, e := range events {
		if e.Path == path {
			return e, true
		}
	}
	return Event{}, false
}

func TestWatcher_ReportsContentChanges(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "a.py"), "a = 1\n")

	c := newCollector()
	w, err := New(root, Config{DebounceMs: 30}, excludeDir("build"), nil, c.handle)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = w.Stop() }()

	if s := w.Stats(); s.TrackedFiles != 1 {
		t.Errorf("TrackedFiles = %d, want 1", s.TrackedFiles)
	}

	write(t, filepath.Join(root, "a.py"), "a = 2\n")
	events := c.wait(t)
	if e, ok := findEvent(events, "a.py"); !ok || e.Type != EventModify {
		t.Errorf("events = %+v, want modify a.py", events)
	}

	// Same content, ignored path and non-matching file produce nothing.
	write(t, filepath.Join(root, "a.py"), "a = 2\n")
	write(t, filepath.Join(root, "build", "gen.py"), "x\n")
	write(t, filepath.Join(root, "notes.txt"), "x\n")
	c.quiet(t, 300*time.Millisecond)

	write(t, filepath.Join(root, "pkg", "b.py"), "b = 1\n")
	events = c.wait(t)
	if e, ok := findEvent(events, "pkg/b.py"); !ok || e.Type != EventCreate {
		t.Errorf("events = %+v, want create pkg/b.py", events)
	}

	if err := os.Remove(filepath.Join(root, "a.py")); err != nil {
		t.Fatal(err)
	}
	events = c.wait(t)
	if e, ok := findEvent(events, "a.py"); !ok || e.Type != EventDelete {
		t.Errorf("events = %+v, want delete a.py", events)
	}
}

func TestWatcher_SkipsDataAndOutputDirs(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "out")
	write(t, filepath.Join(out, "old.py"), "x\n")
	write(t, filepath.Join(root, ".codeshrink", "x.py"), "x\n")

	c := newCollector()
	w, err := New(root, Config{DebounceMs: 20, Skip: []string{out}}, nil, nil, c.handle)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = w.Stop() }()

	if s := w.Stats(); s.TrackedFiles != 0 {
		t.Errorf("TrackedFiles = %d, want 0", s.TrackedFiles)
	}

	write(t, filepath.Join(out, "new.py"), "y\n")
	c.quiet(t, 200*time.Millisecond)
}

func TestWatcher_MissingRoot(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "missing"), Config{}, nil, nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Start(); err == nil {
		t.Error("Start() should fail for a missing root")
	}
	_ = w.Stop()
}
