// Package watcher reports content changes below a source tree so the
// artifacts of changed files can be recompacted.
package watcher

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"

	"codeshrink/internal/paths"
	"codeshrink/internal/slogutil"
)

// EventType represents the type of file system event
type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
)

// Event is a change to one file. Path is slash-separated and relative to
// the watched root.
type Event struct {
	Type      EventType
	Path      string
	Timestamp time.Time
}

// String returns a string representation of the event type
func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ChangeHandler is called with each debounced batch of changes.
type ChangeHandler func(ctx context.Context, events []Event)

// Matcher decides which paths are watched. Excluded directories are not
// entered; only files passing Match produce events.
type Matcher interface {
	Excluded(rel string) bool
	Match(rel string) bool
}

// Config contains watcher configuration
type Config struct {
	DebounceMs int
	// Skip lists absolute directories that are never watched, such as the
	// output directory when it lies inside the root.
	Skip []string
}

// Watcher watches a source tree with fsnotify. A write that leaves the file
// content unchanged, by xxhash, produces no event.
type Watcher struct {
	root    string
	config  Config
	matcher Matcher
	logger  *slog.Logger
	handler ChangeHandler

	fsw    *fsnotify.Watcher
	batch  *BatchDebouncer
	skip   map[string]bool
	hashes map[string]uint64
	hashMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	dirs    atomic.Int64
	emitted atomic.Int64
}

// New creates a watcher for root. A nil matcher watches every file.
func New(root string, config Config, matcher Matcher, logger *slog.Logger, handler ChangeHandler) (*Watcher, error) {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	skip := make(map[string]bool, len(config.Skip))
	for _, s := range config.Skip {
		if a, err := filepath.Abs(s); err == nil {
			skip[a] = true
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		root:    abs,
		config:  config,
		matcher: matcher,
		logger:  logger,
		handler: handler,
		fsw:     fsw,
		skip:    skip,
		hashes:  make(map[string]uint64),
		ctx:     ctx,
		cancel:  cancel,
	}
	w.batch = NewBatchDebouncer(time.Duration(config.DebounceMs)*time.Millisecond, w.dispatch)
	return w, nil
}

// Start watches every directory of the tree and records the current
// content hash of every matching file.
func (w *Watcher) Start() error {
	if err := w.addTree(w.root, false); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.loop()

	w.logger.Info("Watching source tree",
		"root", w.root,
		"directories", w.dirs.Load(),
		"debounceMs", w.config.DebounceMs,
	)
	return nil
}

// Stop stops watching. Pending events are dropped.
func (w *Watcher) Stop() error {
	w.cancel()
	w.batch.Cancel()
	err := w.fsw.Close()
	w.wg.Wait()
	w.logger.Info("File watcher stopped")
	return err
}

func (w *Watcher) rel(p string) (string, bool) {
	r, err := filepath.Rel(w.root, p)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(r), true
}

func (w *Watcher) ignoredDir(p, rel string) bool {
	if rel == "." {
		return false
	}
	return w.skip[p] || paths.IsDataPath(rel) || (w.matcher != nil && w.matcher.Excluded(rel))
}

func (w *Watcher) matches(rel string) bool {
	return w.matcher == nil || w.matcher.Match(rel)
}

// addTree watches dir and its subdirectories. With announce set, files
// found are reported as created; this covers files written into a new
// directory before its watch was added.
func (w *Watcher) addTree(dir string, announce bool) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		rel, ok := w.rel(p)
		if !ok {
			return filepath.SkipDir
		}
		if d.IsDir() {
			if w.ignoredDir(p, rel) {
				return filepath.SkipDir
			}
			if err := w.fsw.Add(p); err != nil {
				w.logger.Warn("Failed to watch directory", "path", p, "error", err.Error())
				return nil
			}
			w.dirs.Add(1)
			return nil
		}
		if !d.Type().IsRegular() || !w.matches(rel) {
			return nil
		}
		if announce {
			w.batch.Add(Event{Type: EventCreate, Path: rel, Timestamp: time.Now()})
		} else if sum, err := hashFile(p); err == nil {
			w.setHash(rel, sum)
		}
		return nil
	})
}

// loop handles fsnotify events until Stop.
func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err.Error())
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	rel, ok := w.rel(ev.Name)
	if !ok || rel == "." {
		return
	}

	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		w.batch.Add(Event{Type: EventDelete, Path: rel, Timestamp: time.Now()})
		return
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}

	info, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if ev.Has(fsnotify.Create) && !w.ignoredDir(ev.Name, rel) {
			if err := w.addTree(ev.Name, true); err != nil {
				w.logger.Warn("Failed to watch new directory", "path", ev.Name, "error", err.Error())
			}
		}
		return
	}
	if !info.Mode().IsRegular() || !w.matches(rel) || w.insideIgnoredDir(rel) {
		return
	}
	w.batch.Add(Event{Type: EventModify, Path: rel, Timestamp: time.Now()})
}

// insideIgnoredDir reports whether a parent directory of rel is ignored.
func (w *Watcher) insideIgnoredDir(rel string) bool {
	for dir := filepath.Dir(filepath.FromSlash(rel)); dir != "."; dir = filepath.Dir(dir) {
		if w.ignoredDir(filepath.Join(w.root, dir), filepath.ToSlash(dir)) {
			return true
		}
	}
	return false
}

func (w *Watcher) setHash(rel string, sum uint64) {
	w.hashMu.Lock()
	w.hashes[rel] = sum
	w.hashMu.Unlock()
}

// dropHash forgets rel and reports whether it was a tracked file.
func (w *Watcher) dropHash(rel string) bool {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	if _, ok := w.hashes[rel]; ok {
		delete(w.hashes, rel)
		return true
	}
	return false
}

// dispatch settles a debounced batch against the file system. Content is
// hashed only once writes have gone quiet, so a file caught mid-write does
// not produce an event of its own.
func (w *Watcher) dispatch(batch []Event) {
	if w.ctx.Err() != nil {
		return
	}

	events := make([]Event, 0, len(batch))
	for _, ev := range batch {
		if settled, ok := w.settle(ev); ok {
			events = append(events, settled)
		}
	}
	if len(events) == 0 {
		return
	}

	w.emitted.Add(int64(len(events)))
	w.logger.Debug("Source changes detected", "root", w.root, "eventCount", len(events))
	if w.handler != nil {
		w.handler(w.ctx, events)
	}
}

// settle turns a raw event into a create, modify or delete of tracked
// content. It returns false when the content is unchanged.
func (w *Watcher) settle(ev Event) (Event, bool) {
	p := filepath.Join(w.root, filepath.FromSlash(ev.Path))
	sum, err := hashFile(p)
	if err != nil {
		if w.dropHash(ev.Path) {
			ev.Type = EventDelete
			return ev, true
		}
		return ev, false
	}
	if !w.matches(ev.Path) {
		return ev, false
	}

	w.hashMu.Lock()
	old, had := w.hashes[ev.Path]
	w.hashes[ev.Path] = sum
	w.hashMu.Unlock()

	switch {
	case had && old == sum:
		return ev, false
	case had:
		ev.Type = EventModify
	default:
		ev.Type = EventCreate
	}
	return ev, true
}

func hashFile(p string) (uint64, error) {
	f, err := os.Open(p)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	d := xxhash.New()
	if _, err := io.Copy(d, f); err != nil {
		return 0, err
	}
	return d.Sum64(), nil
}

// Stats is a point-in-time view of the watcher.
type Stats struct {
	Root         string `json:"root"`
	Directories  int64  `json:"directories"`
	TrackedFiles int    `json:"trackedFiles"`
	Emitted      int64  `json:"emitted"`
	DebounceMs   int    `json:"debounceMs"`
}

// Stats returns watcher statistics
func (w *Watcher) Stats() Stats {
	w.hashMu.Lock()
	tracked := len(w.hashes)
	w.hashMu.Unlock()

	return Stats{
		Root:         w.root,
		Directories:  w.dirs.Load(),
		TrackedFiles: tracked,
		Emitted:      w.emitted.Load(),
		DebounceMs:   w.config.DebounceMs,
	}
}
