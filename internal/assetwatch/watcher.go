package assetwatch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/kingrea/pzedit/internal/eventbridge"
)

// Source is the event source recorded on everything the watcher emits.
const Source = "assetwatch"

// Logger matches logging.Logger.
type Logger interface {
	Printf(format string, args ...any)
}

// Option customizes a Watcher.
type Option func(*Watcher)

// WithDebounce sets the coalescing window. Zero reports every change on its
// own.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithLogger reports watch errors and skipped roots.
func WithLogger(l Logger) Option {
	return func(w *Watcher) {
		w.logger = l
	}
}

// Watcher watches asset directories recursively.
type Watcher struct {
	root     string
	debounce time.Duration
	sink     eventbridge.EventProcessor
	logger   Logger
	fs       *fsnotify.Watcher

	mu      sync.Mutex
	watched map[string]bool
}

// New watches every directory under each of dirs. Asset ids are made
// relative to root. Missing directories are skipped.
func New(root string, dirs []string, sink eventbridge.EventProcessor, opts ...Option) (*Watcher, error) {
	if sink == nil {
		return nil, errors.New("assetwatch: nil event sink")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("assetwatch: resolve %s: %w", root, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("assetwatch: %w", err)
	}
	w := &Watcher{
		root:     abs,
		debounce: 150 * time.Millisecond,
		sink:     sink,
		fs:       fsw,
		watched:  map[string]bool{},
	}
	for _, opt := range opts {
		opt(w)
	}
	for _, dir := range dirs {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(abs, dir)
		}
		if err := w.addTree(dir); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				w.logf("assetwatch: skipping missing root %s", dir)
				continue
			}
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Watched returns the watched directories, relative to root and sorted.
func (w *Watcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	keys := maps.Keys(w.watched)
	slices.Sort(keys)
	return keys
}

// Close stops watching. Run returns once its loop observes the closed
// channels.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

// Run forwards coalesced changes to the sink until ctx is done or the
// watcher is closed. Changes still pending are flushed before returning.
func (w *Watcher) Run(ctx context.Context) error {
	pending := newBatch()
	timer := time.NewTimer(time.Hour)
	stopTimer(timer)
	armed := false
	flush := func() {
		armed = false
		for _, evt := range pending.drain() {
			if err := w.sink.HandleEvent(evt); err != nil {
				w.logf("assetwatch: deliver %s %v: %v", evt.Type, evt.AssetIDs, err)
			}
		}
	}
	defer flush()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !w.handle(ev, pending) {
				continue
			}
			if w.debounce == 0 {
				flush()
				continue
			}
			if armed {
				stopTimer(timer)
			}
			timer.Reset(w.debounce)
			armed = true
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logf("assetwatch: %v", err)
		case <-timer.C:
			flush()
		}
	}
}

// handle records ev in pending and reports whether it concerned an asset.
func (w *Watcher) handle(ev fsnotify.Event, pending *batch) bool {
	if ignored(ev.Name) {
		return false
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logf("assetwatch: watch new dir %s: %v", ev.Name, err)
			}
			return false
		}
	}
	key, ok := w.key(ev.Name)
	if !ok {
		return false
	}
	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		if w.isWatchedDir(key) {
			w.forget(ev.Name)
			return false
		}
		pending.deleted(key)
	case ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create):
		pending.updated(key)
	default:
		return false
	}
	return true
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && ignored(path) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("assetwatch: watch %s: %w", path, err)
		}
		if key, ok := w.key(path); ok {
			w.mu.Lock()
			w.watched[key] = true
			w.mu.Unlock()
		}
		return nil
	})
}

func (w *Watcher) forget(path string) {
	key, ok := w.key(path)
	if !ok {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watched[key] {
		delete(w.watched, key)
		_ = w.fs.Remove(path)
	}
}

func (w *Watcher) isWatchedDir(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watched[key]
}

// key converts path to a slash-separated id relative to root.
func (w *Watcher) key(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *Watcher) logf(format string, args ...any) {
	if w.logger != nil {
		w.logger.Printf(format, args...)
	}
}

// ignored skips editor swap files and hidden entries.
func ignored(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp")
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

// batch coalesces changes: the last change to a key wins.
type batch struct {
	changes map[string]string
}

func newBatch() *batch {
	return &batch{changes: map[string]string{}}
}

func (b *batch) updated(key string) { b.changes[key] = eventbridge.TypeAssetUpdated }

func (b *batch) deleted(key string) { b.changes[key] = eventbridge.TypeAssetDeleted }

// drain returns at most one event per type, deletions last.
func (b *batch) drain() []eventbridge.Event {
	if len(b.changes) == 0 {
		return nil
	}
	var updated, deleted []string
	for key, kind := range b.changes {
		if kind == eventbridge.TypeAssetDeleted {
			deleted = append(deleted, key)
		} else {
			updated = append(updated, key)
		}
	}
	b.changes = map[string]string{}
	var out []eventbridge.Event
	if len(updated) > 0 {
		out = append(out, eventbridge.NewAssetEvent(eventbridge.TypeAssetUpdated, Source, updated...))
	}
	if len(deleted) > 0 {
		out = append(out, eventbridge.NewAssetEvent(eventbridge.TypeAssetDeleted, Source, deleted...))
	}
	return out
}
