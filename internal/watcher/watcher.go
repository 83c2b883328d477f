// Package watcher watches directories with fsnotify and reports debounced file changes.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Watcher watches root directories and invokes callbacks on file changes.
type Watcher struct {
	roots       []string
	extensions  []string
	recursive   bool
	filter      func(path string) bool
	onChange    func(path string)
	onRemove    func(path string)
	debounce    time.Duration
	watcher     *fsnotify.Watcher
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
	logger      *zap.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets how long a path must be quiet before onChange fires.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithFilter restricts callbacks to paths for which keep returns true.
func WithFilter(keep func(path string) bool) Option {
	return func(w *Watcher) { w.filter = keep }
}

// NewWatcher creates a watcher. extensions filters which files are reported (empty = all).
// onChange fires for created or written files after the debounce interval; onRemove fires
// immediately for removed or renamed-away files. Either callback may be nil.
func NewWatcher(roots []string, extensions []string, recursive bool, onChange, onRemove func(path string), opts ...Option) *Watcher {
	w := &Watcher{
		roots:       roots,
		extensions:  extensions,
		recursive:   recursive,
		onChange:    onChange,
		onRemove:    onRemove,
		debounce:    defaultDebounce,
		debounceMap: make(map[string]*time.Timer),
		done:        make(chan struct{}),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WatchFile returns a watcher that calls onChange whenever the file at path is written,
// created, or replaced by rename. The parent directory is watched so atomic replacement
// is seen.
func WatchFile(path string, onChange func(path string), opts ...Option) *Watcher {
	target := filepath.Clean(path)
	opts = append(opts, WithFilter(func(p string) bool { return filepath.Clean(p) == target }))
	return NewWatcher([]string{filepath.Dir(target)}, nil, false, onChange, nil, opts...)
}

// Start starts the watcher. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true
	w.logger.Debug("watcher starting", zap.Strings("roots", w.roots), zap.Strings("extensions", w.extensions), zap.Bool("recursive", w.recursive))
	for _, root := range w.roots {
		if err := w.addRootLocked(root); err != nil {
			_ = w.watcher.Close()
			w.watcher = nil
			w.started = false
			w.mu.Unlock()
			return err
		}
	}
	events, errs := watcher.Events, watcher.Errors
	w.mu.Unlock()
	go w.run(ctx, events, errs)
	return nil
}

func (w *Watcher) run(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-errs:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Warn("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	if !w.underRoot(path) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			if w.recursive {
				w.handleNewDirectory(path)
			}
			return
		}
		if w.wants(path) {
			w.debounceChange(path)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.cancelDebounce(path)
		if w.wants(path) && w.onRemove != nil {
			w.onRemove(path)
		}
	}
}

// handleNewDirectory watches a newly created directory tree and reports the files in it.
func (w *Watcher) handleNewDirectory(dirPath string) {
	w.mu.Lock()
	watcher := w.watcher
	w.mu.Unlock()
	if watcher == nil {
		return
	}
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := watcher.Add(path); err != nil {
				w.logger.Debug("watcher failed to add directory", zap.String("path", path), zap.Error(err))
			}
		}
		return nil
	})
	w.syncDirectory(dirPath)
}

func (w *Watcher) underRoot(path string) bool {
	clean := filepath.Clean(path)
	for _, root := range w.roots {
		if inDir(filepath.Clean(root), clean) {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (w *Watcher) wants(path string) bool {
	if w.filter != nil && !w.filter(path) {
		return false
	}
	return matchExtension(path, w.extensions)
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

func (w *Watcher) debounceChange(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
	}
	w.debounceMap[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		w.mu.Unlock()
		w.logger.Debug("watcher reporting change", zap.String("path", path))
		if w.onChange != nil {
			w.onChange(path)
		}
	})
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
		delete(w.debounceMap, path)
	}
}

func (w *Watcher) addRootLocked(root string) error {
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	if !w.recursive {
		return w.watcher.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) syncDirectory(root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if w.wants(path) && w.onChange != nil {
			w.onChange(path)
		}
		return nil
	})
}

// SyncExistingFiles reports every matching file already present under the roots. Call it
// after Start to catch up on files that changed while nothing was watching.
func (w *Watcher) SyncExistingFiles() {
	for _, root := range w.roots {
		w.syncDirectory(root)
	}
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.debounceMap {
		t.Stop()
		delete(w.debounceMap, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
