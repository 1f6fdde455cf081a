// Package watcher turns inbox directories into uploads: PDFs created under a watched
// directory are handed to a callback after a short quiet period, and removals are reported.
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

// IsPDF reports whether path names a PDF that is not hidden or a partial download.
func IsPDF(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$") {
		return false
	}
	return strings.EqualFold(filepath.Ext(base), ".pdf")
}

// Watcher watches inbox directories and calls onFile for new or rewritten PDFs and
// onRemove for PDFs that disappear (deleted or moved away).
type Watcher struct {
	mu        sync.Mutex
	roots     []string
	rootPaths map[string][]string // root -> directories registered with fsnotify
	recursive bool
	accept    func(path string) bool
	onFile    func(path string)
	onRemove  func(path string)
	debounce  time.Duration
	pending   map[string]*time.Timer
	fs        *fsnotify.Watcher
	done      chan struct{}
	stopOnce  sync.Once
	logger    *zap.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a logger for watch events.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets how long a file must stay quiet before onFile runs.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithFilter replaces IsPDF as the file filter.
func WithFilter(accept func(path string) bool) Option {
	return func(w *Watcher) { w.accept = accept }
}

// New creates a watcher for roots. Missing roots are created on Start.
func New(roots []string, recursive bool, onFile, onRemove func(path string), opts ...Option) *Watcher {
	w := &Watcher{
		roots:     append([]string(nil), roots...),
		rootPaths: make(map[string][]string),
		recursive: recursive,
		accept:    IsPDF,
		onFile:    onFile,
		onRemove:  onRemove,
		debounce:  defaultDebounce,
		pending:   make(map[string]*time.Timer),
		done:      make(chan struct{}),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start registers every root and processes events until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.fs != nil {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.fs = fsw
	for _, root := range w.roots {
		if err := w.addRootLocked(root); err != nil {
			_ = fsw.Close()
			w.fs = nil
			w.mu.Unlock()
			return err
		}
	}
	w.logger.Debug("inbox watcher started", zap.Strings("roots", w.roots), zap.Bool("recursive", w.recursive))
	w.mu.Unlock()
	go w.loop(ctx, fsw)
	return nil
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.dispatch(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Debug("inbox watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) dispatch(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if !w.underRoot(path) {
		return
	}
	w.logger.Debug("inbox event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.enterDirectory(path)
			return
		}
		if w.accept(path) {
			w.schedule(path)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.cancel(path)
		if w.accept(path) && w.onRemove != nil {
			w.onRemove(path)
		}
	}
}

// enterDirectory starts watching a directory that appeared under a root and picks up the
// PDFs already inside it.
func (w *Watcher) enterDirectory(dir string) {
	if !w.recursive {
		return
	}
	w.mu.Lock()
	if w.fs == nil {
		w.mu.Unlock()
		return
	}
	added, err := w.watchTree(w.fs, dir)
	if err != nil {
		w.logger.Debug("inbox failed to watch directory", zap.String("path", dir), zap.Error(err))
	}
	for _, root := range w.roots {
		if root = filepath.Clean(root); inDir(root, dir) {
			w.rootPaths[root] = append(w.rootPaths[root], added...)
			break
		}
	}
	w.mu.Unlock()
	w.scan(dir)
}

// watchTree adds dir (and its subdirectories when recursive) to fsw. Callers hold w.mu.
func (w *Watcher) watchTree(fsw *fsnotify.Watcher, dir string) ([]string, error) {
	if !w.recursive {
		if err := fsw.Add(dir); err != nil {
			return nil, err
		}
		return []string{dir}, nil
	}
	var added []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := fsw.Add(path); err != nil {
			return err
		}
		added = append(added, path)
		return nil
	})
	return added, err
}

func (w *Watcher) addRootLocked(root string) error {
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	added, err := w.watchTree(w.fs, root)
	if err != nil {
		return err
	}
	w.rootPaths[root] = append(w.rootPaths[root], added...)
	return nil
}

func (w *Watcher) underRoot(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, root := range w.roots {
		if inDir(filepath.Clean(root), path) {
			return true
		}
	}
	return false
}

// inDir reports whether path is dir or lies below it.
func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// schedule runs onFile for path once no event has touched it for the debounce period.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.logger.Debug("inbox file settled", zap.String("path", path))
		if w.onFile != nil {
			w.onFile(path)
		}
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

// scan calls onFile for every accepted file below dir.
func (w *Watcher) scan(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && !w.recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if w.accept(path) && w.onFile != nil {
			w.onFile(path)
		}
		return nil
	})
}

// AddDirectory adds an inbox root and optionally uploads the PDFs already in it.
func (w *Watcher) AddDirectory(root string, syncExisting bool) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	if w.fs == nil {
		w.mu.Unlock()
		return nil
	}
	for _, r := range w.roots {
		if filepath.Clean(r) == abs {
			w.mu.Unlock()
			return nil
		}
	}
	if err := w.addRootLocked(abs); err != nil {
		w.mu.Unlock()
		return err
	}
	w.roots = append(w.roots, abs)
	w.mu.Unlock()
	w.logger.Debug("inbox directory added", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if syncExisting {
		go w.scan(abs)
	}
	return nil
}

// RemoveDirectory stops watching root. Documents already uploaded from it are kept.
func (w *Watcher) RemoveDirectory(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fs == nil {
		return nil
	}
	for i, r := range w.roots {
		if filepath.Clean(r) != abs {
			continue
		}
		for _, p := range w.rootPaths[abs] {
			_ = w.fs.Remove(p)
		}
		delete(w.rootPaths, abs)
		w.roots = append(w.roots[:i], w.roots[i+1:]...)
		w.logger.Debug("inbox directory removed", zap.String("path", abs))
		return nil
	}
	return nil
}

// Directories returns the current inbox roots.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

// SyncExistingFiles uploads the PDFs already present in every root. Call after Start.
func (w *Watcher) SyncExistingFiles() {
	for _, root := range w.Directories() {
		w.scan(root)
	}
}

// Stop stops watching and drops pending uploads.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.fs == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	_ = w.fs.Close()
	w.fs = nil
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
