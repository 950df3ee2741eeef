// Package watch enqueues Add tasks for archives dropped into the import
// directory.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"folio/internal/config"
	"folio/internal/jobs"
	"folio/internal/logging"
	"folio/internal/queue"
	"folio/internal/task"
)

// DefaultSettle is how long a file must stay quiet before it is imported.
const DefaultSettle = 2 * time.Second

// Enqueuer stores jobs as task records.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobs ...task.Job) ([]queue.Record, error)
}

type pendingImport struct {
	timer *time.Timer
}

// Watcher turns new files in the import directory into Add tasks.
type Watcher struct {
	cfg      *config.Config
	dir      string
	settle   time.Duration
	enqueuer Enqueuer
	logger   *slog.Logger
	fsw      *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*pendingImport
	wg      sync.WaitGroup
}

// Option adjusts a Watcher.
type Option func(*Watcher)

// WithSettle overrides the quiet period before import.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) { w.settle = d }
}

// New creates a watcher for cfg.Paths.ImportDir.
func New(cfg *config.Config, enqueuer Enqueuer, logger *slog.Logger, opts ...Option) (*Watcher, error) {
	if cfg == nil || enqueuer == nil {
		return nil, errors.New("watcher requires config and enqueuer")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		cfg:      cfg,
		dir:      cfg.Paths.ImportDir,
		settle:   DefaultSettle,
		enqueuer: enqueuer,
		logger:   logging.NewComponentLogger(logger, "import-watcher"),
		fsw:      fsw,
		pending:  make(map[string]*pendingImport),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run watches the import directory until ctx ends. Archives already present
// are imported first.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.shutdown()
	if err := w.fsw.Add(w.dir); err != nil {
		w.logger.Error("failed to watch import directory",
			logging.Error(err),
			logging.String("dir", w.dir),
			logging.String(logging.FieldEventType, "import_watch_failed"),
			logging.String(logging.FieldErrorHint, "check import_dir exists and is readable"),
		)
		return err
	}
	w.logger.Info("watching import directory", logging.String("dir", w.dir), logging.Duration("settle", w.settle))
	w.scanExisting(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("import watcher error", logging.Error(err))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if !w.cfg.HasImportExtension(event.Name) {
		return
	}
	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		w.schedule(ctx, event.Name)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.cancel(event.Name)
	}
}

func (w *Watcher) scanExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("failed to scan import directory", logging.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() && w.cfg.HasImportExtension(entry.Name()) {
			w.schedule(ctx, filepath.Join(w.dir, entry.Name()))
		}
	}
}

// schedule (re)starts the quiet timer for path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p, ok := w.pending[path]; ok && p.timer.Stop() {
		p.timer.Reset(w.settle)
		return
	}
	p := &pendingImport{}
	w.wg.Add(1)
	p.timer = time.AfterFunc(w.settle, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == p {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		w.importFile(ctx, path)
	})
	w.pending[path] = p
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p, ok := w.pending[path]; ok && p.timer.Stop() {
		delete(w.pending, path)
		w.wg.Done()
	}
}

func (w *Watcher) importFile(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	job := jobs.NewAdd(path, w.cfg.Import.DeleteBlockedPages, w.cfg.Import.IgnoreMetadata)
	if _, err := w.enqueuer.Enqueue(ctx, job); err != nil {
		w.logger.Error("failed to enqueue import",
			logging.Error(err),
			logging.String("path", path),
			logging.String(logging.FieldEventType, "import_enqueue_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		return
	}
	w.logger.Info("import queued", logging.String("path", path))
}

// shutdown stops pending timers and closes the fsnotify watcher.
func (w *Watcher) shutdown() {
	w.mu.Lock()
	for path, p := range w.pending {
		if p.timer.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
	if err := w.fsw.Close(); err != nil {
		w.logger.Warn("failed to close import watcher", logging.Error(err))
	}
}
