package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"folio/internal/api"
	"folio/internal/archive"
	"folio/internal/catalog"
	"folio/internal/config"
	"folio/internal/hashing"
	"folio/internal/jobs"
	"folio/internal/logging"
	"folio/internal/notifications"
	"folio/internal/preflight"
	"folio/internal/queue"
	"folio/internal/store"
	"folio/internal/task"
	"folio/internal/watch"
	"folio/internal/worker"
	"folio/internal/workflow"
)

const stopTimeout = 30 * time.Second

// Daemon owns the pipeline lifecycle and enforces single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	baseLogger *slog.Logger
	db         *store.DB

	queue      *queue.Store
	catalog    *catalog.Store
	registry   *task.Registry
	runtime    *worker.Runtime
	dispatcher *workflow.Dispatcher
	heartbeat  *worker.HeartbeatMonitor
	api        *apiServer

	lockPath string
	lock     *flock.Flock

	running       atomic.Bool
	stopped       atomic.Bool
	cancel        context.CancelFunc
	stopHeartbeat context.CancelFunc
	wg            sync.WaitGroup
	heartbeatWG   sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool                   `json:"running"`
	PID          int                    `json:"pid"`
	APIAddress   string                 `json:"api_address,omitempty"`
	DatabasePath string                 `json:"database_path"`
	LockFilePath string                 `json:"lock_file_path"`
	Workflow     workflow.StatusSummary `json:"workflow"`
}

// New wires the queue, catalog, job registry, worker runtime, dispatcher and
// API server over db.
func New(cfg *config.Config, db *store.DB, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || db == nil {
		return nil, errors.New("daemon requires config and database")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	hasher, err := hashing.New(cfg.Hashing.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("hashing: %w", err)
	}

	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		baseLogger: logger,
		db:         db,
		queue:      queue.New(db),
		catalog:    catalog.New(db),
		lockPath:   cfg.LockPath(),
		lock:       flock.New(cfg.LockPath()),
	}
	d.registry = task.NewRegistry(d.catalog)
	jobs.Register(d.registry)

	deps := task.Deps{
		Config:   cfg,
		Catalog:  d.catalog,
		Archives: archive.NewRegistry(),
		Hasher:   hasher,
		Registry: d.registry,
		Logger:   logger,
	}
	d.runtime = worker.New(db, d.queue, deps, worker.Options{
		Notifier:   notifications.NewService(cfg),
		Workers:    cfg.Workflow.WorkerCount,
		MaxBacklog: cfg.Workflow.MaxBacklog,
		OnIdle:     func() { d.dispatcher.Wake() },
	})
	d.dispatcher = workflow.NewDispatcher(cfg, d.queue, d.registry, d.runtime, logger)
	d.heartbeat = worker.NewHeartbeatMonitor(d.queue, d.runtime, logger,
		cfg.Workflow.HeartbeatDuration(), cfg.Workflow.LeaseDurationValue())

	srv, err := api.NewServer(api.Options{
		Config:     cfg,
		Dispatcher: d.dispatcher,
		Queue:      d.queue,
		Catalog:    d.catalog,
		Signal:     d.runtime.Signal(),
		Preflight:  func() []preflight.Result { return preflight.RunAll(cfg) },
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	d.api = newAPIServer(cfg.Paths.APIBind, srv.Handler(), logger)
	return d, nil
}

// Start acquires the daemon lock, returns orphaned claims to the queue and
// launches the runtime, dispatcher, heartbeat, import watcher and API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if d.stopped.Load() {
		return errors.New("daemon cannot be restarted")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another folio daemon instance is already running")
	}

	// Holding the lock means no other dispatcher owns live claims.
	released, err := d.queue.ReleaseAllClaims(ctx)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("release stale claims: %w", err)
	}
	if released > 0 {
		d.logger.Info("released claims left by a previous run", logging.Int64("count", released))
	}
	d.reportPreflight()

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.runtime.Start(runCtx)
	if err := d.dispatcher.Start(runCtx); err != nil {
		d.abort(err)
		return fmt.Errorf("start dispatcher: %w", err)
	}
	// Leases are renewed until the last running job has finished.
	hbCtx, stopHeartbeat := context.WithCancel(context.WithoutCancel(ctx))
	d.stopHeartbeat = stopHeartbeat
	d.heartbeatWG.Add(1)
	go func() {
		defer d.heartbeatWG.Done()
		d.heartbeat.Run(hbCtx)
	}()
	if d.cfg.Import.Watch {
		if err := d.startWatcher(runCtx); err != nil {
			d.abort(err)
			return fmt.Errorf("start import watcher: %w", err)
		}
	}
	if err := d.api.start(runCtx); err != nil {
		d.abort(err)
		return err
	}

	d.running.Store(true)
	d.logger.Info("folio daemon started",
		logging.String("lock", d.lockPath),
		logging.String("database", d.db.Path()),
		logging.Int("workers", d.cfg.Workflow.WorkerCount),
	)
	return nil
}

func (d *Daemon) startWatcher(ctx context.Context) error {
	w, err := watch.New(d.cfg, d.dispatcher, d.baseLogger)
	if err != nil {
		return err
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := w.Run(ctx); err != nil {
			d.logger.Warn("import watcher stopped", logging.Error(err))
		}
	}()
	return nil
}

func (d *Daemon) reportPreflight() {
	for _, result := range preflight.Failed(preflight.RunAll(d.cfg)) {
		d.logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldEventType, "preflight_failed"),
		)
	}
}

// abort tears down a partially started daemon.
func (d *Daemon) abort(cause error) {
	d.logger.Error("daemon start failed", logging.Error(cause))
	d.shutdown()
}

// Stop stops background processing and releases the daemon lock. Running
// jobs finish; claims that never started are released.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.shutdown()
	d.running.Store(false)
	d.logger.Info("folio daemon stopped")
}

func (d *Daemon) shutdown() {
	d.stopped.Store(true)
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.dispatcher.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	d.runtime.Stop(ctx)
	d.wg.Wait()
	if d.stopHeartbeat != nil {
		d.stopHeartbeat()
		d.stopHeartbeat = nil
	}
	d.heartbeatWG.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}

// Close stops the daemon and closes the database.
func (d *Daemon) Close() error {
	d.Stop()
	return d.db.Close()
}

// Dispatcher exposes the pipeline entry point for enqueueing jobs.
func (d *Daemon) Dispatcher() *workflow.Dispatcher {
	return d.dispatcher
}

// APIAddress returns the address the API listens on once started.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		APIAddress:   d.api.address(),
		DatabasePath: d.db.Path(),
		LockFilePath: d.lockPath,
		Workflow:     d.dispatcher.Status(ctx),
	}
}
