package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"folio/internal/logging"
	"folio/internal/notifications"
	"folio/internal/queue"
	"folio/internal/services"
	"folio/internal/store"
	"folio/internal/task"
)

// ErrStopped rejects submissions after Stop.
var ErrStopped = errors.New("worker runtime stopped")

// Item is a claimed record together with its decoded job.
type Item struct {
	Owner  string
	Record queue.Record
	Job    task.Job
}

// KindCounts reports queued and running jobs of one kind.
type KindCounts struct {
	Queued  int `json:"queued"`
	Running int `json:"running"`
}

// Options configures a Runtime.
type Options struct {
	Workers    int
	MaxBacklog int
	// OnIdle is called after each job outcome, typically to wake the
	// dispatcher so follow-on records are claimed promptly.
	OnIdle func()
	// Notifier receives job failures and drained-queue summaries.
	Notifier notifications.Service
}

type batch struct {
	started   time.Time
	succeeded int
	failed    int
}

// Runtime is the bounded job executor.
type Runtime struct {
	db     *store.DB
	queue  *queue.Store
	deps   task.Deps
	logger *slog.Logger
	signal *Signal
	opts   Options

	mu      sync.Mutex
	cond    *sync.Cond
	ready   []*Item
	waiting map[string][]*Item
	busy    map[string]bool
	queued  map[string]int
	running map[string]int
	owners  map[int64]string
	batch   batch
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// New builds a Runtime. deps.Catalog and deps.Registry must be set; the queue
// and catalog are rebound to each job's transaction.
func New(db *store.DB, q *queue.Store, deps task.Deps, opts Options) *Runtime {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxBacklog < opts.Workers {
		opts.MaxBacklog = opts.Workers
	}
	if opts.Notifier == nil {
		opts.Notifier = notifications.NewService(nil)
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Runtime{
		db:      db,
		queue:   q,
		deps:    deps,
		logger:  logging.NewComponentLogger(logger, "worker"),
		signal:  NewSignal(),
		opts:    opts,
		waiting: make(map[string][]*Item),
		busy:    make(map[string]bool),
		queued:  make(map[string]int),
		running: make(map[string]int),
		owners:  make(map[int64]string),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Signal returns the broadcast signal raised after job outcomes and enqueues.
func (r *Runtime) Signal() *Signal {
	return r.signal
}

// Start launches the worker goroutines. Jobs run under a context detached
// from ctx so shutdown never interrupts a job midway.
func (r *Runtime) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	jobCtx := context.WithoutCancel(ctx)
	r.wg.Add(r.opts.Workers)
	for i := 0; i < r.opts.Workers; i++ {
		go r.work(jobCtx)
	}
}

// Stop refuses new work, waits for running jobs and releases the claims of
// jobs that never started.
func (r *Runtime) Stop(ctx context.Context) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	pending := append([]*Item(nil), r.ready...)
	for _, items := range r.waiting {
		pending = append(pending, items...)
	}
	r.ready = nil
	r.waiting = make(map[string][]*Item)
	for _, it := range pending {
		r.queued[it.Job.Kind()]--
		delete(r.owners, it.Record.ID)
	}
	r.mu.Unlock()
	r.cond.Broadcast()
	r.wg.Wait()

	byOwner := make(map[string][]int64)
	for _, it := range pending {
		byOwner[it.Owner] = append(byOwner[it.Owner], it.Record.ID)
	}
	for owner, ids := range byOwner {
		if _, err := r.queue.Release(ctx, owner, ids...); err != nil {
			r.logger.Warn("release unstarted jobs failed", logging.Error(err), logging.Int("count", len(ids)))
		}
	}
	r.signal.Broadcast()
}

// Submit hands a job to the pool without blocking.
func (r *Runtime) Submit(it Item) error {
	if it.Job == nil {
		return errors.New("submit: nil job")
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrStopped
	}
	key := it.Job.SerialKey()
	item := it
	if r.busy[key] {
		r.waiting[key] = append(r.waiting[key], &item)
	} else {
		r.busy[key] = true
		r.ready = append(r.ready, &item)
	}
	if len(r.owners) == 0 {
		r.batch = batch{started: time.Now()}
	}
	r.queued[it.Job.Kind()]++
	r.owners[it.Record.ID] = it.Owner
	r.mu.Unlock()
	r.cond.Signal()
	return nil
}

// Capacity is how many more records the dispatcher may hand over.
func (r *Runtime) Capacity() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0
	}
	return max(r.opts.MaxBacklog-len(r.owners), 0)
}

// Outstanding is the number of accepted jobs not yet finished.
func (r *Runtime) Outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.owners)
}

// OutstandingByOwner groups the record ids of accepted jobs by lease owner.
func (r *Runtime) OutstandingByOwner() map[string][]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]int64)
	for id, owner := range r.owners {
		out[owner] = append(out[owner], id)
	}
	return out
}

// Counts reports queued and running jobs per kind.
func (r *Runtime) Counts() map[string]KindCounts {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]KindCounts)
	for kind, n := range r.queued {
		c := out[kind]
		c.Queued = n
		out[kind] = c
	}
	for kind, n := range r.running {
		c := out[kind]
		c.Running = n
		out[kind] = c
	}
	for kind, c := range out {
		if c.Queued == 0 && c.Running == 0 {
			delete(out, kind)
		}
	}
	return out
}

// Busy reports whether any job is queued or running.
func (r *Runtime) Busy() bool {
	return r.Outstanding() > 0
}

func (r *Runtime) work(ctx context.Context) {
	defer r.wg.Done()
	for {
		it := r.next()
		if it == nil {
			return
		}
		ok := r.execute(ctx, it)
		r.finish(ctx, it, ok)
	}
}

func (r *Runtime) next() *Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.ready) == 0 && !r.closed {
		r.cond.Wait()
	}
	if r.closed {
		return nil
	}
	it := r.ready[0]
	r.ready[0] = nil
	r.ready = r.ready[1:]
	kind := it.Job.Kind()
	r.queued[kind]--
	r.running[kind]++
	return it
}

// finish releases the serialization key, promoting the next waiter for it.
// The job that empties the runtime reports the batch summary.
func (r *Runtime) finish(ctx context.Context, it *Item, ok bool) {
	r.mu.Lock()
	r.running[it.Job.Kind()]--
	delete(r.owners, it.Record.ID)
	if ok {
		r.batch.succeeded++
	} else {
		r.batch.failed++
	}
	var drained *batch
	if len(r.owners) == 0 && !r.closed {
		b := r.batch
		drained = &b
		r.batch = batch{}
	}
	key := it.Job.SerialKey()
	if waiters := r.waiting[key]; len(waiters) > 0 {
		r.ready = append(r.ready, waiters[0])
		if len(waiters) == 1 {
			delete(r.waiting, key)
		} else {
			r.waiting[key] = waiters[1:]
		}
		r.cond.Signal()
	} else {
		delete(r.busy, key)
	}
	r.mu.Unlock()

	r.signal.Broadcast()
	if r.opts.OnIdle != nil {
		r.opts.OnIdle()
	}
	if drained != nil {
		if err := r.opts.Notifier.NotifyQueueCompleted(ctx, drained.succeeded, drained.failed, time.Since(drained.started)); err != nil {
			r.logger.Warn("queue completion notification failed", logging.Error(err))
		}
	}
}

func (r *Runtime) execute(ctx context.Context, it *Item) bool {
	rec := it.Record
	ctx = services.WithTaskID(ctx, rec.ID)
	ctx = services.WithJobKind(ctx, rec.Type)
	logger := logging.WithContext(ctx, r.logger)

	start := time.Now()
	logger.Debug("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.String("description", it.Job.Description()),
		logging.Int("attempt", rec.Attempts),
	)

	err := r.run(ctx, it, logger)
	if err == nil {
		logger.Info("job completed",
			logging.String(logging.FieldEventType, "job_complete"),
			logging.String("description", it.Job.Description()),
			logging.Duration("duration", time.Since(start)),
		)
		return true
	}

	err = task.AsJobError(it.Job, err)
	logger.Error("job failed",
		logging.Error(err),
		logging.String(logging.FieldEventType, "job_failed"),
		logging.String("error_kind", services.FailureKind(err)),
		logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
		logging.Duration("duration", time.Since(start)),
	)
	if markErr := r.queue.MarkFailed(ctx, rec.ID, it.Owner, err.Error()); markErr != nil {
		if errors.Is(markErr, queue.ErrLeaseLost) {
			logger.Warn("lease lost before failure could be recorded", logging.Error(markErr))
			return false
		}
		logger.Error("failed to persist job failure",
			logging.Error(markErr),
			logging.String(logging.FieldErrorHint, "check database health with 'folio queue health'"),
		)
	}
	if notifyErr := r.opts.Notifier.NotifyJobFailed(ctx, it.Job.Description(), err); notifyErr != nil {
		logger.Warn("failure notification failed", logging.Error(notifyErr))
	}
	return false
}

// run executes the job and commits it. A job that never opens its
// transaction is completed in one of its own.
func (r *Runtime) run(ctx context.Context, it *Item, logger *slog.Logger) (err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("job panicked", logging.String("stack", string(debug.Stack())))
			err = fmt.Errorf("job panicked: %v", p)
		}
	}()

	deps := r.deps
	deps.Logger = logger
	used := false
	env := task.NewEnv(deps, func(ctx context.Context, fn func(context.Context, *task.Session) error) error {
		if used {
			return task.ErrTxReused
		}
		used = true
		return r.commit(ctx, it, fn)
	})
	if err := it.Job.Run(ctx, env); err != nil {
		return err
	}
	if !used {
		return r.commit(ctx, it, nil)
	}
	return nil
}

func (r *Runtime) commit(ctx context.Context, it *Item, fn func(context.Context, *task.Session) error) error {
	var session *task.Session
	err := r.db.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		session = task.NewSession(r.deps.Catalog.WithTx(tx), r.queue.WithTx(tx), r.deps.Registry)
		if fn != nil {
			if err := fn(ctx, session); err != nil {
				return err
			}
		}
		return session.Queue.Complete(ctx, it.Record.ID, it.Owner)
	})
	if err != nil {
		return err
	}
	session.Committed()
	if len(session.Enqueued()) > 0 {
		r.signal.Broadcast()
	}
	return nil
}
