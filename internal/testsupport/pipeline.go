package testsupport

import (
	"context"
	"testing"
	"time"

	"folio/internal/archive"
	"folio/internal/catalog"
	"folio/internal/config"
	"folio/internal/hashing"
	"folio/internal/jobs"
	"folio/internal/notifications"
	"folio/internal/queue"
	"folio/internal/store"
	"folio/internal/task"
	"folio/internal/worker"
	"folio/internal/workflow"
)

// Pipeline bundles a fully wired queue, catalog, runtime and dispatcher
// backed by a temporary database.
type Pipeline struct {
	Config     *config.Config
	DB         *store.DB
	Queue      *queue.Store
	Catalog    *catalog.Store
	Registry   *task.Registry
	Deps       task.Deps
	Notifier   notifications.Service
	Runtime    *worker.Runtime
	Dispatcher *workflow.Dispatcher
}

// PipelineOption adjusts the collaborators before the runtime is built.
type PipelineOption func(*Pipeline)

// WithRegistry lets a test register extra codecs, such as failing jobs.
func WithRegistry(fn func(*task.Registry)) PipelineOption {
	return func(p *Pipeline) { fn(p.Registry) }
}

// WithDeps mutates the shared job dependencies (for example a fake FS).
func WithDeps(fn func(*task.Deps)) PipelineOption {
	return func(p *Pipeline) { fn(&p.Deps) }
}

// WithNotifier routes runtime notifications to n.
func WithNotifier(n notifications.Service) PipelineOption {
	return func(p *Pipeline) { p.Notifier = n }
}

// NewPipeline wires every pipeline component for cfg. The runtime is not
// started; call Start or drive cycles with Drain.
func NewPipeline(t testing.TB, cfg *config.Config, opts ...PipelineOption) *Pipeline {
	t.Helper()

	db := MustOpenDB(t, cfg)
	p := &Pipeline{Config: cfg, DB: db, Queue: queue.New(db), Catalog: catalog.New(db)}
	p.Registry = task.NewRegistry(p.Catalog)
	jobs.Register(p.Registry)

	hasher, err := hashing.New(cfg.Hashing.Algorithm)
	if err != nil {
		t.Fatalf("hashing.New: %v", err)
	}
	p.Deps = task.Deps{
		Config:   cfg,
		Catalog:  p.Catalog,
		Archives: archive.NewRegistry(),
		Hasher:   hasher,
		Registry: p.Registry,
	}
	for _, opt := range opts {
		opt(p)
	}

	var dispatcher *workflow.Dispatcher
	p.Runtime = worker.New(db, p.Queue, p.Deps, worker.Options{
		Workers:    cfg.Workflow.WorkerCount,
		MaxBacklog: cfg.Workflow.MaxBacklog,
		OnIdle:     func() { dispatcher.Wake() },
		Notifier:   p.Notifier,
	})
	dispatcher = workflow.NewDispatcher(cfg, p.Queue, p.Registry, p.Runtime, nil)
	p.Dispatcher = dispatcher
	return p
}

// Start launches the runtime workers and stops them on cleanup.
func (p *Pipeline) Start(t testing.TB) {
	t.Helper()
	p.Runtime.Start(context.Background())
	t.Cleanup(func() { p.Runtime.Stop(context.Background()) })
}

// Enqueue stores jobs through the dispatcher.
func (p *Pipeline) Enqueue(t testing.TB, jobs ...task.Job) []queue.Record {
	t.Helper()
	recs, err := p.Dispatcher.Enqueue(context.Background(), jobs...)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return recs
}

// Drain runs dispatcher cycles until nothing is claimable and the runtime is
// idle. The runtime must be started.
func (p *Pipeline) Drain(t testing.TB, timeout time.Duration) {
	t.Helper()
	ctx := context.Background()
	deadline := time.Now().Add(timeout)
	signal := p.Runtime.Signal()
	for time.Now().Before(deadline) {
		seen := signal.Generation()
		idle := p.Runtime.Outstanding() == 0
		res, err := p.Dispatcher.RunOnce(ctx)
		if err != nil {
			t.Fatalf("dispatcher cycle: %v", err)
		}
		if idle && res.Claimed == 0 {
			return
		}
		signal.Wait(ctx, seen, 50*time.Millisecond)
	}
	t.Fatalf("pipeline did not drain within %s", timeout)
}

// WaitIdle blocks until the runtime has no outstanding jobs.
func (p *Pipeline) WaitIdle(t testing.TB, timeout time.Duration) {
	t.Helper()
	ctx := context.Background()
	deadline := time.Now().Add(timeout)
	signal := p.Runtime.Signal()
	for time.Now().Before(deadline) {
		seen := signal.Generation()
		if p.Runtime.Outstanding() == 0 {
			return
		}
		signal.Wait(ctx, seen, 50*time.Millisecond)
	}
	t.Fatalf("runtime still busy after %s", timeout)
}
