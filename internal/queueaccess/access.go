// Package queueaccess gives the CLI one queue surface whether the daemon is
// running (HTTP) or not (direct store access).
package queueaccess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"

	"folio/internal/api"
	"folio/internal/config"
	"folio/internal/queue"
	"folio/internal/task"
)

// ErrDaemonRunning rejects maintenance that is unsafe while claims are live.
var ErrDaemonRunning = errors.New("stop the daemon before running this command")

// Access provides queue operations regardless of HTTP or direct store backing.
type Access interface {
	List(ctx context.Context, q api.QueueQuery) ([]api.TaskRecord, error)
	Health(ctx context.Context) (api.QueueHealth, error)
	Retry(ctx context.Context, ids []int64) (int64, error)
	ClearFailed(ctx context.Context) (int64, error)
	Remove(ctx context.Context, ids []int64) (int64, error)
	ReleaseClaims(ctx context.Context) (int64, error)
	Import(ctx context.Context, req api.ImportRequest) ([]api.TaskRecord, error)
	// Live reports whether operations go through a running daemon.
	Live() bool
}

// NewHTTPAccess returns an Access backed by the daemon API.
func NewHTTPAccess(client *api.Client) Access {
	return &httpAccess{client: client}
}

// NewStoreAccess returns an Access backed by direct database access.
func NewStoreAccess(cfg *config.Config, store *queue.Store, registry *task.Registry) Access {
	return &storeAccess{cfg: cfg, store: store, registry: registry, service: api.NewQueueService(store)}
}

type httpAccess struct {
	client *api.Client
}

func (a *httpAccess) List(ctx context.Context, q api.QueueQuery) ([]api.TaskRecord, error) {
	return a.client.Queue(ctx, q)
}

func (a *httpAccess) Health(ctx context.Context) (api.QueueHealth, error) {
	return a.client.QueueHealth(ctx)
}

func (a *httpAccess) Retry(ctx context.Context, ids []int64) (int64, error) {
	return a.client.Retry(ctx, ids)
}

func (a *httpAccess) ClearFailed(ctx context.Context) (int64, error) {
	return a.client.ClearFailed(ctx)
}

func (a *httpAccess) Remove(context.Context, []int64) (int64, error) {
	return 0, ErrDaemonRunning
}

func (a *httpAccess) ReleaseClaims(context.Context) (int64, error) {
	return 0, ErrDaemonRunning
}

func (a *httpAccess) Import(ctx context.Context, req api.ImportRequest) ([]api.TaskRecord, error) {
	resp, err := a.client.Import(ctx, req)
	return resp.Tasks, err
}

func (a *httpAccess) Live() bool { return true }

type storeAccess struct {
	cfg      *config.Config
	store    *queue.Store
	registry *task.Registry
	service  *api.QueueService
}

func (a *storeAccess) List(ctx context.Context, q api.QueueQuery) ([]api.TaskRecord, error) {
	return a.service.List(ctx, q)
}

func (a *storeAccess) Health(ctx context.Context) (api.QueueHealth, error) {
	return a.service.Health(ctx)
}

func (a *storeAccess) Retry(ctx context.Context, ids []int64) (int64, error) {
	return a.service.Retry(ctx, ids)
}

func (a *storeAccess) ClearFailed(ctx context.Context) (int64, error) {
	return a.service.ClearFailed(ctx)
}

func (a *storeAccess) Remove(ctx context.Context, ids []int64) (int64, error) {
	var n int64
	err := a.withDaemonLock(func() (err error) {
		n, err = a.store.Remove(ctx, ids...)
		return err
	})
	return n, err
}

func (a *storeAccess) ReleaseClaims(ctx context.Context) (int64, error) {
	var n int64
	err := a.withDaemonLock(func() (err error) {
		n, err = a.service.ReleaseAll(ctx)
		return err
	})
	return n, err
}

// withDaemonLock runs fn holding the daemon lock, which also catches a
// daemon running with its API disabled.
func (a *storeAccess) withDaemonLock(fn func() error) error {
	lock := flock.New(a.cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !ok {
		return ErrDaemonRunning
	}
	defer func() { _ = lock.Unlock() }()
	return fn()
}

// Import stores Add records for the next daemon run to pick up.
func (a *storeAccess) Import(ctx context.Context, req api.ImportRequest) ([]api.TaskRecord, error) {
	batch, err := req.Jobs(a.cfg)
	if err != nil {
		return nil, err
	}
	records := make([]queue.Record, 0, len(batch))
	for _, job := range batch {
		rec, err := a.registry.Enqueue(ctx, a.store, job)
		if err != nil {
			return api.FromRecords(records, time.Now()), err
		}
		records = append(records, rec)
	}
	return api.FromRecords(records, time.Now()), nil
}

func (a *storeAccess) Live() bool { return false }
