package task

import (
	"context"
	"log/slog"

	"folio/internal/archive"
	"folio/internal/catalog"
	"folio/internal/config"
	"folio/internal/fileutil"
	"folio/internal/hashing"
	"folio/internal/logging"
	"folio/internal/queue"
)

// Deps are the collaborators shared by every job.
type Deps struct {
	Config   *config.Config
	Catalog  *catalog.Store
	Archives *archive.Registry
	Hasher   hashing.Hasher
	FS       fileutil.FS
	Registry *Registry
	Logger   *slog.Logger
}

// TxFunc runs fn inside the job's transaction.
type TxFunc func(ctx context.Context, fn func(context.Context, *Session) error) error

// Env is what a running job sees. Catalog reads outside Tx are not isolated
// from concurrent writers.
type Env struct {
	Deps
	tx TxFunc
}

// NewEnv binds deps to the transaction runner of one job execution.
func NewEnv(deps Deps, tx TxFunc) *Env {
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if deps.FS == nil {
		deps.FS = fileutil.OS{}
	}
	return &Env{Deps: deps, tx: tx}
}

// Tx runs fn in the job's single transaction. The queue record is completed in
// the same transaction when fn succeeds.
func (e *Env) Tx(ctx context.Context, fn func(context.Context, *Session) error) error {
	return e.tx(ctx, fn)
}

// Session exposes the stores bound to the job's transaction.
type Session struct {
	Catalog     *catalog.Store
	Queue       *queue.Store
	registry    *Registry
	afterCommit []func()
	enqueued    []queue.Record
}

// NewSession binds the stores of one transaction.
func NewSession(cat *catalog.Store, q *queue.Store, reg *Registry) *Session {
	return &Session{Catalog: cat, Queue: q, registry: reg}
}

// Enqueue encodes job and stores it as a follow-on record.
func (s *Session) Enqueue(ctx context.Context, job Job) (queue.Record, error) {
	rec, err := s.registry.Encode(job)
	if err != nil {
		return queue.Record{}, err
	}
	stored, err := s.Queue.Enqueue(ctx, rec)
	if err != nil {
		return queue.Record{}, err
	}
	s.enqueued = append(s.enqueued, stored)
	return stored, nil
}

// AfterCommit schedules fn to run once the transaction commits.
func (s *Session) AfterCommit(fn func()) {
	s.afterCommit = append(s.afterCommit, fn)
}

// Enqueued returns the follow-on records written in this session.
func (s *Session) Enqueued() []queue.Record {
	return s.enqueued
}

// Committed runs the after-commit hooks in registration order.
func (s *Session) Committed() {
	for _, fn := range s.afterCommit {
		fn()
	}
}
