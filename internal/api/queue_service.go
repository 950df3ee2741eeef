package api

import (
	"context"
	"time"

	"folio/internal/queue"
)

// QueueQuery filters queue listings.
type QueueQuery struct {
	Types      []string
	FailedOnly bool
	Limit      int
}

// QueueService exposes queue listing and maintenance returning API DTOs.
type QueueService struct {
	store *queue.Store
	now   func() time.Time
}

// NewQueueService constructs a QueueService around store.
func NewQueueService(store *queue.Store) *QueueService {
	if store == nil {
		return nil
	}
	return &QueueService{store: store, now: time.Now}
}

// List returns records in queue order.
func (s *QueueService) List(ctx context.Context, q QueueQuery) ([]TaskRecord, error) {
	records, err := s.store.List(ctx, queue.ListFilter{Types: q.Types, FailedOnly: q.FailedOnly, Limit: q.Limit})
	if err != nil {
		return nil, err
	}
	return FromRecords(records, s.now()), nil
}

// Health summarizes queue state.
func (s *QueueService) Health(ctx context.Context) (QueueHealth, error) {
	h, err := s.store.Health(ctx)
	if err != nil {
		return QueueHealth{}, err
	}
	return FromHealth(h), nil
}

// Retry clears the failure of ids, or of every failed record when ids is empty.
func (s *QueueService) Retry(ctx context.Context, ids []int64) (int64, error) {
	return s.store.RetryFailed(ctx, ids...)
}

// ClearFailed deletes failed records.
func (s *QueueService) ClearFailed(ctx context.Context) (int64, error) {
	return s.store.ClearFailed(ctx)
}

// ReleaseAll drops every claim. Only safe while no dispatcher is running.
func (s *QueueService) ReleaseAll(ctx context.Context) (int64, error) {
	return s.store.ReleaseAllClaims(ctx)
}
