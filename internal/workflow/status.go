package workflow

import (
	"context"
	"time"

	"folio/internal/logging"
	"folio/internal/queue"
	"folio/internal/task"
	"folio/internal/worker"
)

// StatusSummary represents lightweight pipeline diagnostics.
type StatusSummary struct {
	Running     bool                         `json:"running"`
	Owner       string                       `json:"owner"`
	LastError   string                       `json:"last_error,omitempty"`
	LastCycle   time.Time                    `json:"last_cycle,omitzero"`
	Stats       CycleStats                   `json:"stats"`
	Queue       queue.Counts                 `json:"queue"`
	Runtime     map[string]worker.KindCounts `json:"runtime"`
	Outstanding int                          `json:"outstanding"`
}

// Status returns the latest dispatcher, queue and runtime counters.
func (d *Dispatcher) Status(ctx context.Context) StatusSummary {
	d.mu.RLock()
	summary := StatusSummary{
		Running:   d.running,
		Owner:     d.owner,
		LastCycle: d.lastCycle,
		Stats:     d.stats,
	}
	if d.lastErr != nil {
		summary.LastError = d.lastErr.Error()
	}
	d.mu.RUnlock()

	counts, err := d.store.Counts(ctx)
	if err != nil {
		d.logger.Warn("failed to read queue counts", logging.Error(err))
	}
	summary.Queue = counts
	summary.Runtime = d.runtime.Counts()
	summary.Outstanding = d.runtime.Outstanding()
	return summary
}

// Enqueue stores jobs as task records, raises the runtime signal and wakes
// the loop.
func (d *Dispatcher) Enqueue(ctx context.Context, jobs ...task.Job) ([]queue.Record, error) {
	records := make([]queue.Record, 0, len(jobs))
	defer func() {
		if len(records) > 0 {
			d.runtime.Signal().Broadcast()
			d.Wake()
		}
	}()
	for _, job := range jobs {
		rec, err := d.registry.Enqueue(ctx, d.store, job)
		if err != nil {
			return records, err
		}
		d.logger.Info("task enqueued",
			logging.Int64(logging.FieldTaskID, rec.ID),
			logging.String(logging.FieldJobKind, rec.Type),
			logging.String("description", job.Description()),
		)
		records = append(records, rec)
	}
	return records, nil
}
