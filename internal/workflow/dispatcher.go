package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"folio/internal/config"
	"folio/internal/logging"
	"folio/internal/queue"
	"folio/internal/task"
	"folio/internal/worker"
)

// Dispatcher claims, decodes and submits queued records.
type Dispatcher struct {
	store    *queue.Store
	registry *task.Registry
	runtime  *worker.Runtime
	logger   *slog.Logger

	owner        string
	batchSize    int
	lease        time.Duration
	pollInterval time.Duration
	errorRetry   time.Duration

	wake chan struct{}

	mu        sync.RWMutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	lastErr   error
	lastCycle time.Time
	stats     CycleStats
}

// CycleResult summarizes one dispatcher cycle.
type CycleResult struct {
	Claimed      int
	Submitted    int
	DecodeFailed int
	// Deferred counts records returned to the queue because a reference
	// could not be checked.
	Deferred int
	// Full reports that the cycle claimed as many records as it asked for.
	Full bool
}

// CycleStats accumulates results since the dispatcher was created.
type CycleStats struct {
	Cycles       int64 `json:"cycles"`
	Claimed      int64 `json:"claimed"`
	Submitted    int64 `json:"submitted"`
	DecodeFailed int64 `json:"decode_failed"`
	Deferred     int64 `json:"deferred"`
}

// NewDispatcher wires a dispatcher from the workflow config section. The
// lease owner is a fresh UUID per dispatcher.
func NewDispatcher(cfg *config.Config, store *queue.Store, registry *task.Registry, runtime *worker.Runtime, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{
		store:        store,
		registry:     registry,
		runtime:      runtime,
		logger:       logging.NewComponentLogger(logger, "dispatcher"),
		owner:        "dispatcher-" + uuid.NewString(),
		batchSize:    cfg.Workflow.BatchSize,
		lease:        cfg.Workflow.LeaseDurationValue(),
		pollInterval: cfg.Workflow.PollIntervalDuration(),
		errorRetry:   cfg.Workflow.ErrorRetryDuration(),
		wake:         make(chan struct{}, 1),
	}
}

// Owner is the lease owner id used for claims.
func (d *Dispatcher) Owner() string {
	return d.owner
}

// Wake cuts the current idle wait short.
func (d *Dispatcher) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// RunOnce performs one claim/decode/submit cycle.
func (d *Dispatcher) RunOnce(ctx context.Context) (CycleResult, error) {
	var result CycleResult
	want := min(d.batchSize, d.runtime.Capacity())
	if want <= 0 {
		return result, nil
	}
	records, err := d.store.Claim(ctx, d.owner, want, d.lease)
	if err != nil {
		return result, err
	}
	result.Claimed = len(records)
	result.Full = len(records) == want

	for i, rec := range records {
		job, err := d.registry.Decode(ctx, rec)
		if errors.Is(err, task.ErrResolve) {
			result.Deferred++
			d.deferRecord(ctx, rec, err)
			continue
		}
		if err != nil {
			result.DecodeFailed++
			d.rejectRecord(ctx, rec, err)
			continue
		}
		err = d.runtime.Submit(worker.Item{Owner: d.owner, Record: rec, Job: job})
		if errors.Is(err, worker.ErrStopped) {
			d.releaseRemaining(ctx, records[i:])
			result.Full = false
			break
		}
		if err != nil {
			result.DecodeFailed++
			d.rejectRecord(ctx, rec, err)
			continue
		}
		result.Submitted++
	}
	if result.Deferred > 0 {
		result.Full = false
	}
	d.record(result)
	return result, nil
}

func (d *Dispatcher) rejectRecord(ctx context.Context, rec queue.Record, cause error) {
	d.logger.Warn("task record rejected",
		logging.Int64(logging.FieldTaskID, rec.ID),
		logging.String(logging.FieldJobKind, rec.Type),
		logging.Error(cause),
		logging.String(logging.FieldEventType, "decode_failed"),
		logging.String(logging.FieldErrorHint, "inspect with 'folio queue list --failed' and clear or retry"),
	)
	if err := d.store.MarkFailed(ctx, rec.ID, d.owner, cause.Error()); err != nil {
		d.logger.Error("failed to mark rejected record", logging.Int64(logging.FieldTaskID, rec.ID), logging.Error(err))
	}
}

func (d *Dispatcher) deferRecord(ctx context.Context, rec queue.Record, cause error) {
	d.logger.Warn("task record deferred",
		logging.Int64(logging.FieldTaskID, rec.ID),
		logging.String(logging.FieldJobKind, rec.Type),
		logging.Error(cause),
		logging.String(logging.FieldEventType, "decode_deferred"),
	)
	if _, err := d.store.Release(ctx, d.owner, rec.ID); err != nil {
		d.logger.Warn("release deferred record failed", logging.Int64(logging.FieldTaskID, rec.ID), logging.Error(err))
	}
}

func (d *Dispatcher) releaseRemaining(ctx context.Context, records []queue.Record) {
	ids := make([]int64, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	if _, err := d.store.Release(ctx, d.owner, ids...); err != nil {
		d.logger.Warn("release unsubmitted records failed", logging.Error(err))
	}
}

func (d *Dispatcher) record(result CycleResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastCycle = time.Now()
	d.stats.Cycles++
	d.stats.Claimed += int64(result.Claimed)
	d.stats.Submitted += int64(result.Submitted)
	d.stats.DecodeFailed += int64(result.DecodeFailed)
	d.stats.Deferred += int64(result.Deferred)
}

// Start begins the background loop.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return errors.New("dispatcher already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true
	d.wg.Add(1)
	d.mu.Unlock()

	go d.loop(runCtx)
	return nil
}

// Stop terminates the loop and waits for the current cycle to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	cancel := d.cancel
	d.running = false
	d.cancel = nil
	d.mu.Unlock()

	cancel()
	d.wg.Wait()
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result, err := d.RunOnce(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			d.handleCycleError(ctx, err)
			continue
		}
		d.setLastError(nil)
		if result.Full {
			continue
		}
		d.waitForWork(ctx)
	}
}

func (d *Dispatcher) handleCycleError(ctx context.Context, err error) {
	d.setLastError(err)
	d.logger.Error("failed to claim task records",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_claim_failed"),
		logging.String(logging.FieldErrorHint, "check queue database access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(d.errorRetry):
	}
}

func (d *Dispatcher) waitForWork(ctx context.Context) {
	timer := time.NewTimer(d.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-d.wake:
	case <-timer.C:
	}
}

func (d *Dispatcher) setLastError(err error) {
	d.mu.Lock()
	d.lastErr = err
	d.mu.Unlock()
}
