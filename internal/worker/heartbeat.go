package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"folio/internal/logging"
	"folio/internal/queue"
)

// HeartbeatMonitor renews the leases of a runtime's outstanding records so a
// long job is not redelivered while it still runs.
type HeartbeatMonitor struct {
	store    *queue.Store
	runtime  *Runtime
	logger   *slog.Logger
	interval time.Duration
	lease    time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *queue.Store, runtime *Runtime, logger *slog.Logger, interval, lease time.Duration) *HeartbeatMonitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &HeartbeatMonitor{
		store:    store,
		runtime:  runtime,
		logger:   logging.NewComponentLogger(logger, "heartbeat"),
		interval: interval,
		lease:    lease,
	}
}

// Run renews leases every interval until ctx ends.
func (h *HeartbeatMonitor) Run(ctx context.Context) {
	if h.interval <= 0 {
		return
	}
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.Renew(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					h.logger.Info("daemon shutting down, lease renewal cancelled")
					return
				}
				h.logger.Warn("lease renewal failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "lease_renew_failed"),
					logging.String(logging.FieldErrorHint, "check queue database access"),
				)
			}
		}
	}
}

// Renew extends every outstanding lease once.
func (h *HeartbeatMonitor) Renew(ctx context.Context) error {
	until := time.Now().Add(h.lease)
	var errs []error
	for owner, ids := range h.runtime.OutstandingByOwner() {
		renewed, err := h.store.RenewLeases(ctx, owner, ids, until)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if renewed < int64(len(ids)) {
			h.logger.Warn("some leases were lost",
				logging.String("owner", owner),
				logging.Int("outstanding", len(ids)),
				logging.Int64("renewed", renewed),
			)
		}
	}
	return errors.Join(errs...)
}
