package api

import (
	"time"

	"folio/internal/queue"
)

// FromRecord converts a queue record into its DTO, deriving the state at now.
func FromRecord(rec queue.Record, now time.Time) TaskRecord {
	props := rec.Properties.Map()
	if props == nil {
		props = map[string]string{}
	}
	return TaskRecord{
		ID:           rec.ID,
		Type:         rec.Type,
		State:        rec.State(now),
		Properties:   props,
		CreatedAt:    rec.CreatedAt,
		ClaimedBy:    rec.ClaimedBy,
		ClaimedUntil: rec.ClaimedUntil,
		Attempts:     rec.Attempts,
		LastError:    rec.LastError,
		FailedAt:     rec.FailedAt,
	}
}

// FromRecords converts a slice of records.
func FromRecords(records []queue.Record, now time.Time) []TaskRecord {
	out := make([]TaskRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, FromRecord(rec, now))
	}
	return out
}

// FromHealth converts the queue health summary.
func FromHealth(h queue.HealthSummary) QueueHealth {
	return QueueHealth{
		Total:   h.Total,
		Pending: h.Pending,
		Claimed: h.Claimed,
		Failed:  h.Failed,
		Expired: h.Expired,
	}
}
