package api

import (
	"time"

	"folio/internal/catalog"
	"folio/internal/preflight"
	"folio/internal/workflow"
)

// TaskRecord describes a queued task in a transport-friendly format.
type TaskRecord struct {
	ID           int64             `json:"id"`
	Type         string            `json:"type"`
	State        string            `json:"state"`
	Properties   map[string]string `json:"properties"`
	CreatedAt    time.Time         `json:"created_at"`
	ClaimedBy    string            `json:"claimed_by,omitempty"`
	ClaimedUntil time.Time         `json:"claimed_until,omitzero"`
	Attempts     int               `json:"attempts"`
	LastError    string            `json:"last_error,omitempty"`
	FailedAt     time.Time         `json:"failed_at,omitzero"`
}

// QueueListResponse wraps a collection of task records.
type QueueListResponse struct {
	Items []TaskRecord `json:"items"`
}

// EnqueueResponse lists the records created by a mutating request.
type EnqueueResponse struct {
	Tasks []TaskRecord `json:"tasks"`
}

// QueueHealth summarizes queue state for diagnostics.
type QueueHealth struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Claimed int `json:"claimed"`
	Failed  int `json:"failed"`
	Expired int `json:"expired"`
}

// CountResponse reports how many records an action touched.
type CountResponse struct {
	Count int64 `json:"count"`
}

// StatusResponse is the long-poll status payload.
type StatusResponse struct {
	Comics    []catalog.Comic        `json:"comics"`
	Cursor    time.Time              `json:"cursor"`
	TimedOut  bool                   `json:"timed_out"`
	Workflow  workflow.StatusSummary `json:"workflow"`
	Preflight []preflight.Result     `json:"preflight,omitempty"`
}

// ComicResponse is a comic with its pages and list memberships.
type ComicResponse struct {
	Comic        catalog.Comic         `json:"comic"`
	Pages        []catalog.Page        `json:"pages"`
	ReadingLists []catalog.ReadingList `json:"reading_lists"`
	Pending      []string              `json:"pending_stages"`
}

// CollectionResponse lists the comics of one collection.
type CollectionResponse struct {
	Kind   catalog.CollectionKind `json:"kind"`
	Name   string                 `json:"name"`
	Comics []catalog.Comic        `json:"comics"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
