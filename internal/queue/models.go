package queue

import (
	"fmt"
	"time"
)

// Property is one key/value pair of a record's property bag.
type Property struct {
	Key   string
	Value string
}

// Properties is an ordered, string-keyed property bag.
type Properties []Property

// Get returns the value stored under key.
func (p Properties) Get(key string) (string, bool) {
	for _, prop := range p {
		if prop.Key == key {
			return prop.Value, true
		}
	}
	return "", false
}

// With returns a copy of p with key set to value, replacing any existing entry
// in place and appending otherwise.
func (p Properties) With(key, value string) Properties {
	out := make(Properties, len(p), len(p)+1)
	copy(out, p)
	for i := range out {
		if out[i].Key == key {
			out[i].Value = value
			return out
		}
	}
	return append(out, Property{Key: key, Value: value})
}

// Map flattens the bag for JSON output.
func (p Properties) Map() map[string]string {
	out := make(map[string]string, len(p))
	for _, prop := range p {
		out[prop.Key] = prop.Value
	}
	return out
}

func (p Properties) validate() error {
	seen := make(map[string]struct{}, len(p))
	for _, prop := range p {
		if _, ok := seen[prop.Key]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateProperty, prop.Key)
		}
		seen[prop.Key] = struct{}{}
	}
	return nil
}

// Record is a durable task descriptor.
type Record struct {
	ID           int64
	Type         string
	CreatedAt    time.Time
	Properties   Properties
	ClaimedBy    string
	ClaimedUntil time.Time
	Attempts     int
	LastError    string
	FailedAt     time.Time
}

// Failed reports whether the record was marked failed and awaits operator action.
func (r Record) Failed() bool {
	return !r.FailedAt.IsZero()
}

// Claimed reports whether the record holds a lease that is still valid at now.
func (r Record) Claimed(now time.Time) bool {
	return r.ClaimedBy != "" && r.ClaimedUntil.After(now)
}

// State summarizes the record lifecycle for listings.
func (r Record) State(now time.Time) string {
	switch {
	case r.Failed():
		return "failed"
	case r.Claimed(now):
		return "claimed"
	default:
		return "pending"
	}
}

// Counts aggregates stored records.
type Counts struct {
	ByType  map[string]int `json:"by_type"`
	Pending int            `json:"pending"`
	Claimed int            `json:"claimed"`
	Failed  int            `json:"failed"`
	Total   int            `json:"total"`
}

// ListFilter narrows List results. Zero values mean "no filter".
type ListFilter struct {
	Types      []string
	FailedOnly bool
	Limit      int
}

// HealthSummary describes aggregated record counts per lifecycle state.
type HealthSummary struct {
	Total   int
	Pending int
	Claimed int
	Failed  int
	Expired int
}

// DatabaseHealth describes the queue database diagnostics.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalRecords     int
	Error            string
}
