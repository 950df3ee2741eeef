package queue

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"folio/internal/store"
)

// Store manages task records backed by SQLite.
type Store struct {
	db   store.DBTX
	root *sql.DB // nil when bound to a transaction
	path string
	now  func() time.Time
}

// New returns a Store operating directly on db.
func New(db *store.DB) *Store {
	return &Store{db: db.SQL(), root: db.SQL(), path: db.Path(), now: time.Now}
}

// WithTx returns a Store whose operations run inside tx.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{db: tx, path: s.path, now: s.now}
}

// WithClock returns a Store that reads the current time from now.
func (s *Store) WithClock(now func() time.Time) *Store {
	clone := *s
	clone.now = now
	return &clone
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// atomically runs fn in a transaction unless the store is already bound to one.
func (s *Store) atomically(ctx context.Context, fn func(*Store) error) error {
	if s.root == nil {
		return fn(s)
	}
	return store.RunInTransaction(ctx, s.root, func(ctx context.Context, tx *sql.Tx) error {
		return fn(s.WithTx(tx))
	})
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if s.root == nil {
		return s.db.ExecContext(ctx, query, args...)
	}
	var res sql.Result
	err := store.RetryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return res, err
}

const recordColumns = "id, task_type, created_at, claimed_by, claimed_until, attempts, last_error, failed_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (Record, error) {
	var (
		rec          Record
		createdAt    int64
		claimedBy    sql.NullString
		claimedUntil sql.NullInt64
		lastError    sql.NullString
		failedAt     sql.NullInt64
	)
	if err := scanner.Scan(&rec.ID, &rec.Type, &createdAt, &claimedBy, &claimedUntil, &rec.Attempts, &lastError, &failedAt); err != nil {
		return Record{}, err
	}
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	rec.ClaimedBy = claimedBy.String
	if claimedUntil.Valid {
		rec.ClaimedUntil = time.Unix(0, claimedUntil.Int64).UTC()
	}
	rec.LastError = lastError.String
	if failedAt.Valid {
		rec.FailedAt = time.Unix(0, failedAt.Int64).UTC()
	}
	return rec, nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// attachProperties loads the property bags for records in one query.
func (s *Store) attachProperties(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	index := make(map[int64]int, len(records))
	args := make([]any, len(records))
	for i, rec := range records {
		index[rec.ID] = i
		args[i] = rec.ID
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT task_id, prop_key, prop_value FROM task_properties WHERE task_id IN ("+store.Placeholders(len(args))+") ORDER BY task_id, position",
		args...)
	if err != nil {
		return fmt.Errorf("load task properties: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id    int64
			key   string
			value string
		)
		if err := rows.Scan(&id, &key, &value); err != nil {
			return fmt.Errorf("scan task property: %w", err)
		}
		i := index[id]
		records[i].Properties = append(records[i].Properties, Property{Key: key, Value: value})
	}
	return rows.Err()
}

func sortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
}

func idArgs(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func normalizeType(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func placeholders(n int) string {
	return store.Placeholders(n)
}
