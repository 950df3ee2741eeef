package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Enqueue durably inserts rec and returns it with its assigned ID and
// creation time. The record is visible to subsequent reads once the
// surrounding transaction (if any) commits.
func (s *Store) Enqueue(ctx context.Context, rec Record) (Record, error) {
	rec.Type = normalizeType(rec.Type)
	if rec.Type == "" {
		return Record{}, ErrEmptyType
	}
	if err := rec.Properties.validate(); err != nil {
		return Record{}, err
	}

	created := s.now().UTC()
	out := Record{Type: rec.Type, CreatedAt: created, Properties: append(Properties(nil), rec.Properties...)}
	err := s.atomically(ctx, func(tx *Store) error {
		res, err := tx.db.ExecContext(ctx, "INSERT INTO tasks (task_type, created_at) VALUES (?, ?)", rec.Type, created.UnixNano())
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("task id: %w", err)
		}
		out.ID = id
		for pos, prop := range rec.Properties {
			if _, err := tx.db.ExecContext(ctx,
				"INSERT INTO task_properties (task_id, position, prop_key, prop_value) VALUES (?, ?, ?, ?)",
				id, pos, prop.Key, prop.Value); err != nil {
				return fmt.Errorf("insert task property %q: %w", prop.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	return out, nil
}

// Get returns the record with id, or nil when it does not exist.
func (s *Store) Get(ctx context.Context, id int64) (*Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM tasks WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task %d: %w", id, err)
	}
	records := []Record{rec}
	if err := s.attachProperties(ctx, records); err != nil {
		return nil, err
	}
	return &records[0], nil
}

// DequeueBatch returns up to n of the oldest pending records without claiming
// them. Pending means not failed and not holding a live lease.
func (s *Store) DequeueBatch(ctx context.Context, n int) ([]Record, error) {
	if n <= 0 {
		return nil, nil
	}
	records, err := s.queryRecords(ctx,
		"SELECT "+recordColumns+" FROM tasks WHERE failed_at IS NULL AND (claimed_by IS NULL OR claimed_until < ?) ORDER BY created_at, id LIMIT ?",
		s.now().UTC().UnixNano(), n)
	if err != nil {
		return nil, fmt.Errorf("dequeue batch: %w", err)
	}
	if err := s.attachProperties(ctx, records); err != nil {
		return nil, err
	}
	return records, nil
}

// List returns records in queue order.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Record, error) {
	var (
		clauses []string
		args    []any
	)
	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			placeholders[i] = "?"
			args = append(args, normalizeType(t))
		}
		clauses = append(clauses, "task_type IN ("+strings.Join(placeholders, ",")+")")
	}
	if filter.FailedOnly {
		clauses = append(clauses, "failed_at IS NOT NULL")
	}
	query := "SELECT " + recordColumns + " FROM tasks"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	records, err := s.queryRecords(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	if err := s.attachProperties(ctx, records); err != nil {
		return nil, err
	}
	return records, nil
}
