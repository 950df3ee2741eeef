package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Claim atomically reserves up to n of the oldest pending records for owner
// until now+lease and returns them in queue order with their properties.
// Records whose previous lease expired are eligible again.
func (s *Store) Claim(ctx context.Context, owner string, n int, lease time.Duration) ([]Record, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, errors.New("claim owner is required")
	}
	if n <= 0 {
		return nil, nil
	}
	now := s.now().UTC()
	until := now.Add(lease)

	var records []Record
	err := s.atomically(ctx, func(tx *Store) error {
		claimed, err := tx.queryRecords(ctx, `
			UPDATE tasks
			SET claimed_by = ?, claimed_until = ?, attempts = attempts + 1
			WHERE id IN (
				SELECT id FROM tasks
				WHERE failed_at IS NULL AND (claimed_by IS NULL OR claimed_until < ?)
				ORDER BY created_at, id
				LIMIT ?
			)
			RETURNING `+recordColumns,
			owner, until.UnixNano(), now.UnixNano(), n)
		if err != nil {
			return fmt.Errorf("claim tasks: %w", err)
		}
		sortRecords(claimed)
		if err := tx.attachProperties(ctx, claimed); err != nil {
			return err
		}
		records = claimed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// RenewLeases extends the leases of ids still claimed by owner and returns
// how many were renewed.
func (s *Store) RenewLeases(ctx context.Context, owner string, ids []int64, until time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := append([]any{until.UTC().UnixNano(), owner}, idArgs(ids)...)
	res, err := s.exec(ctx,
		"UPDATE tasks SET claimed_until = ? WHERE claimed_by = ? AND failed_at IS NULL AND id IN ("+placeholders(len(ids))+")",
		args...)
	if err != nil {
		return 0, fmt.Errorf("renew leases: %w", err)
	}
	return res.RowsAffected()
}

// Complete removes a finished record. It fails with ErrLeaseLost when owner no
// longer holds the claim, so a job that lost its lease cannot commit.
func (s *Store) Complete(ctx context.Context, id int64, owner string) error {
	res, err := s.exec(ctx, "DELETE FROM tasks WHERE id = ? AND claimed_by = ?", id, owner)
	if err != nil {
		return fmt.Errorf("complete task %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete task %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("complete task %d: %w", id, ErrLeaseLost)
	}
	return nil
}

// MarkFailed keeps the record for operator visibility, records message and
// releases its claim so it is not redelivered until retried.
func (s *Store) MarkFailed(ctx context.Context, id int64, owner, message string) error {
	query := "UPDATE tasks SET failed_at = ?, last_error = ?, claimed_by = NULL, claimed_until = NULL WHERE id = ?"
	args := []any{s.now().UTC().UnixNano(), message, id}
	if owner != "" {
		query += " AND claimed_by = ?"
		args = append(args, owner)
	}
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mark task %d failed: %w", id, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("mark task %d failed: %w", id, ErrLeaseLost)
	}
	return nil
}

// Release drops owner's claim on ids so they become pending immediately.
func (s *Store) Release(ctx context.Context, owner string, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := append([]any{owner}, idArgs(ids)...)
	res, err := s.exec(ctx,
		"UPDATE tasks SET claimed_by = NULL, claimed_until = NULL WHERE claimed_by = ? AND id IN ("+placeholders(len(ids))+")",
		args...)
	if err != nil {
		return 0, fmt.Errorf("release tasks: %w", err)
	}
	return res.RowsAffected()
}

// ReleaseAllClaims clears every claim. The daemon calls it on startup, when
// no other dispatcher can hold a lease.
func (s *Store) ReleaseAllClaims(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx, "UPDATE tasks SET claimed_by = NULL, claimed_until = NULL WHERE claimed_by IS NOT NULL")
	if err != nil {
		return 0, fmt.Errorf("release claims: %w", err)
	}
	return res.RowsAffected()
}
