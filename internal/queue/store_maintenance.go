package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// CountPending returns how many records of taskType remain in the store,
// including claimed and failed ones.
func (s *Store) CountPending(ctx context.Context, taskType string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM tasks WHERE task_type = ?", normalizeType(taskType)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count pending %s: %w", taskType, err)
	}
	return count, nil
}

// Counts aggregates stored records by type and lifecycle state.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_type,
		       COUNT(1),
		       SUM(CASE WHEN failed_at IS NOT NULL THEN 1 ELSE 0 END),
		       SUM(CASE WHEN failed_at IS NULL AND claimed_by IS NOT NULL AND claimed_until >= ? THEN 1 ELSE 0 END)
		FROM tasks GROUP BY task_type`, s.now().UTC().UnixNano())
	if err != nil {
		return Counts{}, fmt.Errorf("queue counts: %w", err)
	}
	defer rows.Close()

	counts := Counts{ByType: make(map[string]int)}
	for rows.Next() {
		var (
			taskType string
			total    int
			failed   int
			claimed  int
		)
		if err := rows.Scan(&taskType, &total, &failed, &claimed); err != nil {
			return Counts{}, err
		}
		counts.ByType[taskType] = total
		counts.Total += total
		counts.Failed += failed
		counts.Claimed += claimed
		counts.Pending += total - failed - claimed
	}
	return counts, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	counts, err := s.Counts(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	var expired int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM tasks WHERE failed_at IS NULL AND claimed_by IS NOT NULL AND claimed_until < ?",
		s.now().UTC().UnixNano()).Scan(&expired); err != nil {
		return HealthSummary{}, fmt.Errorf("count expired leases: %w", err)
	}
	return HealthSummary{
		Total:   counts.Total,
		Pending: counts.Pending,
		Claimed: counts.Claimed,
		Failed:  counts.Failed,
		Expired: expired,
	}, nil
}

// RetryFailed clears the failure of ids (all failed records when none are
// given) so they are delivered again in their original queue position.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	query := "UPDATE tasks SET failed_at = NULL, last_error = NULL, claimed_by = NULL, claimed_until = NULL WHERE failed_at IS NOT NULL"
	args := idArgs(ids)
	if len(ids) > 0 {
		query += " AND id IN (" + placeholders(len(ids)) + ")"
	}
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed tasks: %w", err)
	}
	return res.RowsAffected()
}

// Remove deletes ids regardless of state.
func (s *Store) Remove(ctx context.Context, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.exec(ctx, "DELETE FROM tasks WHERE id IN ("+placeholders(len(ids))+")", idArgs(ids)...)
	if err != nil {
		return 0, fmt.Errorf("remove tasks: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed deletes every failed record.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx, "DELETE FROM tasks WHERE failed_at IS NOT NULL")
	if err != nil {
		return 0, fmt.Errorf("clear failed tasks: %w", err)
	}
	return res.RowsAffected()
}

// Clear deletes every record.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx, "DELETE FROM tasks")
	if err != nil {
		return 0, fmt.Errorf("clear tasks: %w", err)
	}
	return res.RowsAffected()
}

var expectedColumns = []string{"id", "task_type", "created_at", "claimed_by", "claimed_until", "attempts", "last_error", "failed_at"}

// CheckHealth returns diagnostic information about the queue database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}
	if s.path == "" {
		return health, errors.New("queue database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat queue database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("queue database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var tableName string
	err = s.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'tasks'").Scan(&tableName)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		health.Error = err.Error()
		return health, fmt.Errorf("query table info: %w", err)
	default:
		health.TableExists = true
	}
	health.DatabaseReadable = true

	if health.TableExists {
		columns, err := s.tableColumns(connCtx, "tasks")
		if err != nil {
			health.Error = err.Error()
			return health, err
		}
		health.ColumnsPresent = columns
		present := make(map[string]struct{}, len(columns))
		for _, col := range columns {
			present[col] = struct{}{}
		}
		for _, col := range expectedColumns {
			if _, ok := present[col]; !ok {
				health.MissingColumns = append(health.MissingColumns, col)
			}
		}
		if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(1) FROM tasks").Scan(&health.TotalRecords); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count tasks: %w", err)
		}
	}

	var integrity string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrity, "ok")
	return health, nil
}

func (s *Store) tableColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return nil, fmt.Errorf("table info: %w", err)
	}
	defer rows.Close()
	var columns []string
	for rows.Next() {
		var (
			cid     int
			name    string
			typeStr string
			notNull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typeStr, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		columns = append(columns, name)
	}
	return columns, rows.Err()
}
