package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"folio/internal/store"
)

// Store manages catalog persistence backed by SQLite.
type Store struct {
	db   store.DBTX
	root *sql.DB
	now  func() time.Time
}

// New returns a Store operating directly on db.
func New(db *store.DB) *Store {
	return &Store{db: db.SQL(), root: db.SQL(), now: time.Now}
}

// WithTx returns a Store whose operations run inside tx.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{db: tx, now: s.now}
}

func (s *Store) atomically(ctx context.Context, fn func(*Store) error) error {
	if s.root == nil {
		return fn(s)
	}
	return store.RunInTransaction(ctx, s.root, func(ctx context.Context, tx *sql.Tx) error {
		return fn(s.WithTx(tx))
	})
}

func (s *Store) timestamp() string {
	return store.FormatTime(s.now())
}

const comicColumns = "id, filename, archive_type, series, number, volume, year, title, publisher, summary, file_hash, file_size, file_modified, page_count, processed_at, deleted_at, created_at, updated_at"

func scanComic(scanner interface{ Scan(dest ...any) error }) (*Comic, error) {
	var (
		c            Comic
		fileModified sql.NullString
		processedAt  sql.NullString
		deletedAt    sql.NullString
		createdAt    string
		updatedAt    string
	)
	if err := scanner.Scan(
		&c.ID, &c.Filename, &c.ArchiveType, &c.Series, &c.Number, &c.Volume, &c.Year,
		&c.Title, &c.Publisher, &c.Summary, &c.FileHash, &c.FileSize, &fileModified,
		&c.PageCount, &processedAt, &deletedAt, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	c.FileModified = store.NullTime(fileModified)
	c.ProcessedAt = store.NullTime(processedAt)
	c.DeletedAt = store.NullTime(deletedAt)
	c.CreatedAt, _ = store.ParseTime(createdAt)
	c.UpdatedAt, _ = store.ParseTime(updatedAt)
	return &c, nil
}

func (s *Store) queryComics(ctx context.Context, query string, args ...any) ([]Comic, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var comics []Comic
	for rows.Next() {
		c, err := scanComic(rows)
		if err != nil {
			return nil, err
		}
		comics = append(comics, *c)
	}
	return comics, rows.Err()
}

func (s *Store) queryComic(ctx context.Context, query string, args ...any) (*Comic, error) {
	c, err := scanComic(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// CreateComic inserts c and returns the stored record. A filename collision
// returns ErrDuplicateFilename.
func (s *Store) CreateComic(ctx context.Context, c Comic) (*Comic, error) {
	now := s.timestamp()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO comics (filename, archive_type, series, number, volume, year, title, publisher, summary,
		                    file_hash, file_size, file_modified, page_count, processed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Filename, c.ArchiveType, c.Series, c.Number, c.Volume, c.Year, c.Title, c.Publisher, c.Summary,
		c.FileHash, c.FileSize, store.NullableTime(c.FileModified), c.PageCount, store.NullableTime(c.ProcessedAt), now, now)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateFilename, c.Filename)
		}
		return nil, fmt.Errorf("insert comic: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("comic id: %w", err)
	}
	return s.GetComic(ctx, id)
}

// GetComic returns the comic with id, or nil when it does not exist.
func (s *Store) GetComic(ctx context.Context, id int64) (*Comic, error) {
	c, err := s.queryComic(ctx, "SELECT "+comicColumns+" FROM comics WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("get comic %d: %w", id, err)
	}
	return c, nil
}

// FindByFilename returns the comic stored under filename, or nil.
func (s *Store) FindByFilename(ctx context.Context, filename string) (*Comic, error) {
	c, err := s.queryComic(ctx, "SELECT "+comicColumns+" FROM comics WHERE filename = ?", filename)
	if err != nil {
		return nil, fmt.Errorf("find comic %q: %w", filename, err)
	}
	return c, nil
}

// UpdateComic persists every mutable column of c and bumps updated_at.
func (s *Store) UpdateComic(ctx context.Context, c *Comic) error {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE comics SET filename = ?, archive_type = ?, series = ?, number = ?, volume = ?, year = ?, title = ?,
		       publisher = ?, summary = ?, file_hash = ?, file_size = ?, file_modified = ?, page_count = ?,
		       processed_at = ?, deleted_at = ?, updated_at = ?
		WHERE id = ?`,
		c.Filename, c.ArchiveType, c.Series, c.Number, c.Volume, c.Year, c.Title,
		c.Publisher, c.Summary, c.FileHash, c.FileSize, store.NullableTime(c.FileModified), c.PageCount,
		store.NullableTime(c.ProcessedAt), store.NullableTime(c.DeletedAt), store.FormatTime(now), c.ID)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateFilename, c.Filename)
		}
		return fmt.Errorf("update comic %d: %w", c.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update comic %d: %w", c.ID, sql.ErrNoRows)
	}
	c.UpdatedAt = now.UTC()
	return nil
}

// SoftDeleteComic stamps deleted_at and keeps the record and file.
func (s *Store) SoftDeleteComic(ctx context.Context, id int64) error {
	now := s.timestamp()
	if _, err := s.db.ExecContext(ctx, "UPDATE comics SET deleted_at = ?, updated_at = ? WHERE id = ?", now, now, id); err != nil {
		return fmt.Errorf("soft delete comic %d: %w", id, err)
	}
	return nil
}

// DeleteComic removes the record; pages, markers and list entries cascade.
func (s *Store) DeleteComic(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM comics WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete comic %d: %w", id, err)
	}
	return nil
}

// UpdatedSince returns comics changed after since, oldest change first.
// Soft-deleted comics are included so pollers observe deletions.
func (s *Store) UpdatedSince(ctx context.Context, since time.Time, limit int) ([]Comic, error) {
	if limit <= 0 {
		limit = 100
	}
	comics, err := s.queryComics(ctx,
		"SELECT "+comicColumns+" FROM comics WHERE updated_at > ? ORDER BY updated_at, id LIMIT ?",
		store.FormatTime(since), limit)
	if err != nil {
		return nil, fmt.Errorf("comics updated since %s: %w", since.Format(time.RFC3339), err)
	}
	return comics, nil
}

// ListComics returns live comics ordered by filename.
func (s *Store) ListComics(ctx context.Context, limit int) ([]Comic, error) {
	if limit <= 0 {
		limit = 1000
	}
	comics, err := s.queryComics(ctx,
		"SELECT "+comicColumns+" FROM comics WHERE deleted_at IS NULL ORDER BY filename LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list comics: %w", err)
	}
	return comics, nil
}

func parseOrZero(value string) time.Time {
	t, err := store.ParseTime(value)
	if err != nil {
		return time.Time{}
	}
	return t
}
