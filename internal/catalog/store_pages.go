package catalog

import (
	"context"
	"fmt"
)

// ReplacePages swaps the page list of comicID for pages and updates page_count
// with the number of pages not flagged deleted.
func (s *Store) ReplacePages(ctx context.Context, comicID int64, pages []Page) error {
	return s.atomically(ctx, func(tx *Store) error {
		if _, err := tx.db.ExecContext(ctx, "DELETE FROM pages WHERE comic_id = ?", comicID); err != nil {
			return fmt.Errorf("clear pages of comic %d: %w", comicID, err)
		}
		live := 0
		for i, p := range pages {
			if _, err := tx.db.ExecContext(ctx, `
				INSERT INTO pages (comic_id, page_index, entry_name, width, height, file_size, hash, deleted)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				comicID, i, p.EntryName, p.Width, p.Height, p.FileSize, p.Hash, p.Deleted); err != nil {
				return fmt.Errorf("insert page %d of comic %d: %w", i, comicID, err)
			}
			if !p.Deleted {
				live++
			}
		}
		if _, err := tx.db.ExecContext(ctx, "UPDATE comics SET page_count = ?, updated_at = ? WHERE id = ?", live, tx.timestamp(), comicID); err != nil {
			return fmt.Errorf("update page count of comic %d: %w", comicID, err)
		}
		return nil
	})
}

// Pages returns the pages of comicID in reading order, including deleted ones.
func (s *Store) Pages(ctx context.Context, comicID int64) ([]Page, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT comic_id, page_index, entry_name, width, height, file_size, hash, deleted
		FROM pages WHERE comic_id = ? ORDER BY page_index`, comicID)
	if err != nil {
		return nil, fmt.Errorf("list pages of comic %d: %w", comicID, err)
	}
	defer rows.Close()
	var pages []Page
	for rows.Next() {
		var p Page
		if err := rows.Scan(&p.ComicID, &p.Index, &p.EntryName, &p.Width, &p.Height, &p.FileSize, &p.Hash, &p.Deleted); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// UpdatePage rewrites the measured attributes of one page.
func (s *Store) UpdatePage(ctx context.Context, p Page) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE pages SET entry_name = ?, width = ?, height = ?, file_size = ?, hash = ?, deleted = ?
		WHERE comic_id = ? AND page_index = ?`,
		p.EntryName, p.Width, p.Height, p.FileSize, p.Hash, p.Deleted, p.ComicID, p.Index); err != nil {
		return fmt.Errorf("update page %d of comic %d: %w", p.Index, p.ComicID, err)
	}
	return nil
}

// BlockPageHash records a page hash (scanner credits, ads) that imports may drop.
func (s *Store) BlockPageHash(ctx context.Context, hash string) error {
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO blocked_page_hashes (hash, created_at) VALUES (?, ?) ON CONFLICT (hash) DO NOTHING",
		hash, s.timestamp()); err != nil {
		return fmt.Errorf("block page hash: %w", err)
	}
	return nil
}

// UnblockPageHash removes a blocked hash.
func (s *Store) UnblockPageHash(ctx context.Context, hash string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM blocked_page_hashes WHERE hash = ?", hash); err != nil {
		return fmt.Errorf("unblock page hash: %w", err)
	}
	return nil
}

// BlockedHashes returns the set of blocked page hashes.
func (s *Store) BlockedHashes(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT hash FROM blocked_page_hashes")
	if err != nil {
		return nil, fmt.Errorf("list blocked hashes: %w", err)
	}
	defer rows.Close()
	set := make(map[string]struct{})
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		set[h] = struct{}{}
	}
	return set, rows.Err()
}

// AddStageMarker records that comicID still needs stage. Adding an existing
// marker is a no-op.
func (s *Store) AddStageMarker(ctx context.Context, comicID int64, stage string) error {
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO stage_markers (comic_id, stage, created_at) VALUES (?, ?, ?) ON CONFLICT (comic_id, stage) DO NOTHING",
		comicID, stage, s.timestamp()); err != nil {
		return fmt.Errorf("add %s marker to comic %d: %w", stage, comicID, err)
	}
	return nil
}

// RemoveStageMarker clears a marker.
func (s *Store) RemoveStageMarker(ctx context.Context, comicID int64, stage string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM stage_markers WHERE comic_id = ? AND stage = ?", comicID, stage); err != nil {
		return fmt.Errorf("remove %s marker from comic %d: %w", stage, comicID, err)
	}
	return nil
}

// StageMarkers returns the outstanding stages of comicID.
func (s *Store) StageMarkers(ctx context.Context, comicID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT stage FROM stage_markers WHERE comic_id = ? ORDER BY stage", comicID)
	if err != nil {
		return nil, fmt.Errorf("list markers of comic %d: %w", comicID, err)
	}
	defer rows.Close()
	var stages []string
	for rows.Next() {
		var stage string
		if err := rows.Scan(&stage); err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}
	return stages, rows.Err()
}

// CountStageMarkers returns how many comics still carry stage.
func (s *Store) CountStageMarkers(ctx context.Context, stage string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM stage_markers WHERE stage = ?", stage).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s markers: %w", stage, err)
	}
	return n, nil
}
