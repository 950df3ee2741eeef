package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// CollectionKind names a way of grouping comics.
type CollectionKind string

const (
	CollectionSeries      CollectionKind = "series"
	CollectionPublisher   CollectionKind = "publisher"
	CollectionReadingList CollectionKind = "reading_list"
)

// ErrUnknownCollection rejects collection kinds outside the closed set.
var ErrUnknownCollection = errors.New("unknown collection kind")

type collectionQuery func(s *Store, ctx context.Context, name string) ([]Comic, error)

var collectionQueries = map[CollectionKind]collectionQuery{
	CollectionSeries: func(s *Store, ctx context.Context, name string) ([]Comic, error) {
		return s.queryComics(ctx,
			"SELECT "+comicColumns+" FROM comics WHERE deleted_at IS NULL AND series = ? COLLATE NOCASE ORDER BY volume, CAST(number AS REAL), number, id",
			name)
	},
	CollectionPublisher: func(s *Store, ctx context.Context, name string) ([]Comic, error) {
		return s.queryComics(ctx,
			"SELECT "+comicColumns+" FROM comics WHERE deleted_at IS NULL AND publisher = ? COLLATE NOCASE ORDER BY series, volume, CAST(number AS REAL), id",
			name)
	},
	CollectionReadingList: func(s *Store, ctx context.Context, name string) ([]Comic, error) {
		return s.queryComics(ctx, `
			SELECT c.`+strings.ReplaceAll(comicColumns, ", ", ", c.")+`
			FROM comics c
			JOIN reading_list_entries e ON e.comic_id = c.id
			JOIN reading_lists l ON l.id = e.reading_list_id
			WHERE l.name = ? AND c.deleted_at IS NULL
			ORDER BY e.position`, name)
	},
}

// ParseCollectionKind validates a kind string.
func ParseCollectionKind(value string) (CollectionKind, error) {
	kind := CollectionKind(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := collectionQueries[kind]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCollection, value)
	}
	return kind, nil
}

// CollectionKinds lists the supported kinds in stable order.
func CollectionKinds() []CollectionKind {
	kinds := make([]CollectionKind, 0, len(collectionQueries))
	for kind := range collectionQueries {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// ComicsInCollection returns the live comics grouped under name by kind.
func (s *Store) ComicsInCollection(ctx context.Context, kind CollectionKind, name string) ([]Comic, error) {
	query, ok := collectionQueries[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, kind)
	}
	comics, err := query(s, ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%s collection %q: %w", kind, name, err)
	}
	return comics, nil
}

// CreateReadingList returns the list called name, creating it when missing.
func (s *Store) CreateReadingList(ctx context.Context, name string) (*ReadingList, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("reading list name is required")
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO reading_lists (name, created_at) VALUES (?, ?) ON CONFLICT (name) DO NOTHING",
		name, s.timestamp()); err != nil {
		return nil, fmt.Errorf("create reading list %q: %w", name, err)
	}
	return s.ReadingListByName(ctx, name)
}

// ReadingListByName returns the list called name, or nil.
func (s *Store) ReadingListByName(ctx context.Context, name string) (*ReadingList, error) {
	var (
		list    ReadingList
		created string
	)
	err := s.db.QueryRowContext(ctx, "SELECT id, name, created_at FROM reading_lists WHERE name = ?", name).Scan(&list.ID, &list.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reading list %q: %w", name, err)
	}
	list.CreatedAt = parseOrZero(created)
	return &list, nil
}

// AddToReadingList appends comicID to the end of list listID.
func (s *Store) AddToReadingList(ctx context.Context, listID, comicID int64) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO reading_list_entries (reading_list_id, comic_id, position)
		VALUES (?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM reading_list_entries WHERE reading_list_id = ?))
		ON CONFLICT (reading_list_id, comic_id) DO NOTHING`,
		listID, comicID, listID); err != nil {
		return fmt.Errorf("add comic %d to reading list %d: %w", comicID, listID, err)
	}
	return nil
}

// ReadingListsForComic returns every list containing comicID.
func (s *Store) ReadingListsForComic(ctx context.Context, comicID int64) ([]ReadingList, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.name, l.created_at FROM reading_lists l
		JOIN reading_list_entries e ON e.reading_list_id = l.id
		WHERE e.comic_id = ? ORDER BY l.name`, comicID)
	if err != nil {
		return nil, fmt.Errorf("reading lists of comic %d: %w", comicID, err)
	}
	defer rows.Close()
	var lists []ReadingList
	for rows.Next() {
		var (
			list    ReadingList
			created string
		)
		if err := rows.Scan(&list.ID, &list.Name, &created); err != nil {
			return nil, err
		}
		list.CreatedAt = parseOrZero(created)
		lists = append(lists, list)
	}
	return lists, rows.Err()
}

// RemoveFromAllReadingLists detaches comicID from every list.
func (s *Store) RemoveFromAllReadingLists(ctx context.Context, comicID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM reading_list_entries WHERE comic_id = ?", comicID)
	if err != nil {
		return 0, fmt.Errorf("detach comic %d from reading lists: %w", comicID, err)
	}
	return res.RowsAffected()
}
