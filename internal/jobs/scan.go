package jobs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"folio/internal/archive"
	"folio/internal/catalog"
	"folio/internal/hashing"
	"folio/internal/logging"
	"folio/internal/services"
	"folio/internal/task"
)

func comicKey(id int64) string {
	return "comic:" + strconv.FormatInt(id, 10)
}

// loadComic reads the comic outside the job transaction.
func loadComic(ctx context.Context, cat *catalog.Store, kind string, id int64) (*catalog.Comic, error) {
	comic, err := cat.GetComic(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, kind, "load comic", "", err)
	}
	if comic == nil {
		return nil, services.Wrap(services.ErrNotFound, kind, "load comic", fmt.Sprintf("comic %d does not exist", id), nil)
	}
	return comic, nil
}

// reloadComic re-reads the comic inside the job transaction.
func reloadComic(ctx context.Context, s *task.Session, kind string, id int64) (*catalog.Comic, error) {
	return loadComic(ctx, s.Catalog, kind, id)
}

func fileError(kind, op, path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return services.Wrap(services.ErrNotFound, kind, op, path+" is missing", err)
	}
	return services.Wrap(services.ErrFilesystem, kind, op, path, err)
}

func archiveError(kind, op, path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fileError(kind, op, path, err)
	}
	return services.Wrap(services.ErrArchive, kind, op, path, err)
}

// archiveScan is everything Process learns from a file before it writes.
type archiveScan struct {
	typ      archive.Type
	hash     string
	size     int64
	modified time.Time
	pages    []catalog.Page
	metadata *archive.ComicInfo
}

func (a *archiveScan) livePages() int {
	n := 0
	for _, p := range a.pages {
		if !p.Deleted {
			n++
		}
	}
	return n
}

// scanArchive loads, hashes and measures the archive at path.
func scanArchive(ctx context.Context, env *task.Env, kind, path string, blocked map[string]struct{}) (*archiveScan, error) {
	info, err := env.FS.Stat(path)
	if err != nil {
		return nil, fileError(kind, "stat archive", path, err)
	}
	adapter, err := env.Archives.ForFile(path)
	if err != nil {
		return nil, archiveError(kind, "detect archive", path, err)
	}
	contents, err := adapter.Load(ctx, path)
	if err != nil {
		return nil, archiveError(kind, "load archive", path, err)
	}
	hash, size, err := hashing.HashFile(env.Hasher, path)
	if err != nil {
		return nil, fileError(kind, "hash archive", path, err)
	}
	return &archiveScan{
		typ:      adapter.Type(),
		hash:     hash,
		size:     size,
		modified: info.ModTime(),
		pages:    measurePages(env, contents.Pages, blocked),
		metadata: contents.Metadata,
	}, nil
}

func measurePages(env *task.Env, entries []archive.Entry, blocked map[string]struct{}) []catalog.Page {
	pages := make([]catalog.Page, 0, len(entries))
	for i, entry := range entries {
		page := measurePage(env, entry.Name, entry.Data)
		page.Index = i
		if _, ok := blocked[page.Hash]; ok {
			page.Deleted = true
		}
		pages = append(pages, page)
	}
	return pages
}

func measurePage(env *task.Env, name string, data []byte) catalog.Page {
	page := catalog.Page{EntryName: name, FileSize: int64(len(data)), Hash: env.Hasher.Hash(data)}
	w, h, err := archive.ImageDimensions(data)
	if err != nil {
		env.Logger.Debug("page dimensions unavailable",
			logging.String("entry", name),
			logging.Error(err),
		)
		return page
	}
	page.Width, page.Height = w, h
	return page
}

// applyComicInfo copies non-empty embedded metadata onto c.
func applyComicInfo(c *catalog.Comic, info *archive.ComicInfo) {
	if info == nil {
		return
	}
	if info.Series != "" {
		c.Series = info.Series
	}
	if info.Number != "" {
		c.Number = info.Number
	}
	if info.Volume > 0 {
		c.Volume = info.Volume
	}
	if info.Year > 0 {
		c.Year = info.Year
	}
	if info.Title != "" {
		c.Title = info.Title
	}
	if info.Publisher != "" {
		c.Publisher = info.Publisher
	}
	if info.Summary != "" {
		c.Summary = info.Summary
	}
}

// comicInfoFor builds the metadata document written by Export.
func comicInfoFor(c *catalog.Comic, pages int) *archive.ComicInfo {
	return &archive.ComicInfo{
		Title:     c.Title,
		Series:    c.Series,
		Number:    c.Number,
		Volume:    c.Volume,
		Year:      c.Year,
		Publisher: c.Publisher,
		Summary:   c.Summary,
		PageCount: pages,
	}
}
