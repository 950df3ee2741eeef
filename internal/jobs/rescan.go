package jobs

import (
	"context"
	"fmt"

	"folio/internal/logging"
	"folio/internal/services"
	"folio/internal/task"
)

// Rescan refreshes the measured attributes of every page of a comic.
type Rescan struct {
	ComicID int64
}

func NewRescan(comicID int64) Rescan {
	return Rescan{ComicID: comicID}
}

func (j Rescan) Kind() string        { return KindRescan }
func (j Rescan) Description() string { return fmt.Sprintf("rescan comic %d", j.ComicID) }
func (j Rescan) SerialKey() string   { return comicKey(j.ComicID) }

func (j Rescan) Run(ctx context.Context, env *task.Env) error {
	comic, err := loadComic(ctx, env.Catalog, KindRescan, j.ComicID)
	if err != nil {
		return err
	}
	pages, err := env.Catalog.Pages(ctx, comic.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, KindRescan, "load pages", "", err)
	}
	if len(pages) == 0 {
		return nil
	}
	adapter, err := env.Archives.ForFile(comic.Filename)
	if err != nil {
		return archiveError(KindRescan, "detect archive", comic.Filename, err)
	}
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := adapter.LoadSingleEntry(comic.Filename, page.EntryName)
		if err != nil {
			return archiveError(KindRescan, "load page", page.EntryName, err)
		}
		measured := measurePage(env, page.EntryName, data)
		pages[i].Width, pages[i].Height = measured.Width, measured.Height
		pages[i].FileSize, pages[i].Hash = measured.FileSize, measured.Hash
	}

	return env.Tx(ctx, func(ctx context.Context, s *task.Session) error {
		for _, page := range pages {
			if err := s.Catalog.UpdatePage(ctx, page); err != nil {
				return services.Wrap(services.ErrTransient, KindRescan, "update page", page.EntryName, err)
			}
		}
		env.Logger.Info("comic rescanned",
			logging.Int64(logging.FieldComicID, comic.ID),
			logging.Int("pages", len(pages)),
		)
		return nil
	})
}
