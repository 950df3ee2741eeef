package jobs

import (
	"context"
	"fmt"

	"folio/internal/fileutil"
	"folio/internal/logging"
	"folio/internal/services"
	"folio/internal/task"
)

// Delete removes a comic from the catalog. A soft delete stamps deleted_at
// and keeps the file; a hard delete removes the file and the record.
type Delete struct {
	ComicID int64
	Hard    bool
}

func NewDelete(comicID int64, hard bool) Delete {
	return Delete{ComicID: comicID, Hard: hard}
}

func (j Delete) Kind() string { return KindDelete }
func (j Delete) Description() string {
	if j.Hard {
		return fmt.Sprintf("hard delete comic %d", j.ComicID)
	}
	return fmt.Sprintf("delete comic %d", j.ComicID)
}
func (j Delete) SerialKey() string { return comicKey(j.ComicID) }

func (j Delete) Run(ctx context.Context, env *task.Env) error {
	return env.Tx(ctx, func(ctx context.Context, s *task.Session) error {
		comic, err := s.Catalog.GetComic(ctx, j.ComicID)
		if err != nil {
			return services.Wrap(services.ErrTransient, KindDelete, "load comic", "", err)
		}
		if comic == nil {
			return nil
		}
		detached, err := s.Catalog.RemoveFromAllReadingLists(ctx, comic.ID)
		if err != nil {
			return services.Wrap(services.ErrTransient, KindDelete, "detach reading lists", "", err)
		}

		if !j.Hard {
			if err := s.Catalog.SoftDeleteComic(ctx, comic.ID); err != nil {
				return services.Wrap(services.ErrTransient, KindDelete, "soft delete", "", err)
			}
			env.Logger.Info("comic soft deleted",
				logging.Int64(logging.FieldComicID, comic.ID),
				logging.Int64("reading_lists", detached),
			)
			return nil
		}

		// The file goes first; a failure rolls back the detach as well.
		removed, err := fileutil.RemoveIfExists(env.FS, comic.Filename)
		if err != nil {
			logging.WarnWithContext(env.Logger, "comic file not removed", "delete_failed",
				logging.Int64(logging.FieldComicID, comic.ID),
				logging.String("path", comic.Filename),
				logging.Error(err),
			)
			return services.Wrap(services.ErrFilesystem, KindDelete, "remove file", comic.Filename, err)
		}
		if err := s.Catalog.DeleteComic(ctx, comic.ID); err != nil {
			return services.Wrap(services.ErrTransient, KindDelete, "delete record", "", err)
		}
		env.Logger.Info("comic deleted",
			logging.Int64(logging.FieldComicID, comic.ID),
			logging.Bool("file_removed", removed),
			logging.Int64("reading_lists", detached),
		)
		return nil
	})
}
