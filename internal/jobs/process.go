package jobs

import (
	"context"
	"fmt"
	"time"

	"folio/internal/catalog"
	"folio/internal/logging"
	"folio/internal/services"
	"folio/internal/task"
)

// Process records file details, pages and embedded metadata for a comic.
type Process struct {
	ComicID            int64
	DeleteBlockedPages bool
	IgnoreMetadata     bool
}

func NewProcess(comicID int64, deleteBlockedPages, ignoreMetadata bool) Process {
	return Process{ComicID: comicID, DeleteBlockedPages: deleteBlockedPages, IgnoreMetadata: ignoreMetadata}
}

func (j Process) Kind() string        { return KindProcess }
func (j Process) Description() string { return fmt.Sprintf("process comic %d", j.ComicID) }
func (j Process) SerialKey() string   { return comicKey(j.ComicID) }

func (j Process) Run(ctx context.Context, env *task.Env) error {
	comic, err := loadComic(ctx, env.Catalog, KindProcess, j.ComicID)
	if err != nil {
		return err
	}

	var blocked map[string]struct{}
	if j.DeleteBlockedPages {
		if blocked, err = env.Catalog.BlockedHashes(ctx); err != nil {
			return services.Wrap(services.ErrTransient, KindProcess, "load blocked hashes", "", err)
		}
	}
	scan, err := scanArchive(ctx, env, KindProcess, comic.Filename, blocked)
	if err != nil {
		return err
	}

	return env.Tx(ctx, func(ctx context.Context, s *task.Session) error {
		current, err := reloadComic(ctx, s, KindProcess, j.ComicID)
		if err != nil {
			return err
		}
		if current.Filename != comic.Filename {
			return services.Wrap(services.ErrValidation, KindProcess, "verify filename",
				fmt.Sprintf("comic moved from %s to %s while processing", comic.Filename, current.Filename), nil)
		}
		current.ArchiveType = string(scan.typ)
		current.FileHash = scan.hash
		current.FileSize = scan.size
		current.FileModified = scan.modified
		current.PageCount = scan.livePages()
		current.ProcessedAt = time.Now()
		if !j.IgnoreMetadata {
			applyComicInfo(current, scan.metadata)
		}
		if err := s.Catalog.UpdateComic(ctx, current); err != nil {
			return services.Wrap(services.ErrTransient, KindProcess, "update comic", "", err)
		}
		if err := s.Catalog.ReplacePages(ctx, current.ID, scan.pages); err != nil {
			return services.Wrap(services.ErrTransient, KindProcess, "store pages", "", err)
		}
		if err := s.Catalog.RemoveStageMarker(ctx, current.ID, catalog.StageProcess); err != nil {
			return err
		}
		env.Logger.Info("comic processed",
			logging.Int64(logging.FieldComicID, current.ID),
			logging.String("file_hash", scan.hash),
			logging.Int("pages", len(scan.pages)),
			logging.Int("live_pages", current.PageCount),
		)
		return nil
	})
}
