package jobs

import (
	"context"
	"errors"
	"fmt"

	"folio/internal/archive"
	"folio/internal/catalog"
	"folio/internal/logging"
	"folio/internal/services"
	"folio/internal/task"
)

// Add imports the archive at Path into the catalog and chains a Process.
type Add struct {
	Path               string
	DeleteBlockedPages bool
	IgnoreMetadata     bool
}

// NewAdd returns an Add for path with its filename NFC-normalized.
func NewAdd(path string, deleteBlockedPages, ignoreMetadata bool) Add {
	return Add{
		Path:               catalog.NormalizeFilename(path),
		DeleteBlockedPages: deleteBlockedPages,
		IgnoreMetadata:     ignoreMetadata,
	}
}

func (j Add) Kind() string        { return KindAdd }
func (j Add) Description() string { return "import " + j.Path }
func (j Add) SerialKey() string   { return "file:" + j.Path }

func (j Add) Run(ctx context.Context, env *task.Env) error {
	existing, err := env.Catalog.FindByFilename(ctx, j.Path)
	if err != nil {
		return services.Wrap(services.ErrTransient, KindAdd, "lookup filename", j.Path, err)
	}
	if existing != nil {
		env.Logger.Info("comic already imported", logging.Int64(logging.FieldComicID, existing.ID), logging.String("path", j.Path))
		return nil
	}

	if _, err := env.FS.Stat(j.Path); err != nil {
		return fileError(KindAdd, "stat archive", j.Path, err)
	}
	typ, err := archive.DetectType(j.Path)
	if err != nil {
		return archiveError(KindAdd, "detect archive", j.Path, err)
	}
	meta := catalog.ParseFilename(j.Path)

	return env.Tx(ctx, func(ctx context.Context, s *task.Session) error {
		comic, err := s.Catalog.CreateComic(ctx, catalog.Comic{
			Filename:    j.Path,
			ArchiveType: string(typ),
			Series:      meta.Series,
			Number:      meta.Number,
			Volume:      meta.Volume,
			Year:        meta.Year,
			Title:       meta.Title,
		})
		if errors.Is(err, catalog.ErrDuplicateFilename) {
			env.Logger.Info("comic imported concurrently", logging.String("path", j.Path))
			return nil
		}
		if err != nil {
			return services.Wrap(services.ErrTransient, KindAdd, "create comic", j.Path, err)
		}
		if err := s.Catalog.AddStageMarker(ctx, comic.ID, catalog.StageProcess); err != nil {
			return err
		}
		rec, err := s.Enqueue(ctx, NewProcess(comic.ID, j.DeleteBlockedPages, j.IgnoreMetadata))
		if err != nil {
			return fmt.Errorf("enqueue process: %w", err)
		}
		env.Logger.Info("comic added",
			logging.Int64(logging.FieldComicID, comic.ID),
			logging.String("archive_type", string(typ)),
			logging.Int64("process_task_id", rec.ID),
		)
		return nil
	})
}
