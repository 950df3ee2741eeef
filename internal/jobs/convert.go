package jobs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"folio/internal/archive"
	"folio/internal/catalog"
	"folio/internal/fileutil"
	"folio/internal/logging"
	"folio/internal/preflight"
	"folio/internal/services"
	"folio/internal/task"
)

// Convert rewrites a comic into the Target container and re-chains Process.
type Convert struct {
	ComicID     int64
	Target      archive.Type
	RenamePages bool
	DeletePages bool
}

func NewConvert(comicID int64, target archive.Type, renamePages, deletePages bool) Convert {
	return Convert{ComicID: comicID, Target: target, RenamePages: renamePages, DeletePages: deletePages}
}

func (j Convert) Kind() string { return KindConvert }
func (j Convert) Description() string {
	return fmt.Sprintf("convert comic %d to %s", j.ComicID, j.Target)
}
func (j Convert) SerialKey() string { return comicKey(j.ComicID) }

func (j Convert) Run(ctx context.Context, env *task.Env) error {
	comic, err := loadComic(ctx, env.Catalog, KindConvert, j.ComicID)
	if err != nil {
		return err
	}
	target, err := env.Archives.For(j.Target)
	if err != nil {
		return services.Wrap(services.ErrValidation, KindConvert, "select target", "", err)
	}
	contents, err := loadContents(ctx, env, KindConvert, comic.Filename)
	if err != nil {
		return err
	}
	if j.DeletePages {
		drop, err := deletedEntries(ctx, env.Catalog, comic.ID)
		if err != nil {
			return services.Wrap(services.ErrTransient, KindConvert, "load pages", "", err)
		}
		contents = contents.Without(drop)
	}

	dest, err := destinationPath(ctx, env, comic, j.Target)
	if err != nil {
		return err
	}
	if err := writeArchive(ctx, env, KindConvert, target, dest, contents, archive.SaveOptions{RenamePages: j.RenamePages}, comic.FileSize); err != nil {
		return err
	}
	moved := dest != comic.Filename

	err = env.Tx(ctx, func(ctx context.Context, s *task.Session) error {
		current, err := reloadComic(ctx, s, KindConvert, j.ComicID)
		if err != nil {
			return err
		}
		current.Filename = dest
		current.ArchiveType = string(j.Target)
		if err := s.Catalog.UpdateComic(ctx, current); err != nil {
			return services.Wrap(services.ErrTransient, KindConvert, "update comic", dest, err)
		}
		if err := s.Catalog.AddStageMarker(ctx, current.ID, catalog.StageProcess); err != nil {
			return err
		}
		if _, err := s.Enqueue(ctx, NewProcess(current.ID, false, false)); err != nil {
			return fmt.Errorf("enqueue process: %w", err)
		}
		if moved {
			old := comic.Filename
			s.AfterCommit(func() { removeReplaced(env, old) })
		}
		return nil
	})
	if err != nil {
		if moved {
			_, _ = fileutil.RemoveIfExists(env.FS, dest)
		}
		return err
	}
	env.Logger.Info("comic converted",
		logging.Int64(logging.FieldComicID, comic.ID),
		logging.String("from", comic.Filename),
		logging.String("to", dest),
	)
	return nil
}

func loadContents(ctx context.Context, env *task.Env, kind, path string) (*archive.Contents, error) {
	source, err := env.Archives.ForFile(path)
	if err != nil {
		return nil, archiveError(kind, "detect archive", path, err)
	}
	contents, err := source.Load(ctx, path)
	if err != nil {
		return nil, archiveError(kind, "load archive", path, err)
	}
	return contents, nil
}

func deletedEntries(ctx context.Context, cat *catalog.Store, comicID int64) (map[string]bool, error) {
	pages, err := cat.Pages(ctx, comicID)
	if err != nil {
		return nil, err
	}
	drop := make(map[string]bool)
	for _, p := range pages {
		if p.Deleted {
			drop[p.EntryName] = true
		}
	}
	return drop, nil
}

// destinationPath swaps the extension of the comic file for typ. Any existing
// file or catalog entry at that path is left alone and the first free
// "name (n).ext" sibling is used instead.
func destinationPath(ctx context.Context, env *task.Env, comic *catalog.Comic, typ archive.Type) (string, error) {
	base := strings.TrimSuffix(comic.Filename, filepath.Ext(comic.Filename)) + typ.Extension()
	if base == comic.Filename {
		return base, nil
	}
	dest := base
	for n := 1; ; n++ {
		free, err := pathFree(ctx, env, dest)
		if err != nil {
			return "", err
		}
		if free {
			return dest, nil
		}
		dest = fileutil.NumberedPath(base, n)
	}
}

func pathFree(ctx context.Context, env *task.Env, path string) (bool, error) {
	if _, err := env.FS.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, services.Wrap(services.ErrFilesystem, "", "stat destination", path, err)
	}
	owner, err := env.Catalog.FindByFilename(ctx, path)
	if err != nil {
		return false, services.Wrap(services.ErrTransient, "", "lookup destination", path, err)
	}
	return owner == nil, nil
}

func writeArchive(ctx context.Context, env *task.Env, kind string, target archive.Adapter, dest string, contents *archive.Contents, opts archive.SaveOptions, sizeHint int64) error {
	if err := preflight.EnsureWritable(filepath.Dir(dest), uint64(max(sizeHint, 0))); err != nil {
		return services.Wrap(services.ErrFilesystem, kind, "preflight", "", err)
	}
	if err := target.Save(ctx, dest, contents, opts); err != nil {
		if errors.Is(err, archive.ErrReadOnlyFormat) {
			return services.Wrap(services.ErrValidation, kind, "save archive", dest, err)
		}
		return archiveError(kind, "save archive", dest, err)
	}
	return nil
}

func removeReplaced(env *task.Env, path string) {
	if _, err := fileutil.RemoveIfExists(env.FS, path); err != nil {
		logging.WarnWithContext(env.Logger, "replaced archive not removed", "cleanup_failed",
			logging.String("path", path),
			logging.Error(err),
		)
	}
}
