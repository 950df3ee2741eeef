package jobs

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"folio/internal/archive"
	"folio/internal/catalog"
	"folio/internal/fileutil"
	"folio/internal/hashing"
	"folio/internal/logging"
	"folio/internal/services"
	"folio/internal/task"
)

// Export re-saves a comic with a generated ComicInfo.xml and refreshes its
// file details. A blank Target keeps the current container when it is
// writable and falls back to the configured default otherwise. When an
// export directory is configured a verified copy is placed there.
type Export struct {
	ComicID     int64
	Target      archive.Type
	RenamePages bool
}

func NewExport(comicID int64, target archive.Type, renamePages bool) Export {
	return Export{ComicID: comicID, Target: target, RenamePages: renamePages}
}

func (j Export) Kind() string        { return KindExport }
func (j Export) Description() string { return fmt.Sprintf("export comic %d", j.ComicID) }
func (j Export) SerialKey() string   { return comicKey(j.ComicID) }

func (j Export) Run(ctx context.Context, env *task.Env) error {
	comic, err := loadComic(ctx, env.Catalog, KindExport, j.ComicID)
	if err != nil {
		return err
	}
	targetType, target, err := j.resolveTarget(env, comic)
	if err != nil {
		return err
	}
	contents, err := loadContents(ctx, env, KindExport, comic.Filename)
	if err != nil {
		return err
	}
	opts := archive.SaveOptions{RenamePages: j.RenamePages}
	contents.Metadata = comicInfoFor(comic, len(contents.Pages))

	dest, err := destinationPath(ctx, env, comic, targetType)
	if err != nil {
		return err
	}
	if err := writeArchive(ctx, env, KindExport, target, dest, contents, opts, comic.FileSize); err != nil {
		return err
	}
	moved := dest != comic.Filename

	hash, size, err := hashing.HashFile(env.Hasher, dest)
	if err != nil {
		return fileError(KindExport, "hash archive", dest, err)
	}
	info, err := env.FS.Stat(dest)
	if err != nil {
		return fileError(KindExport, "stat archive", dest, err)
	}
	if exportDir := env.Config.Paths.ExportDir; exportDir != "" {
		copyPath := filepath.Join(exportDir, filepath.Base(dest))
		if _, err := fileutil.CopyVerified(dest, copyPath, env.Hasher); err != nil {
			return fileError(KindExport, "copy to export directory", copyPath, err)
		}
	}
	names := contents.PageNames(opts)

	err = env.Tx(ctx, func(ctx context.Context, s *task.Session) error {
		current, err := reloadComic(ctx, s, KindExport, j.ComicID)
		if err != nil {
			return err
		}
		pages, err := s.Catalog.Pages(ctx, current.ID)
		if err != nil {
			return services.Wrap(services.ErrTransient, KindExport, "load pages", "", err)
		}
		current.Filename = dest
		current.ArchiveType = string(targetType)
		current.FileHash = hash
		current.FileSize = size
		current.FileModified = info.ModTime()
		current.ProcessedAt = time.Now()
		if err := s.Catalog.UpdateComic(ctx, current); err != nil {
			return services.Wrap(services.ErrTransient, KindExport, "update comic", dest, err)
		}
		if renamed := renamePages(pages, contents.Pages, names); renamed != nil {
			if err := s.Catalog.ReplacePages(ctx, current.ID, renamed); err != nil {
				return services.Wrap(services.ErrTransient, KindExport, "store pages", "", err)
			}
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
	env.Logger.Info("comic exported",
		logging.Int64(logging.FieldComicID, comic.ID),
		logging.String("path", dest),
		logging.String("file_hash", hash),
	)
	return nil
}

func (j Export) resolveTarget(env *task.Env, comic *catalog.Comic) (archive.Type, archive.Adapter, error) {
	candidates := []string{string(j.Target)}
	if j.Target == "" {
		candidates = []string{comic.ArchiveType, env.Config.Archive.DefaultTarget}
	}
	var lastErr error
	for _, candidate := range candidates {
		typ, err := archive.ParseType(candidate)
		if err != nil {
			lastErr = err
			continue
		}
		adapter, err := env.Archives.For(typ)
		if err != nil {
			lastErr = err
			continue
		}
		if j.Target == "" && !typ.Writable() {
			continue
		}
		return typ, adapter, nil
	}
	if lastErr == nil {
		lastErr = archive.ErrReadOnlyFormat
	}
	return "", nil, services.Wrap(services.ErrValidation, KindExport, "select target", "", lastErr)
}

// renamePages maps stored page rows onto their new entry names. It returns
// nil when the stored rows do not line up with the saved entries.
func renamePages(stored []catalog.Page, saved []archive.Entry, names []string) []catalog.Page {
	if len(stored) != len(saved) {
		return nil
	}
	byName := make(map[string]string, len(saved))
	for i, entry := range saved {
		byName[entry.Name] = names[i]
	}
	out := make([]catalog.Page, len(stored))
	changed := false
	for i, p := range stored {
		name, ok := byName[p.EntryName]
		if !ok {
			return nil
		}
		if name != p.EntryName {
			changed = true
		}
		p.EntryName = name
		out[i] = p
	}
	if !changed {
		return nil
	}
	return out
}
