package jobs

import (
	"context"

	"folio/internal/archive"
	"folio/internal/queue"
	"folio/internal/task"
)

// Job kinds persisted as task types.
const (
	KindAdd     = "add"
	KindProcess = "process"
	KindConvert = "convert"
	KindRescan  = "rescan"
	KindDelete  = "delete"
	KindExport  = "export"
)

// Property keys.
const (
	propPath               = "path"
	propComicID            = "comic_id"
	propDeleteBlockedPages = "delete_blocked_pages"
	propIgnoreMetadata     = "ignore_metadata"
	propArchiveType        = "archive_type"
	propRenamePages        = "rename_pages"
	propDeletePages        = "delete_pages"
	propHard               = "hard"
)

// Kinds lists every job kind.
func Kinds() []string {
	return []string{KindAdd, KindProcess, KindConvert, KindRescan, KindDelete, KindExport}
}

// Register installs the codec of every job kind into reg.
func Register(reg *task.Registry) {
	task.Register(reg, KindAdd,
		func(j Add) queue.Properties {
			return new(task.Builder).
				String(propPath, j.Path).
				Bool(propDeleteBlockedPages, j.DeleteBlockedPages).
				Bool(propIgnoreMetadata, j.IgnoreMetadata).
				Properties()
		},
		func(_ context.Context, p task.Props) (Add, error) {
			path, err := p.String(propPath)
			if err != nil {
				return Add{}, err
			}
			flags, err := readFlags(p)
			if err != nil {
				return Add{}, err
			}
			return NewAdd(path, flags.deleteBlocked, flags.ignoreMetadata), nil
		})

	task.Register(reg, KindProcess,
		func(j Process) queue.Properties {
			return new(task.Builder).
				Int64(propComicID, j.ComicID).
				Bool(propDeleteBlockedPages, j.DeleteBlockedPages).
				Bool(propIgnoreMetadata, j.IgnoreMetadata).
				Properties()
		},
		func(ctx context.Context, p task.Props) (Process, error) {
			id, err := p.ComicID(ctx, propComicID)
			if err != nil {
				return Process{}, err
			}
			flags, err := readFlags(p)
			if err != nil {
				return Process{}, err
			}
			return NewProcess(id, flags.deleteBlocked, flags.ignoreMetadata), nil
		})

	task.Register(reg, KindConvert,
		func(j Convert) queue.Properties {
			return new(task.Builder).
				Int64(propComicID, j.ComicID).
				String(propArchiveType, string(j.Target)).
				Bool(propRenamePages, j.RenamePages).
				Bool(propDeletePages, j.DeletePages).
				Properties()
		},
		func(ctx context.Context, p task.Props) (Convert, error) {
			id, err := p.ComicID(ctx, propComicID)
			if err != nil {
				return Convert{}, err
			}
			target, err := readType(p, true)
			if err != nil {
				return Convert{}, err
			}
			rename, err := p.Bool(propRenamePages)
			if err != nil {
				return Convert{}, err
			}
			drop, err := p.Bool(propDeletePages)
			if err != nil {
				return Convert{}, err
			}
			return NewConvert(id, target, rename, drop), nil
		})

	task.Register(reg, KindRescan,
		func(j Rescan) queue.Properties {
			return new(task.Builder).Int64(propComicID, j.ComicID).Properties()
		},
		func(ctx context.Context, p task.Props) (Rescan, error) {
			id, err := p.ComicID(ctx, propComicID)
			if err != nil {
				return Rescan{}, err
			}
			return NewRescan(id), nil
		})

	task.Register(reg, KindDelete,
		func(j Delete) queue.Properties {
			return new(task.Builder).
				Int64(propComicID, j.ComicID).
				Bool(propHard, j.Hard).
				Properties()
		},
		func(ctx context.Context, p task.Props) (Delete, error) {
			id, err := p.ComicID(ctx, propComicID)
			if err != nil {
				return Delete{}, err
			}
			hard, err := p.Bool(propHard)
			if err != nil {
				return Delete{}, err
			}
			return NewDelete(id, hard), nil
		})

	task.Register(reg, KindExport,
		func(j Export) queue.Properties {
			return new(task.Builder).
				Int64(propComicID, j.ComicID).
				String(propArchiveType, string(j.Target)).
				Bool(propRenamePages, j.RenamePages).
				Properties()
		},
		func(ctx context.Context, p task.Props) (Export, error) {
			id, err := p.ComicID(ctx, propComicID)
			if err != nil {
				return Export{}, err
			}
			target, err := readType(p, false)
			if err != nil {
				return Export{}, err
			}
			rename, err := p.Bool(propRenamePages)
			if err != nil {
				return Export{}, err
			}
			return NewExport(id, target, rename), nil
		})
}

type flags struct {
	deleteBlocked  bool
	ignoreMetadata bool
}

func readFlags(p task.Props) (flags, error) {
	var f flags
	var err error
	if f.deleteBlocked, err = p.Bool(propDeleteBlockedPages); err != nil {
		return flags{}, err
	}
	if f.ignoreMetadata, err = p.Bool(propIgnoreMetadata); err != nil {
		return flags{}, err
	}
	return f, nil
}

// readType parses archive_type. An absent or blank value is allowed only
// when required is false.
func readType(p task.Props, required bool) (archive.Type, error) {
	raw := p.Optional(propArchiveType)
	if raw == "" && !required {
		return "", nil
	}
	value, err := p.String(propArchiveType)
	if err != nil {
		return "", err
	}
	t, err := archive.ParseType(value)
	if err != nil {
		return "", p.Invalid(propArchiveType, err)
	}
	return t, nil
}
