package api

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"folio/internal/archive"
	"folio/internal/config"
	"folio/internal/jobs"
	"folio/internal/task"
)

// ImportRequest enqueues an Add task per path.
type ImportRequest struct {
	Paths              []string `json:"paths" validate:"required,min=1,dive,required"`
	DeleteBlockedPages *bool    `json:"delete_blocked_pages,omitempty"`
	IgnoreMetadata     *bool    `json:"ignore_metadata,omitempty"`
}

// ConvertRequest enqueues a Convert task.
type ConvertRequest struct {
	ArchiveType string `json:"archive_type" validate:"omitempty,oneof=cbz cbr cb7"`
	RenamePages *bool  `json:"rename_pages,omitempty"`
	DeletePages bool   `json:"delete_pages"`
}

// ExportRequest enqueues an Export task. A blank archive type keeps the
// comic's container when it is writable.
type ExportRequest struct {
	ArchiveType string `json:"archive_type" validate:"omitempty,oneof=cbz cbr cb7"`
	RenamePages *bool  `json:"rename_pages,omitempty"`
}

// RetryRequest retries failed records; no ids means all of them.
type RetryRequest struct {
	IDs []int64 `json:"ids" validate:"dive,gt=0"`
}

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// validationMessage flattens validator errors into one line.
func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// cleanPaths requires absolute paths and cleans them.
func (r ImportRequest) cleanPaths() ([]string, error) {
	out := make([]string, 0, len(r.Paths))
	for _, p := range r.Paths {
		p = strings.TrimSpace(p)
		if !filepath.IsAbs(p) {
			return nil, fmt.Errorf("path %q must be absolute", p)
		}
		out = append(out, filepath.Clean(p))
	}
	return out, nil
}

// Jobs validates r and returns one Add per path, with unset flags taken
// from cfg.
func (r ImportRequest) Jobs(cfg *config.Config) ([]task.Job, error) {
	if err := newValidator().Struct(r); err != nil {
		return nil, errors.New(validationMessage(err))
	}
	paths, err := r.cleanPaths()
	if err != nil {
		return nil, err
	}
	deleteBlocked, ignoreMetadata := r.flags(cfg)
	batch := make([]task.Job, 0, len(paths))
	for _, p := range paths {
		batch = append(batch, jobs.NewAdd(p, deleteBlocked, ignoreMetadata))
	}
	return batch, nil
}

func (r ImportRequest) flags(cfg *config.Config) (deleteBlocked, ignoreMetadata bool) {
	return orDefault(r.DeleteBlockedPages, cfg.Import.DeleteBlockedPages), orDefault(r.IgnoreMetadata, cfg.Import.IgnoreMetadata)
}

func (r ConvertRequest) target(cfg *config.Config) (archive.Type, error) {
	value := r.ArchiveType
	if value == "" {
		value = cfg.Archive.DefaultTarget
	}
	return archive.ParseType(value)
}

func orDefault(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}
