package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"folio/internal/archive"
	"folio/internal/catalog"
	"folio/internal/jobs"
	"folio/internal/logging"
	"folio/internal/task"
)

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	batch, err := req.Jobs(s.cfg)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	s.enqueue(w, r, batch...)
}

// comic resolves the {id} route parameter, writing the error reply itself.
func (s *Server) comic(w http.ResponseWriter, r *http.Request) (*catalog.Comic, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, r, http.StatusBadRequest, "invalid comic id")
		return nil, false
	}
	comic, err := s.catalog.GetComic(r.Context(), id)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	if comic == nil {
		s.writeError(w, r, http.StatusNotFound, "comic not found")
		return nil, false
	}
	return comic, true
}

func (s *Server) handleComic(w http.ResponseWriter, r *http.Request) {
	comic, ok := s.comic(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	pages, err := s.catalog.Pages(ctx, comic.ID)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	lists, err := s.catalog.ReadingListsForComic(ctx, comic.ID)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	markers, err := s.catalog.StageMarkers(ctx, comic.ID)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, r, http.StatusOK, ComicResponse{
		Comic:        *comic,
		Pages:        nonNil(pages),
		ReadingLists: nonNil(lists),
		Pending:      nonNil(markers),
	})
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	comic, ok := s.comic(w, r)
	if !ok {
		return
	}
	var req ConvertRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	target, err := req.target(s.cfg)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if !target.Writable() {
		s.writeError(w, r, http.StatusBadRequest, "archive type "+string(target)+" is read-only")
		return
	}
	rename := orDefault(req.RenamePages, s.cfg.Archive.RenamePages)
	s.enqueue(w, r, jobs.NewConvert(comic.ID, target, rename, req.DeletePages))
}

func (s *Server) handleRescan(w http.ResponseWriter, r *http.Request) {
	comic, ok := s.comic(w, r)
	if !ok {
		return
	}
	s.enqueue(w, r, jobs.NewRescan(comic.ID))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	comic, ok := s.comic(w, r)
	if !ok {
		return
	}
	var req ExportRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	target := archive.Type(req.ArchiveType)
	if target != "" && !target.Writable() {
		s.writeError(w, r, http.StatusBadRequest, "archive type "+req.ArchiveType+" is read-only")
		return
	}
	rename := orDefault(req.RenamePages, s.cfg.Archive.RenamePages)
	s.enqueue(w, r, jobs.NewExport(comic.ID, target, rename))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	comic, ok := s.comic(w, r)
	if !ok {
		return
	}
	hard := false
	if value := r.URL.Query().Get("hard"); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "hard must be a boolean")
			return
		}
		hard = parsed
	}
	s.enqueue(w, r, jobs.NewDelete(comic.ID, hard))
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	kind, err := catalog.ParseCollectionKind(chi.URLParam(r, "kind"))
	if err != nil {
		s.writeError(w, r, http.StatusNotFound, err.Error())
		return
	}
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid collection name")
		return
	}
	comics, err := s.catalog.ComicsInCollection(r.Context(), kind, name)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownCollection) {
			s.writeError(w, r, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, r, http.StatusOK, CollectionResponse{Kind: kind, Name: name, Comics: nonNil(comics)})
}

// enqueue stores jobs and replies 202 with the created records.
func (s *Server) enqueue(w http.ResponseWriter, r *http.Request, batch ...task.Job) {
	ctx := r.Context()
	records, err := s.dispatcher.Enqueue(ctx, batch...)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	s.log(ctx).Debug("api enqueued tasks", logging.Int("count", len(records)))
	s.writeJSON(w, r, http.StatusAccepted, EnqueueResponse{Tasks: FromRecords(records, time.Now())})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
