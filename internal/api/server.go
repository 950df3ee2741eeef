package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"folio/internal/catalog"
	"folio/internal/config"
	"folio/internal/logging"
	"folio/internal/preflight"
	"folio/internal/queue"
	"folio/internal/services"
	"folio/internal/task"
	"folio/internal/worker"
	"folio/internal/workflow"
)

const (
	// RequestIDHeader carries the correlation id in both directions.
	RequestIDHeader = "X-Request-ID"

	maxStatusWait  = 5 * time.Minute
	statusLimit    = 200
	maxRequestBody = 1 << 20
)

// Pipeline is the dispatcher surface the server drives.
type Pipeline interface {
	Enqueue(ctx context.Context, jobs ...task.Job) ([]queue.Record, error)
	Status(ctx context.Context) workflow.StatusSummary
	Wake()
}

// Options wires a Server.
type Options struct {
	Config     *config.Config
	Dispatcher Pipeline
	Queue      *queue.Store
	Catalog    *catalog.Store
	Signal     *worker.Signal
	// Preflight is reported with every status reply when set.
	Preflight func() []preflight.Result
	Logger    *slog.Logger
}

// Server serves the pipeline HTTP API.
type Server struct {
	cfg        *config.Config
	dispatcher Pipeline
	queueSvc   *QueueService
	catalog    *catalog.Store
	signal     *worker.Signal
	preflight  func() []preflight.Result
	logger     *slog.Logger
	validate   *validator.Validate
}

// NewServer builds a Server from opts. Dispatcher, Queue and Catalog are
// required.
func NewServer(opts Options) (*Server, error) {
	switch {
	case opts.Dispatcher == nil:
		return nil, errors.New("api: dispatcher is required")
	case opts.Queue == nil:
		return nil, errors.New("api: queue store is required")
	case opts.Catalog == nil:
		return nil, errors.New("api: catalog store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	signal := opts.Signal
	if signal == nil {
		signal = worker.NewSignal()
	}
	return &Server{
		cfg:        opts.Config,
		dispatcher: opts.Dispatcher,
		queueSvc:   NewQueueService(opts.Queue),
		catalog:    opts.Catalog,
		signal:     signal,
		preflight:  opts.Preflight,
		logger:     logging.NewComponentLogger(logger, "api-server"),
		validate:   newValidator(),
	}, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/import", s.handleImport)

		r.Get("/queue", s.handleQueue)
		r.Get("/queue/health", s.handleQueueHealth)
		r.Post("/queue/retry", s.handleQueueRetry)
		r.Post("/queue/clear-failed", s.handleQueueClearFailed)

		r.Route("/comics/{id}", func(r chi.Router) {
			r.Get("/", s.handleComic)
			r.Delete("/", s.handleDelete)
			r.Post("/convert", s.handleConvert)
			r.Post("/rescan", s.handleRescan)
			r.Post("/export", s.handleExport)
		})

		r.Get("/collections/{kind}/{name}", s.handleCollection)
	})
	return r
}

// requestID stamps every request with a correlation id, reusing the
// caller's when supplied.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

func (s *Server) log(ctx context.Context) *slog.Logger {
	return logging.WithContext(ctx, s.logger)
}

// decodeBody parses an optional JSON body into dst and validates it.
func (s *Server) decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if err := s.validate.Struct(dst); err != nil {
		return errors.New(validationMessage(err))
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log(r.Context()).Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	if status >= http.StatusInternalServerError {
		s.log(r.Context()).Error("api request failed",
			logging.String("path", r.URL.Path),
			logging.String("error", message),
			logging.String(logging.FieldEventType, "api_error"),
		)
	}
	id, _ := services.RequestIDFromContext(r.Context())
	s.writeJSON(w, r, status, ErrorResponse{Error: message, RequestID: id})
}
