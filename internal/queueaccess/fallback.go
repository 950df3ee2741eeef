package queueaccess

import (
	"context"
	"fmt"
	"time"

	"folio/internal/api"
	"folio/internal/catalog"
	"folio/internal/config"
	"folio/internal/jobs"
	"folio/internal/queue"
	"folio/internal/store"
	"folio/internal/task"
)

// pingTimeout bounds the daemon liveness check.
const pingTimeout = 2 * time.Second

// Session represents a queue access handle and its cleanup function.
type Session struct {
	Access Access
	close  func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenWithFallback uses the daemon API when it answers, then falls back to
// opening the database directly.
func OpenWithFallback(ctx context.Context, cfg *config.Config, client *api.Client, openDB func() (*store.DB, error)) (Session, error) {
	if client != nil {
		if err := client.Ping(ctx, pingTimeout); err == nil {
			return Session{Access: NewHTTPAccess(client)}, nil
		}
	}

	if openDB == nil {
		return Session{}, fmt.Errorf("open queue store: no store opener configured")
	}
	db, err := openDB()
	if err != nil {
		return Session{}, fmt.Errorf("open queue store: %w", err)
	}
	return Session{
		Access: newStoreAccessFor(cfg, db),
		close:  db.Close,
	}, nil
}

// Open connects using cfg: the configured API first, then the database.
func Open(ctx context.Context, cfg *config.Config) (Session, error) {
	client, err := api.NewClient(cfg.Paths.APIBind)
	if err != nil {
		return Session{}, err
	}
	return OpenWithFallback(ctx, cfg, client, func() (*store.DB, error) {
		return store.OpenConfig(ctx, cfg)
	})
}

func newStoreAccessFor(cfg *config.Config, db *store.DB) Access {
	registry := task.NewRegistry(catalog.New(db))
	jobs.Register(registry)
	return NewStoreAccess(cfg, queue.New(db), registry)
}
