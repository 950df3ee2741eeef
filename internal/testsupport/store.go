package testsupport

import (
	"context"
	"testing"

	"folio/internal/catalog"
	"folio/internal/config"
	"folio/internal/queue"
	"folio/internal/store"
)

// MustOpenDB opens the configured database for tests and registers cleanup.
func MustOpenDB(t testing.TB, cfg *config.Config) *store.DB {
	t.Helper()

	db, err := store.OpenConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("store.OpenConfig: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// MustOpenQueue opens a queue.Store for tests.
func MustOpenQueue(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()
	return queue.New(MustOpenDB(t, cfg))
}

// NewComic inserts a catalog record for filename and returns it.
func NewComic(t testing.TB, cat *catalog.Store, filename string) *catalog.Comic {
	t.Helper()

	comic, err := cat.CreateComic(context.Background(), catalog.Comic{Filename: filename})
	if err != nil {
		t.Fatalf("catalog.CreateComic: %v", err)
	}
	return comic
}
