package queueaccess_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/api"
	"folio/internal/jobs"
	"folio/internal/queueaccess"
	"folio/internal/store"
	"folio/internal/testsupport"
)

func TestFallsBackToStoreWhenDaemonIsDown(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Import.IgnoreMetadata = true
	ctx := context.Background()

	down := httptest.NewServer(nil)
	addr := down.URL
	down.Close()
	client, err := api.NewClient(addr)
	require.NoError(t, err)

	session, err := queueaccess.OpenWithFallback(ctx, cfg, client, func() (*store.DB, error) {
		return store.OpenConfig(ctx, cfg)
	})
	require.NoError(t, err)
	defer session.Close()
	access := session.Access
	assert.False(t, access.Live())

	path := filepath.Join(cfg.Paths.LibraryDir, "Hellboy 001.cbz")
	recs, err := access.Import(ctx, api.ImportRequest{Paths: []string{path}})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, jobs.KindAdd, recs[0].Type)
	assert.Equal(t, "true", recs[0].Properties["ignore_metadata"])

	_, err = access.Import(ctx, api.ImportRequest{Paths: []string{"relative.cbz"}})
	assert.Error(t, err)

	health, err := access.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, health.Pending)

	released, err := access.ReleaseClaims(ctx)
	require.NoError(t, err)
	assert.Zero(t, released)

	removed, err := access.Remove(ctx, []int64{recs[0].ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestUsesDaemonWhenReachable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	p := testsupport.NewPipeline(t, cfg)
	srv, err := api.NewServer(api.Options{
		Config:     cfg,
		Dispatcher: p.Dispatcher,
		Queue:      p.Queue,
		Catalog:    p.Catalog,
		Signal:     p.Runtime.Signal(),
	})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	client, err := api.NewClient(ts.URL)
	require.NoError(t, err)
	ctx := context.Background()

	session, err := queueaccess.OpenWithFallback(ctx, cfg, client, func() (*store.DB, error) {
		t.Fatal("store opened while daemon is reachable")
		return nil, nil
	})
	require.NoError(t, err)
	defer session.Close()
	access := session.Access
	assert.True(t, access.Live())

	recs, err := access.Import(ctx, api.ImportRequest{Paths: []string{filepath.Join(cfg.Paths.LibraryDir, "a.cbz")}})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	items, err := access.List(ctx, api.QueueQuery{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, recs[0].ID, items[0].ID)

	_, err = access.ReleaseClaims(ctx)
	assert.ErrorIs(t, err, queueaccess.ErrDaemonRunning)
	_, err = access.Remove(ctx, []int64{recs[0].ID})
	assert.ErrorIs(t, err, queueaccess.ErrDaemonRunning)

	start := time.Now()
	_, err = access.Health(ctx)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestStoreMaintenanceRefusedWhileDaemonLockHeld(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()
	held := flock.New(cfg.LockPath())
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	t.Cleanup(func() { _ = held.Unlock() })

	session, err := queueaccess.OpenWithFallback(ctx, cfg, nil, func() (*store.DB, error) {
		return store.OpenConfig(ctx, cfg)
	})
	require.NoError(t, err)
	defer session.Close()

	_, err = session.Access.ReleaseClaims(ctx)
	assert.ErrorIs(t, err, queueaccess.ErrDaemonRunning)
	_, err = session.Access.Remove(ctx, []int64{1})
	assert.ErrorIs(t, err, queueaccess.ErrDaemonRunning)
}
