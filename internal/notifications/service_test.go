package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/config"
	"folio/internal/notifications"
)

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newNtfy(t *testing.T, status int) (*config.Config, <-chan captured) {
	t.Helper()
	got := make(chan captured, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	return &cfg, got
}

func TestNoopWithoutTopic(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	assert.NoError(t, svc.NotifyJobFailed(context.Background(), "add x.cbz", errors.New("boom")))
	assert.NoError(t, notifications.NewService(nil).TestNotification(context.Background()))
}

func TestJobFailedPayload(t *testing.T) {
	cfg, got := newNtfy(t, http.StatusOK)
	svc := notifications.NewService(cfg)

	require.NoError(t, svc.NotifyJobFailed(context.Background(), "convert comic 7", errors.New("disk full")))
	msg := <-got
	assert.Equal(t, "folio - Task Failed", msg.title)
	assert.Equal(t, "folio,task,failed", msg.tags)
	assert.Equal(t, "high", msg.priority)
	assert.Equal(t, "convert comic 7 failed: disk full", msg.body)
}

func TestQueueCompletedPayload(t *testing.T) {
	cfg, got := newNtfy(t, http.StatusOK)
	svc := notifications.NewService(cfg)
	ctx := context.Background()

	require.NoError(t, svc.NotifyQueueCompleted(ctx, 5, 0, 1500*time.Millisecond))
	msg := <-got
	assert.Equal(t, "folio - Queue Complete", msg.title)
	assert.Equal(t, "5 tasks processed in 2s", msg.body)

	require.NoError(t, svc.NotifyQueueCompleted(ctx, 3, 2, time.Minute))
	msg = <-got
	assert.Equal(t, "folio - Queue Complete (with errors)", msg.title)
	assert.Equal(t, "3 succeeded, 2 failed in 1m0s", msg.body)
}

func TestQueueCompletedCanBeDisabled(t *testing.T) {
	cfg, got := newNtfy(t, http.StatusOK)
	cfg.Notifications.QueueCompleted = false
	svc := notifications.NewService(cfg)

	require.NoError(t, svc.NotifyQueueCompleted(context.Background(), 1, 0, time.Second))
	require.NoError(t, svc.TestNotification(context.Background()))
	assert.Equal(t, "folio - Test", (<-got).title)
}

func TestServerErrorIsReported(t *testing.T) {
	cfg, _ := newNtfy(t, http.StatusForbidden)
	err := notifications.NewService(cfg).TestNotification(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
