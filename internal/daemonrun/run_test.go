package daemonrun_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/daemon"
	"folio/internal/daemonrun"
	"folio/internal/testsupport"
)

func TestRunWritesPIDAndStopsOnCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Logging.Format = "json"
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan *daemon.Daemon, 1)
	done := make(chan error, 1)
	go func() {
		done <- daemonrun.Run(ctx, cfg, daemonrun.Options{
			LogLevel: "debug",
			Ready:    func(d *daemon.Daemon) { ready <- d },
		})
	}()

	select {
	case d := <-ready:
		assert.True(t, d.Status(ctx).Running)
	case err := <-done:
		t.Fatalf("run exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not become ready")
	}
	assert.Equal(t, os.Getpid(), daemonrun.ReadPID(cfg))
	assert.Equal(t, "debug", cfg.Logging.Level)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}
	assert.Zero(t, daemonrun.ReadPID(cfg))
}
