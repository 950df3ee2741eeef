// Package daemonrun hosts the foreground daemon process: signal handling,
// logging, the pid file and the store lifecycle around daemon.Daemon.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"folio/internal/config"
	"folio/internal/daemon"
	"folio/internal/logging"
	"folio/internal/store"
)

// PIDFileName is written under paths.data_dir while the daemon runs.
const PIDFileName = "foliod.pid"

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
	// Ready is called once the daemon has started.
	Ready func(*daemon.Daemon)
}

// Run starts the folio daemon and blocks until ctx ends or SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	db, err := store.OpenConfig(signalCtx, cfg)
	if err != nil {
		logger.Error("open database",
			logging.Error(err),
			logging.String(logging.FieldEventType, "database_open_failed"),
			logging.String(logging.FieldErrorHint, "check data_dir permissions"),
		)
		return err
	}

	d, err := daemon.New(cfg, db, logger)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration, the lock file and database access"),
		)
		return err
	}

	pidPath := filepath.Join(cfg.Paths.DataDir, PIDFileName)
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("write pid file", logging.Error(err))
	}
	defer os.Remove(pidPath)

	if opts.Ready != nil {
		opts.Ready(d)
	}

	<-signalCtx.Done()
	logger.Info("folio daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// ReadPID returns the pid recorded by a running daemon, or 0.
func ReadPID(cfg *config.Config) int {
	data, err := os.ReadFile(filepath.Join(cfg.Paths.DataDir, PIDFileName))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}
