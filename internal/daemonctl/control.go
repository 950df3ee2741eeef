// Package daemonctl launches and stops a background folio daemon.
package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"folio/internal/api"
	"folio/internal/config"
	"folio/internal/daemonrun"
)

// ErrDaemonNotRunning reports that neither the API nor a live pid was found.
var ErrDaemonNotRunning = errors.New("daemon not running")

const pollInterval = 200 * time.Millisecond

// StartState describes what EnsureStarted did.
type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StopResult captures how the daemon was stopped.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// Launch starts a detached "folio daemon" process.
func Launch(executablePath, configPath string) error {
	if strings.TrimSpace(executablePath) == "" {
		return errors.New("resolve executable: executable path is empty")
	}
	args := []string{"daemon"}
	if configPath = strings.TrimSpace(configPath); configPath != "" {
		args = append(args, "--config", configPath)
	}
	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient polls the daemon API until it answers or timeout elapses.
func WaitForClient(ctx context.Context, client *api.Client, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		if lastErr = client.Ping(ctx, time.Second); lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
	if lastErr == nil {
		lastErr = errors.New("timeout waiting for daemon")
	}
	return fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon unless its API already answers.
func EnsureStarted(ctx context.Context, client *api.Client, executablePath, configPath string, timeout time.Duration) (StartState, error) {
	if client.Ping(ctx, time.Second) == nil {
		return StartStateAlreadyRunning, nil
	}
	if err := Launch(executablePath, configPath); err != nil {
		return "", err
	}
	if err := WaitForClient(ctx, client, timeout); err != nil {
		return "", err
	}
	return StartStateStarted, nil
}

// Stop sends SIGTERM to the daemon recorded in the pid file and escalates to
// SIGKILL when it is still alive after grace.
func Stop(ctx context.Context, cfg *config.Config, grace time.Duration) (StopResult, error) {
	pid := daemonrun.ReadPID(cfg)
	if pid <= 0 || !alive(pid) {
		return StopResult{}, ErrDaemonNotRunning
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return StopResult{}, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return StopResult{}, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}

	result := StopResult{PID: pid}
	if waitExit(ctx, pid, grace) {
		return result, nil
	}
	if err := proc.Kill(); err != nil {
		return result, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	result.ForcedKill = true
	pidPath := filepath.Join(cfg.Paths.DataDir, daemonrun.PIDFileName)
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return result, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	return result, nil
}

func waitExit(ctx context.Context, pid int, grace time.Duration) bool {
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !alive(pid) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(pollInterval):
		}
	}
	return !alive(pid)
}

func alive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
