package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateArchive(); err != nil {
		return err
	}
	if err := c.validateHashing(); err != nil {
		return err
	}
	if c.Notifications.NtfyTopic != "" && c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.LibraryDir == "" {
		return errors.New("paths.library_dir must be set")
	}
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Import.Watch && c.Paths.ImportDir == "" {
		return errors.New("paths.import_dir must be set when import.watch is true")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.worker_count":         c.Workflow.WorkerCount,
		"workflow.batch_size":           c.Workflow.BatchSize,
		"workflow.max_backlog":          c.Workflow.MaxBacklog,
		"workflow.poll_interval":        c.Workflow.PollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"workflow.lease_duration":       c.Workflow.LeaseDuration,
		"workflow.heartbeat_interval":   c.Workflow.HeartbeatInterval,
		"workflow.status_wait_timeout":  c.Workflow.StatusWaitTimeout,
	}); err != nil {
		return err
	}
	if c.Workflow.LeaseDuration <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.lease_duration must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateArchive() error {
	switch c.Archive.DefaultTarget {
	case "cbz":
		return nil
	default:
		return fmt.Errorf("archive.default_target: unsupported value %q (only cbz is writable)", c.Archive.DefaultTarget)
	}
}

func (c *Config) validateHashing() error {
	switch c.Hashing.Algorithm {
	case "md5", "xxhash":
		return nil
	default:
		return fmt.Errorf("hashing.algorithm: unsupported value %q", c.Hashing.Algorithm)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", strings.TrimSpace(key))
		}
	}
	return nil
}
