package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/api"
	"folio/internal/testsupport"
)

// writeConfig stores a test config on disk and returns its path.
func writeConfig(t *testing.T) string {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	data, err := cfg.Encode()
	require.NoError(t, err)
	path := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigInitRefusesToOverwrite(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	out, err := runCLI(t, "config", "init", "--path", target)
	require.NoError(t, err)
	assert.Contains(t, out, target)
	assert.FileExists(t, target)

	_, err = runCLI(t, "config", "init", "--path", target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--overwrite")

	_, err = runCLI(t, "config", "init", "--path", target, "--overwrite")
	require.NoError(t, err)
}

func TestConfigShowPrintsEffectiveConfig(t *testing.T) {
	cfgPath := writeConfig(t)
	t.Setenv("FOLIO_WORKFLOW_WORKER_COUNT", "5")

	out, err := runCLI(t, "--config", cfgPath, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "library_dir")
	assert.Contains(t, out, "worker_count = 5")
}

func TestImportFallsBackToDatabaseWhenDaemonIsDown(t *testing.T) {
	cfgPath := writeConfig(t)
	archive := filepath.Join(t.TempDir(), "Akira 01.cbz")

	out, err := runCLI(t, "--config", cfgPath, "import", archive, "--ignore-metadata")
	require.NoError(t, err)
	assert.Contains(t, out, "Queued task 1")
	assert.Contains(t, out, "Daemon not running")

	out, err = runCLI(t, "--config", cfgPath, "queue", "list", "--json")
	require.NoError(t, err)
	var records []api.TaskRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	assert.Equal(t, archive, records[0].Properties["path"])
	assert.Equal(t, "true", records[0].Properties["ignore_metadata"])
	assert.Equal(t, "pending", records[0].State)

	out, err = runCLI(t, "--config", cfgPath, "queue", "health")
	require.NoError(t, err)
	assert.Contains(t, out, "pending")

	out, err = runCLI(t, "--config", cfgPath, "queue", "remove", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 1 record(s)")

	out, err = runCLI(t, "--config", cfgPath, "queue", "list")
	require.NoError(t, err)
	assert.Equal(t, "Queue is empty", strings.TrimSpace(out))
}

func TestComicCommandsNeedTheDaemon(t *testing.T) {
	cfgPath := writeConfig(t)

	_, err := runCLI(t, "--config", cfgPath, "comic", "rescan", "7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "folio start")

	_, err = runCLI(t, "--config", cfgPath, "comic", "rescan", "seven")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid id")
}

func TestStatusReportsOfflineDaemon(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := runCLI(t, "--config", cfgPath, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "stopped")
	assert.Contains(t, out, "0 pending")
	assert.Contains(t, out, "Library directory")
}

func TestStopWithoutDaemon(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := runCLI(t, "--config", cfgPath, "stop")
	require.NoError(t, err)
	assert.Contains(t, out, "Daemon is not running")

	out, err = runCLI(t, "--config", cfgPath, "config", "test-notify")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to send")
}
