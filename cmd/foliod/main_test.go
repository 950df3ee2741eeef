package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigAppliesEnvFile(t *testing.T) {
	dir := t.TempDir()
	library := filepath.Join(dir, "library")
	envFile := filepath.Join(dir, "folio.env")
	require.NoError(t, os.WriteFile(envFile, []byte("FOLIO_PATHS_LIBRARY_DIR="+library+"\nFOLIO_WORKFLOW_WORKER_COUNT=3\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("FOLIO_PATHS_LIBRARY_DIR")
		os.Unsetenv("FOLIO_WORKFLOW_WORKER_COUNT")
	})

	cfg, err := loadConfig(envFile, filepath.Join(dir, "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, library, cfg.Paths.LibraryDir)
	assert.Equal(t, 3, cfg.Workflow.WorkerCount)
}

func TestLoadConfigToleratesMissingEnvFile(t *testing.T) {
	dir := t.TempDir()
	_, err := loadConfig(filepath.Join(dir, "absent.env"), filepath.Join(dir, "missing.toml"))
	require.NoError(t, err)
}
