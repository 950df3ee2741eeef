package testsupport

import (
	"path/filepath"
	"testing"

	"folio/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.LibraryDir = filepath.Join(base, "library")
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ImportDir = filepath.Join(base, "import")
	cfgVal.Paths.ExportDir = filepath.Join(base, "export")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Workflow.WorkerCount = 2
	cfgVal.Workflow.BatchSize = 4
	cfgVal.Workflow.MaxBacklog = 8
	cfgVal.Workflow.PollInterval = 1
	cfgVal.Workflow.StatusWaitTimeout = 1

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithWorkers overrides the worker pool size and backlog.
func WithWorkers(workers, backlog int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.WorkerCount = workers
		b.cfg.Workflow.MaxBacklog = backlog
	}
}

// WithHashAlgorithm selects the content hash.
func WithHashAlgorithm(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Hashing.Algorithm = name
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LibraryDir)
}
