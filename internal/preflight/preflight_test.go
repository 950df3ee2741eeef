package preflight_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"folio/internal/preflight"
	"folio/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := preflight.CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := preflight.CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := preflight.CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := preflight.CheckFreeSpace("space", dir, 1); !result.Passed {
		t.Fatalf("expected pass with 1 byte required, got: %s", result.Detail)
	}
	if result := preflight.CheckFreeSpace("space", dir, ^uint64(0)); result.Passed {
		t.Fatal("expected failure when requiring all addressable bytes")
	}
}

func TestEnsureWritable(t *testing.T) {
	dir := t.TempDir()
	if err := preflight.EnsureWritable(dir, 0); err != nil {
		t.Fatalf("EnsureWritable: %v", err)
	}
	err := preflight.EnsureWritable(dir, ^uint64(0)>>1)
	if !errors.Is(err, preflight.ErrInsufficientSpace) {
		t.Fatalf("expected ErrInsufficientSpace, got %v", err)
	}
	if err := preflight.EnsureWritable(filepath.Join(dir, "missing"), 0); err == nil {
		t.Fatal("expected error for missing dir")
	}
}

func TestRunAllChecksConfiguredDirectories(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Import.Watch = true
	results := preflight.RunAll(cfg)
	names := map[string]bool{}
	for _, r := range results {
		names[r.Name] = true
	}
	for _, want := range []string{"Library directory", "Data directory", "Import directory", "Export directory"} {
		if !names[want] {
			t.Fatalf("missing check %q in %+v", want, results)
		}
	}
	if failed := preflight.Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}
