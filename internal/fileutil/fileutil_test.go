package fileutil_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"folio/internal/fileutil"
	"folio/internal/hashing"
)

func TestWriteAtomicReplacesTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out.cbz")
	if err := os.WriteFile(target, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := fileutil.WriteAtomic(target, 0o644, func(w io.Writer) error {
		_, err := w.Write([]byte("new"))
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new" {
		t.Fatalf("content = %q, want new", got)
	}
}

func TestWriteAtomicKeepsTargetOnFailure(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out.cbz")
	if err := os.WriteFile(target, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := fileutil.WriteAtomic(target, 0o644, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	got, _ := os.ReadFile(target)
	if string(got) != "old" {
		t.Fatalf("content = %q, want old", got)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected temp file cleanup, found %d entries", len(entries))
	}
}

func TestCopyVerified(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	if err := os.WriteFile(src, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}
	h, _ := hashing.New("md5")

	sum, err := fileutil.CopyVerified(src, dst, h)
	if err != nil {
		t.Fatal(err)
	}
	if want := h.Hash([]byte("hello world")); sum != want {
		t.Fatalf("sum = %s, want %s", sum, want)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello world" {
		t.Fatalf("content mismatch: %q", got)
	}

	if _, err := fileutil.CopyVerified(filepath.Join(dir, "missing"), dst, h); err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestRemoveIfExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.cbz")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	removed, err := fileutil.RemoveIfExists(fileutil.OS{}, path)
	if err != nil || !removed {
		t.Fatalf("first remove = %v, %v", removed, err)
	}
	removed, err = fileutil.RemoveIfExists(fileutil.OS{}, path)
	if err != nil || removed {
		t.Fatalf("second remove = %v, %v; missing file should count as removed", removed, err)
	}
}

func TestNumberedPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Saga 001.cbz")
	want := filepath.Join(dir, "Saga 001 (2).cbz")
	if got := fileutil.NumberedPath(path, 2); got != want {
		t.Fatalf("numbered path = %s, want %s", got, want)
	}
}
