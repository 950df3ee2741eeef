// Package fileutil holds the filesystem collaborator used by pipeline jobs.
package fileutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"folio/internal/hashing"
)

// FS is the set of file operations jobs perform on library files.
type FS interface {
	Stat(path string) (fs.FileInfo, error)
	Remove(path string) error
	Rename(from, to string) error
}

// OS implements FS on the local filesystem.
type OS struct{}

func (OS) Stat(path string) (fs.FileInfo, error) { return os.Stat(path) }
func (OS) Remove(path string) error              { return os.Remove(path) }
func (OS) Rename(from, to string) error          { return os.Rename(from, to) }

// RemoveIfExists deletes path. A missing file counts as removed and reports
// false.
func RemoveIfExists(fsys FS, path string) (bool, error) {
	if err := fsys.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// WriteAtomic writes path through a temporary sibling that is renamed into
// place only after write succeeds and the data is synced.
func WriteAtomic(path string, mode os.FileMode, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

// CopyVerified streams src to dst and checks that size and digest of both
// sides match. dst is removed on mismatch. The digest is returned.
func CopyVerified(src, dst string, h hashing.Hasher) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("stat source: %w", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	var srcSum string
	err = WriteAtomic(dst, 0o644, func(w io.Writer) error {
		pr, pw := io.Pipe()
		done := make(chan error, 1)
		go func() {
			sum, hashErr := h.HashReader(pr)
			srcSum = sum
			_ = pr.CloseWithError(hashErr)
			done <- hashErr
		}()
		written, copyErr := io.Copy(io.MultiWriter(w, pw), in)
		_ = pw.CloseWithError(copyErr)
		if hashErr := <-done; copyErr == nil {
			copyErr = hashErr
		}
		if copyErr != nil {
			return copyErr
		}
		if written != info.Size() {
			return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", info.Size(), written)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	dstSum, _, err := hashing.HashFile(h, dst)
	if err != nil {
		return "", err
	}
	if dstSum != srcSum {
		_ = os.Remove(dst)
		return "", errors.New("copy hash mismatch: file corrupted during copy")
	}
	return dstSum, nil
}

// NumberedPath returns the "name (n).ext" sibling of path.
func NumberedPath(path string, n int) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + " (" + strconv.Itoa(n) + ")" + ext
}
