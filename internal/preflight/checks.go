package preflight

import (
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"
)

// ErrInsufficientSpace reports a target filesystem below the required free space.
var ErrInsufficientSpace = errors.New("insufficient free space")

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if err := accessible(path); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies that the filesystem holding path keeps at least
// required bytes available.
func CheckFreeSpace(name, path string, required uint64) Result {
	free, err := FreeBytes(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if free < required {
		return Result{Name: name, Detail: fmt.Sprintf("%s free, %s required", humanize.IBytes(free), humanize.IBytes(required))}
	}
	return Result{Name: name, Passed: true, Detail: humanize.IBytes(free) + " free"}
}

// FreeBytes returns the space available to unprivileged users on the
// filesystem holding path.
func FreeBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs: %w", err)
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// EnsureWritable fails when dir is not a writable directory or holds less
// than required bytes.
func EnsureWritable(dir string, required uint64) error {
	if err := accessible(dir); err != nil {
		return fmt.Errorf("%s: %w", dir, err)
	}
	free, err := FreeBytes(dir)
	if err != nil {
		return fmt.Errorf("%s: %w", dir, err)
	}
	if free < required {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientSpace, dir, humanize.IBytes(free), humanize.IBytes(required))
	}
	return nil
}

func accessible(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.New("does not exist")
		}
		return fmt.Errorf("stat: %w", err)
	}
	if !info.IsDir() {
		return errors.New("is not a directory")
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf("insufficient permissions: %w", err)
	}
	return nil
}
