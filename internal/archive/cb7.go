package archive

import (
	"fmt"

	"github.com/bodgit/sevenzip"
)

// NewCB7 returns the read-only 7z container adapter.
func NewCB7() Adapter {
	return reader{typ: TypeCB7, walk: walk7z}
}

func walk7z(path string, visit visitFunc) error {
	zr, err := sevenzip.OpenReader(path)
	if err != nil {
		return err
	}
	defer zr.Close()
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("open %s: %w", f.Name, err)
		}
		err = visit(f.Name, rc)
		_ = rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
