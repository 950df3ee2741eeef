package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"time"

	"folio/internal/fileutil"
)

type cbz struct {
	reader
}

// NewCBZ returns the zip container adapter.
func NewCBZ() Adapter {
	return cbz{reader{typ: TypeCBZ, walk: walkZip}}
}

func walkZip(path string, visit visitFunc) error {
	zr, err := zip.OpenReader(path)
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

func (c cbz) Save(ctx context.Context, path string, contents *Contents, opts SaveOptions) error {
	names := contents.PageNames(opts)
	modified := time.Now()
	return fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		zw := zip.NewWriter(w)
		write := func(name string, data []byte, method uint16) error {
			fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method, Modified: modified})
			if err != nil {
				return fmt.Errorf("create %s: %w", name, err)
			}
			if _, err := fw.Write(data); err != nil {
				return fmt.Errorf("write %s: %w", name, err)
			}
			return nil
		}
		for i, page := range contents.Pages {
			if err := ctx.Err(); err != nil {
				return err
			}
			// Images are already compressed.
			if err := write(names[i], page.Data, zip.Store); err != nil {
				return err
			}
		}
		for _, extra := range contents.Extra {
			if err := write(extra.Name, extra.Data, zip.Deflate); err != nil {
				return err
			}
		}
		if contents.Metadata != nil {
			data, err := contents.Metadata.Marshal()
			if err != nil {
				return err
			}
			if err := write(ComicInfoName, data, zip.Deflate); err != nil {
				return err
			}
		}
		return zw.Close()
	})
}
