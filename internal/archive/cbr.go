package archive

import (
	"errors"
	"io"

	"github.com/nwaples/rardecode/v2"
)

// NewCBR returns the read-only RAR container adapter.
func NewCBR() Adapter {
	return reader{typ: TypeCBR, walk: walkRar}
}

func walkRar(path string, visit visitFunc) error {
	rr, err := rardecode.OpenReader(path)
	if err != nil {
		return err
	}
	defer rr.Close()
	for {
		hdr, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if hdr.IsDir {
			continue
		}
		if err := visit(hdr.Name, rr); err != nil {
			return err
		}
	}
}
