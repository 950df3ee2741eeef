package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Type tags a container format.
type Type string

const (
	TypeCBZ Type = "cbz"
	TypeCBR Type = "cbr"
	TypeCB7 Type = "cb7"
)

var (
	ErrUnknownFormat  = errors.New("unknown archive format")
	ErrEntryNotFound  = errors.New("archive entry not found")
	ErrNoImages       = errors.New("archive contains no images")
	ErrReadOnlyFormat = errors.New("archive format is read-only")
)

var magics = []struct {
	prefix []byte
	typ    Type
}{
	{[]byte("PK\x03\x04"), TypeCBZ},
	{[]byte("PK\x05\x06"), TypeCBZ},
	{[]byte("Rar!\x1a\x07"), TypeCBR},
	{[]byte("7z\xbc\xaf\x27\x1c"), TypeCB7},
}

// ParseType validates a type name such as "cbz" or ".CBR".
func ParseType(value string) (Type, error) {
	t := Type(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(value)), "."))
	switch t {
	case TypeCBZ, TypeCBR, TypeCB7:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, value)
}

// Extension returns the canonical file extension including the dot.
func (t Type) Extension() string {
	return "." + string(t)
}

// DetectType identifies the container of path from its leading bytes.
func DetectType(path string) (Type, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	head := make([]byte, 8)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	return DetectBytes(head[:n])
}

// DetectBytes identifies the container from a header slice.
func DetectBytes(head []byte) (Type, error) {
	for _, m := range magics {
		if bytes.HasPrefix(head, m.prefix) {
			return m.typ, nil
		}
	}
	return "", ErrUnknownFormat
}

// Writable reports whether folio can save archives of type t.
func (t Type) Writable() bool {
	return t == TypeCBZ
}
