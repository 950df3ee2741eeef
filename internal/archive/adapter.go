package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Adapter is the container collaborator for one archive Type.
type Adapter interface {
	Type() Type
	// Load reads every entry of the archive at path.
	Load(ctx context.Context, path string) (*Contents, error)
	// FirstImageEntryName returns the name of the cover page.
	FirstImageEntryName(path string) (string, error)
	// LoadSingleEntry returns the bytes of one named entry.
	LoadSingleEntry(path, name string) ([]byte, error)
	// Save writes contents to path, replacing any existing file atomically.
	Save(ctx context.Context, path string, contents *Contents, opts SaveOptions) error
}

// visitFunc receives each file entry. Returning errStop ends the walk early.
type visitFunc func(name string, r io.Reader) error

type walkFunc func(path string, visit visitFunc) error

var errStop = errors.New("stop walk")

// reader implements the read side of Adapter on top of a walkFunc.
type reader struct {
	typ  Type
	walk walkFunc
}

func (r reader) Type() Type { return r.typ }

func (r reader) Load(ctx context.Context, path string) (*Contents, error) {
	contents := &Contents{}
	err := r.walkPath(path, func(name string, rd io.Reader) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := io.ReadAll(rd)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		switch {
		case isComicInfo(name):
			info, err := ParseComicInfo(data)
			if err != nil {
				// Broken metadata is kept verbatim and ignored.
				contents.Extra = append(contents.Extra, Entry{Name: name, Data: data})
				return nil
			}
			contents.Metadata = info
		case IsImage(name):
			contents.Pages = append(contents.Pages, Entry{Name: name, Data: data})
		default:
			contents.Extra = append(contents.Extra, Entry{Name: name, Data: data})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortEntries(contents.Pages)
	return contents, nil
}

func (r reader) FirstImageEntryName(path string) (string, error) {
	var names []string
	err := r.walkPath(path, func(name string, _ io.Reader) error {
		if IsImage(name) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", ErrNoImages
	}
	SortNatural(names)
	return names[0], nil
}

func (r reader) LoadSingleEntry(path, name string) ([]byte, error) {
	var data []byte
	err := r.walkPath(path, func(entry string, rd io.Reader) error {
		if entry != name {
			return nil
		}
		var err error
		if data, err = io.ReadAll(rd); err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		return errStop
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	return data, nil
}

func (r reader) Save(context.Context, string, *Contents, SaveOptions) error {
	return fmt.Errorf("%w: %s", ErrReadOnlyFormat, r.typ)
}

func (r reader) walkPath(path string, visit visitFunc) error {
	err := r.walk(path, visit)
	if errors.Is(err, errStop) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", r.typ, path, err)
	}
	return nil
}

// Registry selects adapters by Type.
type Registry struct {
	adapters map[Type]Adapter
}

// NewRegistry returns a registry holding the built-in adapters.
func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[Type]Adapter)}
	r.Register(NewCBZ())
	r.Register(NewCBR())
	r.Register(NewCB7())
	return r
}

// Register installs or replaces the adapter for a.Type().
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Type()] = a
}

// For returns the adapter for t.
func (r *Registry) For(t Type) (Adapter, error) {
	a, ok := r.adapters[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, t)
	}
	return a, nil
}

// ForFile detects the type of path and returns its adapter.
func (r *Registry) ForFile(path string) (Adapter, error) {
	t, err := DetectType(path)
	if err != nil {
		return nil, err
	}
	return r.For(t)
}
