package task

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"folio/internal/queue"
)

// Props reads typed values out of a record's property bag. Every accessor
// returns a *DecodeError naming the offending key, except for catalog lookups
// that fail outright, which wrap ErrResolve.
type Props struct {
	rec      queue.Record
	resolver Resolver
}

func (p Props) fail(key, reason string, err error) error {
	return &DecodeError{Kind: p.rec.Type, RecordID: p.rec.ID, Key: key, Reason: reason, Err: err}
}

func (p Props) raw(key string) (string, error) {
	v, ok := p.rec.Properties.Get(key)
	if !ok {
		return "", p.fail(key, "missing", nil)
	}
	return v, nil
}

// String returns a required, non-blank value.
func (p Props) String(key string) (string, error) {
	v, err := p.raw(key)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(v) == "" {
		return "", p.fail(key, "empty", nil)
	}
	return v, nil
}

// Optional returns the value under key or "" when absent.
func (p Props) Optional(key string) string {
	v, _ := p.rec.Properties.Get(key)
	return v
}

// Bool parses a required boolean.
func (p Props) Bool(key string) (bool, error) {
	v, err := p.raw(key)
	if err != nil {
		return false, err
	}
	b, err := cast.ToBoolE(strings.TrimSpace(v))
	if err != nil {
		return false, p.fail(key, "not a boolean", err)
	}
	return b, nil
}

// Int64 parses a required integer.
func (p Props) Int64(key string) (int64, error) {
	v, err := p.raw(key)
	if err != nil {
		return 0, err
	}
	n, err := cast.ToInt64E(strings.TrimSpace(v))
	if err != nil {
		return 0, p.fail(key, "not an integer", err)
	}
	return n, nil
}

// ComicID parses a comic id and checks the comic still exists.
func (p Props) ComicID(ctx context.Context, key string) (int64, error) {
	id, err := p.Int64(key)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, p.fail(key, "comic id must be positive", nil)
	}
	if p.resolver == nil {
		return id, nil
	}
	comic, err := p.resolver.GetComic(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("%w: %s task %d: comic %d: %w", ErrResolve, p.rec.Type, p.rec.ID, id, err)
	}
	if comic == nil {
		return 0, p.fail(key, "comic "+strconv.FormatInt(id, 10)+" no longer exists", nil)
	}
	return id, nil
}

// Builder assembles a property bag in a fixed order.
type Builder struct {
	props queue.Properties
}

func (b *Builder) String(key, value string) *Builder {
	b.props = append(b.props, queue.Property{Key: key, Value: value})
	return b
}

func (b *Builder) Bool(key string, value bool) *Builder {
	return b.String(key, strconv.FormatBool(value))
}

func (b *Builder) Int64(key string, value int64) *Builder {
	return b.String(key, strconv.FormatInt(value, 10))
}

// Properties returns the assembled bag.
func (b *Builder) Properties() queue.Properties {
	return b.props
}

// Invalid reports a present but unusable value under key.
func (p Props) Invalid(key string, err error) error {
	return p.fail(key, "invalid", err)
}
