package task

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"folio/internal/catalog"
	"folio/internal/queue"
)

// Job is an executable unit of pipeline work.
type Job interface {
	// Kind is the task type tag persisted with the record.
	Kind() string
	// Description is a human-readable summary for logs and listings.
	Description() string
	// SerialKey identifies the resource the job mutates. Jobs sharing a key
	// never run concurrently.
	SerialKey() string
	Run(ctx context.Context, env *Env) error
}

// Resolver gives decoders read access to the catalog.
type Resolver interface {
	GetComic(ctx context.Context, id int64) (*catalog.Comic, error)
}

type codec struct {
	encode func(Job) (queue.Properties, error)
	decode func(context.Context, Props) (Job, error)
}

// Registry maps job kinds to codecs.
type Registry struct {
	mu       sync.RWMutex
	codecs   map[string]codec
	resolver Resolver
}

// NewRegistry returns an empty registry that resolves references through r.
func NewRegistry(r Resolver) *Registry {
	return &Registry{codecs: make(map[string]codec), resolver: r}
}

// Register installs the codec for kind. encode flattens a job into properties;
// decode rebuilds it. Registering a kind twice replaces the codec.
func Register[J Job](r *Registry, kind string, encode func(J) queue.Properties, decode func(context.Context, Props) (J, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[kind] = codec{
		encode: func(job Job) (queue.Properties, error) {
			typed, ok := job.(J)
			if !ok {
				return nil, fmt.Errorf("codec %s cannot encode %T", kind, job)
			}
			return encode(typed), nil
		},
		decode: func(ctx context.Context, p Props) (Job, error) {
			job, err := decode(ctx, p)
			if err != nil {
				return nil, err
			}
			return job, nil
		},
	}
}

func (r *Registry) lookup(kind string) (codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[kind]
	return c, ok
}

// Kinds lists registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.codecs))
	for kind := range r.codecs {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// Encode turns job into an unsaved record tagged with its kind.
func (r *Registry) Encode(job Job) (queue.Record, error) {
	c, ok := r.lookup(job.Kind())
	if !ok {
		return queue.Record{}, fmt.Errorf("%w: %q", ErrUnknownTaskType, job.Kind())
	}
	props, err := c.encode(job)
	if err != nil {
		return queue.Record{}, err
	}
	return queue.Record{Type: job.Kind(), Properties: props}, nil
}

// Decode rebuilds the job stored in rec. It returns ErrUnknownTaskType for an
// unregistered kind and *DecodeError for malformed or dangling properties.
// Errors wrapping ErrResolve are transient.
func (r *Registry) Decode(ctx context.Context, rec queue.Record) (Job, error) {
	c, ok := r.lookup(rec.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q (task %d)", ErrUnknownTaskType, rec.Type, rec.ID)
	}
	return c.decode(ctx, Props{rec: rec, resolver: r.resolver})
}

// Enqueue encodes job and stores it through q.
func (r *Registry) Enqueue(ctx context.Context, q *queue.Store, job Job) (queue.Record, error) {
	rec, err := r.Encode(job)
	if err != nil {
		return queue.Record{}, err
	}
	return q.Enqueue(ctx, rec)
}
