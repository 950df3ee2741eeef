package task_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/catalog"
	"folio/internal/queue"
	"folio/internal/task"
)

type echoJob struct {
	ComicID int64
	Note    string
	Loud    bool
}

func (j echoJob) Kind() string                         { return "echo" }
func (j echoJob) Description() string                  { return "echo " + j.Note }
func (j echoJob) SerialKey() string                    { return j.Note }
func (j echoJob) Run(context.Context, *task.Env) error { return nil }

type fakeResolver map[int64]*catalog.Comic

func (f fakeResolver) GetComic(_ context.Context, id int64) (*catalog.Comic, error) {
	return f[id], nil
}

type failingResolver struct{ err error }

func (f failingResolver) GetComic(context.Context, int64) (*catalog.Comic, error) {
	return nil, f.err
}

func newRegistry() *task.Registry {
	reg := task.NewRegistry(fakeResolver{7: {ID: 7, Filename: "/lib/a.cbz"}})
	task.Register(reg, "echo",
		func(j echoJob) queue.Properties {
			return new(task.Builder).
				Int64("comic_id", j.ComicID).
				String("note", j.Note).
				Bool("loud", j.Loud).
				Properties()
		},
		func(ctx context.Context, p task.Props) (echoJob, error) {
			id, err := p.ComicID(ctx, "comic_id")
			if err != nil {
				return echoJob{}, err
			}
			note, err := p.String("note")
			if err != nil {
				return echoJob{}, err
			}
			loud, err := p.Bool("loud")
			if err != nil {
				return echoJob{}, err
			}
			return echoJob{ComicID: id, Note: note, Loud: loud}, nil
		})
	return reg
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	reg := newRegistry()
	original := echoJob{ComicID: 7, Note: "hello", Loud: true}

	rec, err := reg.Encode(original)
	require.NoError(t, err)
	assert.Equal(t, "echo", rec.Type)
	assert.Equal(t, queue.Properties{
		{Key: "comic_id", Value: "7"},
		{Key: "note", Value: "hello"},
		{Key: "loud", Value: "true"},
	}, rec.Properties)

	decoded, err := reg.Decode(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
	assert.Equal(t, []string{"echo"}, reg.Kinds())
}

func TestDecodeUnknownType(t *testing.T) {
	reg := newRegistry()
	_, err := reg.Decode(context.Background(), queue.Record{ID: 3, Type: "mystery"})
	assert.ErrorIs(t, err, task.ErrUnknownTaskType)

	_, err = reg.Encode(otherJob{})
	assert.ErrorIs(t, err, task.ErrUnknownTaskType)
}

type otherJob struct{ echoJob }

func (otherJob) Kind() string { return "other" }

func TestDecodeErrorsNameTheProperty(t *testing.T) {
	reg := newRegistry()
	cases := []struct {
		name  string
		props queue.Properties
		key   string
	}{
		{"missing", queue.Properties{{Key: "comic_id", Value: "7"}, {Key: "note", Value: "x"}}, "loud"},
		{"malformed bool", queue.Properties{{Key: "comic_id", Value: "7"}, {Key: "note", Value: "x"}, {Key: "loud", Value: "maybe"}}, "loud"},
		{"malformed id", queue.Properties{{Key: "comic_id", Value: "seven"}}, "comic_id"},
		{"dangling comic", queue.Properties{{Key: "comic_id", Value: "8"}}, "comic_id"},
		{"blank string", queue.Properties{{Key: "comic_id", Value: "7"}, {Key: "note", Value: "  "}}, "note"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := reg.Decode(context.Background(), queue.Record{ID: 11, Type: "echo", Properties: tc.props})
			var decodeErr *task.DecodeError
			require.True(t, errors.As(err, &decodeErr), "got %v", err)
			assert.Equal(t, tc.key, decodeErr.Key)
			assert.EqualValues(t, 11, decodeErr.RecordID)
			assert.Contains(t, err.Error(), tc.key)
		})
	}
}

func TestComicLookupFailureIsRetryable(t *testing.T) {
	reg := newRegistry()
	codecs := task.NewRegistry(failingResolver{err: errors.New("database is locked")})
	task.Register(codecs, "echo",
		func(j echoJob) queue.Properties {
			return new(task.Builder).Int64("comic_id", j.ComicID).Properties()
		},
		func(ctx context.Context, p task.Props) (echoJob, error) {
			id, err := p.ComicID(ctx, "comic_id")
			return echoJob{ComicID: id}, err
		})

	_, err := codecs.Decode(context.Background(), queue.Record{ID: 12, Type: "echo", Properties: queue.Properties{{Key: "comic_id", Value: "7"}}})
	require.Error(t, err)
	assert.ErrorIs(t, err, task.ErrResolve)
	assert.Contains(t, err.Error(), "database is locked")
	var decodeErr *task.DecodeError
	assert.False(t, errors.As(err, &decodeErr))

	_, err = reg.Decode(context.Background(), queue.Record{ID: 13, Type: "echo", Properties: queue.Properties{{Key: "comic_id", Value: "8"}}})
	assert.False(t, errors.Is(err, task.ErrResolve))
	assert.True(t, errors.As(err, &decodeErr))
}

func TestAsJobErrorWrapsOnce(t *testing.T) {
	base := errors.New("disk on fire")
	err := task.AsJobError(echoJob{Note: "n"}, base)
	var je *task.JobError
	require.True(t, errors.As(err, &je))
	assert.Equal(t, "echo", je.Kind)
	assert.ErrorIs(t, err, base)
	assert.Same(t, je, errorsAsJob(t, task.AsJobError(echoJob{}, err)))
	assert.NoError(t, task.AsJobError(echoJob{}, nil))
}

func errorsAsJob(t *testing.T, err error) *task.JobError {
	t.Helper()
	var je *task.JobError
	require.True(t, errors.As(err, &je))
	return je
}
