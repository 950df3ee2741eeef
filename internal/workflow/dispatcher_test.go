package workflow_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/queue"
	"folio/internal/task"
	"folio/internal/testsupport"
)

const waitTimeout = 10 * time.Second

// journal records the order seq jobs ran in.
type journal struct {
	mu   sync.Mutex
	seqs []int64
}

func (j *journal) add(seq int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.seqs = append(j.seqs, seq)
}

func (j *journal) snapshot() []int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]int64(nil), j.seqs...)
}

type seqJob struct {
	seq int64
	log *journal
}

func (j seqJob) Kind() string        { return "seq" }
func (j seqJob) Description() string { return "seq" }
func (j seqJob) SerialKey() string   { return fmt.Sprintf("seq:%d", j.seq) }

func (j seqJob) Run(context.Context, *task.Env) error {
	j.log.add(j.seq)
	return nil
}

func withSeqJobs(log *journal) testsupport.PipelineOption {
	return testsupport.WithRegistry(func(reg *task.Registry) {
		task.Register(reg, "seq",
			func(j seqJob) queue.Properties {
				return new(task.Builder).Int64("seq", j.seq).Properties()
			},
			func(_ context.Context, p task.Props) (seqJob, error) {
				seq, err := p.Int64("seq")
				return seqJob{seq: seq, log: log}, err
			})
	})
}

func seqJobs(log *journal, seqs ...int64) []task.Job {
	jobs := make([]task.Job, len(seqs))
	for i, seq := range seqs {
		jobs[i] = seqJob{seq: seq, log: log}
	}
	return jobs
}

type lookupJob struct {
	comicID int64
}

func (j lookupJob) Kind() string                         { return "lookup" }
func (j lookupJob) Description() string                  { return "lookup" }
func (j lookupJob) SerialKey() string                    { return fmt.Sprintf("comic:%d", j.comicID) }
func (j lookupJob) Run(context.Context, *task.Env) error { return nil }

// withLookup registers the lookup codec. While outages is positive each decode
// reads the catalog with a cancelled context.
func withLookup(outages *atomic.Int32) testsupport.PipelineOption {
	return testsupport.WithRegistry(func(reg *task.Registry) {
		task.Register(reg, "lookup",
			func(j lookupJob) queue.Properties {
				return new(task.Builder).Int64("comic_id", j.comicID).Properties()
			},
			func(ctx context.Context, p task.Props) (lookupJob, error) {
				if outages.Add(-1) >= 0 {
					down, cancel := context.WithCancel(ctx)
					cancel()
					ctx = down
				}
				id, err := p.ComicID(ctx, "comic_id")
				return lookupJob{comicID: id}, err
			})
	})
}

func listRecords(t *testing.T, p *testsupport.Pipeline) []queue.Record {
	t.Helper()
	recs, err := p.Queue.List(context.Background(), queue.ListFilter{})
	require.NoError(t, err)
	return recs
}

func TestRunOnceIsolatesMalformedRecords(t *testing.T) {
	log := &journal{}
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1, 8))
	cfg.Workflow.BatchSize = 8
	p := testsupport.NewPipeline(t, cfg, withSeqJobs(log))
	ctx := context.Background()

	p.Enqueue(t, seqJobs(log, 1)...)
	broken, err := p.Queue.Enqueue(ctx, queue.Record{
		Type:       "rescan",
		Properties: queue.Properties{{Key: "comic_id", Value: "not-a-number"}},
	})
	require.NoError(t, err)
	p.Enqueue(t, seqJobs(log, 2)...)
	unknown, err := p.Queue.Enqueue(ctx, queue.Record{Type: "mystery"})
	require.NoError(t, err)
	p.Enqueue(t, seqJobs(log, 3)...)

	res, err := p.Dispatcher.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Claimed)
	assert.Equal(t, 3, res.Submitted)
	assert.Equal(t, 2, res.DecodeFailed)
	assert.False(t, res.Full)

	for _, id := range []int64{broken.ID, unknown.ID} {
		rec, err := p.Queue.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.True(t, rec.Failed(), "record %d should be failed", id)
		assert.NotEmpty(t, rec.LastError)
	}

	p.Start(t)
	p.Drain(t, waitTimeout)
	assert.Equal(t, []int64{1, 2, 3}, log.snapshot())
	assert.Len(t, listRecords(t, p), 2)
}

func TestRunOnceReleasesRecordWhenCatalogLookupFails(t *testing.T) {
	var outages atomic.Int32
	outages.Store(1)
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1, 8))
	p := testsupport.NewPipeline(t, cfg, withLookup(&outages))
	ctx := context.Background()

	comic := testsupport.NewComic(t, p.Catalog, filepath.Join(cfg.Paths.LibraryDir, "a.cbz"))
	recs := p.Enqueue(t, lookupJob{comicID: comic.ID})
	require.Len(t, recs, 1)

	res, err := p.Dispatcher.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Claimed)
	assert.Equal(t, 1, res.Deferred)
	assert.Zero(t, res.DecodeFailed)
	assert.Zero(t, res.Submitted)
	assert.False(t, res.Full)

	rec, err := p.Queue.Get(ctx, recs[0].ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.False(t, rec.Failed())
	assert.Empty(t, rec.ClaimedBy)
	assert.Empty(t, rec.LastError)
	assert.EqualValues(t, 1, p.Dispatcher.Status(ctx).Stats.Deferred)

	p.Start(t)
	p.Drain(t, waitTimeout)
	assert.Empty(t, listRecords(t, p))
}

func TestRunOnceFailsRecordForMissingComic(t *testing.T) {
	var outages atomic.Int32
	p := testsupport.NewPipeline(t, testsupport.NewConfig(t), withLookup(&outages))
	ctx := context.Background()

	recs := p.Enqueue(t, lookupJob{comicID: 404})
	res, err := p.Dispatcher.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DecodeFailed)
	assert.Zero(t, res.Deferred)

	rec, err := p.Queue.Get(ctx, recs[0].ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Failed())
	assert.Contains(t, rec.LastError, "no longer exists")
}

func TestRunOnceClaimsNoMoreThanCapacity(t *testing.T) {
	log := &journal{}
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1, 2))
	p := testsupport.NewPipeline(t, cfg, withSeqJobs(log))
	ctx := context.Background()
	p.Enqueue(t, seqJobs(log, 1, 2, 3, 4, 5)...)

	res, err := p.Dispatcher.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Claimed)
	assert.True(t, res.Full)
	assert.Equal(t, 0, p.Runtime.Capacity())

	res, err = p.Dispatcher.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Claimed)
	assert.False(t, res.Full)

	counts, err := p.Queue.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Claimed)
	assert.Equal(t, 3, counts.Pending)
}

func TestRunOnceProcessesInQueueOrder(t *testing.T) {
	log := &journal{}
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1, 16))
	p := testsupport.NewPipeline(t, cfg, withSeqJobs(log))
	p.Start(t)

	p.Enqueue(t, seqJobs(log, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)...)
	p.Drain(t, waitTimeout)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, log.snapshot())
	assert.Empty(t, listRecords(t, p))
}

func TestStartDrainsEnqueuedWork(t *testing.T) {
	log := &journal{}
	p := testsupport.NewPipeline(t, testsupport.NewConfig(t), withSeqJobs(log))
	p.Start(t)
	ctx := context.Background()

	require.NoError(t, p.Dispatcher.Start(ctx))
	t.Cleanup(p.Dispatcher.Stop)
	assert.Error(t, p.Dispatcher.Start(ctx), "second start is rejected")

	p.Enqueue(t, seqJobs(log, 1, 2, 3)...)
	require.Eventually(t, func() bool {
		return len(listRecords(t, p)) == 0 && !p.Runtime.Busy()
	}, waitTimeout, 10*time.Millisecond)
	assert.ElementsMatch(t, []int64{1, 2, 3}, log.snapshot())

	status := p.Dispatcher.Status(ctx)
	assert.True(t, status.Running)
	assert.Equal(t, p.Dispatcher.Owner(), status.Owner)
	assert.Contains(t, status.Owner, "dispatcher-")
	assert.GreaterOrEqual(t, status.Stats.Submitted, int64(3))
	assert.Empty(t, status.LastError)
	assert.Zero(t, status.Outstanding)

	p.Dispatcher.Stop()
	assert.False(t, p.Dispatcher.Status(ctx).Running)
}

func TestEnqueueRaisesSignal(t *testing.T) {
	log := &journal{}
	p := testsupport.NewPipeline(t, testsupport.NewConfig(t), withSeqJobs(log))
	signal := p.Runtime.Signal()
	before := signal.Generation()

	recs := p.Enqueue(t, seqJobs(log, 7)...)
	require.Len(t, recs, 1)
	assert.Equal(t, "seq", recs[0].Type)
	assert.Greater(t, signal.Generation(), before)

	status := p.Dispatcher.Status(context.Background())
	assert.Equal(t, 1, status.Queue.Pending)
}
