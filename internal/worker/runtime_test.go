package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/catalog"
	"folio/internal/queue"
	"folio/internal/task"
	"folio/internal/testsupport"
	"folio/internal/worker"
)

const waitTimeout = 10 * time.Second

// tracker observes how tracked jobs overlap.
type tracker struct {
	mu        sync.Mutex
	active    map[string]int
	total     int
	maxTotal  int
	maxPerKey map[string]int
	order     map[string][]int64
	gate      chan struct{}
	hold      time.Duration
}

func newTracker() *tracker {
	return &tracker{
		active:    make(map[string]int),
		maxPerKey: make(map[string]int),
		order:     make(map[string][]int64),
	}
}

func (tr *tracker) enter(key string, seq int64) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.active[key]++
	tr.total++
	tr.maxPerKey[key] = max(tr.maxPerKey[key], tr.active[key])
	tr.maxTotal = max(tr.maxTotal, tr.total)
	tr.order[key] = append(tr.order[key], seq)
}

func (tr *tracker) leave(key string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.active[key]--
	tr.total--
}

type trackedJob struct {
	key string
	seq int64
	tr  *tracker
}

func (j trackedJob) Kind() string        { return "tracked" }
func (j trackedJob) Description() string { return fmt.Sprintf("tracked %s/%d", j.key, j.seq) }
func (j trackedJob) SerialKey() string   { return j.key }

func (j trackedJob) Run(context.Context, *task.Env) error {
	j.tr.enter(j.key, j.seq)
	defer j.tr.leave(j.key)
	if j.tr.gate != nil {
		<-j.tr.gate
	}
	time.Sleep(j.tr.hold)
	return nil
}

type boomJob struct{}

func (boomJob) Kind() string        { return "boom" }
func (boomJob) Description() string { return "boom" }
func (boomJob) SerialKey() string   { return "boom" }
func (boomJob) Run(context.Context, *task.Env) error {
	panic("page table exploded")
}

// twiceJob opens its transaction twice and reports the second outcome.
type twiceJob struct {
	second chan error
}

func (twiceJob) Kind() string        { return "twice" }
func (twiceJob) Description() string { return "twice" }
func (twiceJob) SerialKey() string   { return "twice" }
func (j twiceJob) Run(ctx context.Context, env *task.Env) error {
	noop := func(context.Context, *task.Session) error { return nil }
	if err := env.Tx(ctx, noop); err != nil {
		return err
	}
	j.second <- env.Tx(ctx, noop)
	return nil
}

// createJob inserts a comic inside its transaction.
type createJob struct {
	filename string
}

func (createJob) Kind() string          { return "create" }
func (j createJob) Description() string { return "create " + j.filename }
func (j createJob) SerialKey() string   { return "file:" + j.filename }
func (j createJob) Run(ctx context.Context, env *task.Env) error {
	return env.Tx(ctx, func(ctx context.Context, s *task.Session) error {
		_, err := s.Catalog.CreateComic(ctx, catalog.Comic{Filename: j.filename})
		return err
	})
}

func registerTracked(tr *tracker, second chan error) testsupport.PipelineOption {
	return testsupport.WithRegistry(func(reg *task.Registry) {
		task.Register(reg, "tracked",
			func(j trackedJob) queue.Properties {
				return new(task.Builder).String("key", j.key).Int64("seq", j.seq).Properties()
			},
			func(_ context.Context, p task.Props) (trackedJob, error) {
				key, err := p.String("key")
				if err != nil {
					return trackedJob{}, err
				}
				seq, err := p.Int64("seq")
				if err != nil {
					return trackedJob{}, err
				}
				return trackedJob{key: key, seq: seq, tr: tr}, nil
			})
		task.Register(reg, "boom",
			func(boomJob) queue.Properties { return nil },
			func(context.Context, task.Props) (boomJob, error) { return boomJob{}, nil })
		task.Register(reg, "twice",
			func(twiceJob) queue.Properties { return nil },
			func(context.Context, task.Props) (twiceJob, error) { return twiceJob{second: second}, nil })
		task.Register(reg, "create",
			func(j createJob) queue.Properties {
				return new(task.Builder).String("filename", j.filename).Properties()
			},
			func(_ context.Context, p task.Props) (createJob, error) {
				name, err := p.String("filename")
				return createJob{filename: name}, err
			})
	})
}

// claimItems stores jobs, claims them for owner and decodes them.
func claimItems(t *testing.T, p *testsupport.Pipeline, owner string, jobs ...task.Job) []worker.Item {
	t.Helper()
	ctx := context.Background()
	for _, job := range jobs {
		_, err := p.Registry.Enqueue(ctx, p.Queue, job)
		require.NoError(t, err)
	}
	recs, err := p.Queue.Claim(ctx, owner, len(jobs), time.Minute)
	require.NoError(t, err)
	require.Len(t, recs, len(jobs))
	items := make([]worker.Item, len(recs))
	for i, rec := range recs {
		job, err := p.Registry.Decode(ctx, rec)
		require.NoError(t, err)
		items[i] = worker.Item{Owner: owner, Record: rec, Job: job}
	}
	return items
}

func submitAll(t *testing.T, rt *worker.Runtime, items []worker.Item) {
	t.Helper()
	for _, it := range items {
		require.NoError(t, rt.Submit(it))
	}
}

func TestRuntimeSerializesJobsSharingAKey(t *testing.T) {
	tr := newTracker()
	tr.hold = 20 * time.Millisecond
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(4, 16))
	p := testsupport.NewPipeline(t, cfg, registerTracked(tr, nil))
	p.Start(t)

	var jobs []task.Job
	for i := int64(1); i <= 4; i++ {
		jobs = append(jobs, trackedJob{key: "comic:1", seq: i, tr: tr})
	}
	jobs = append(jobs, trackedJob{key: "comic:2", seq: 1, tr: tr}, trackedJob{key: "comic:3", seq: 1, tr: tr})
	submitAll(t, p.Runtime, claimItems(t, p, "owner-a", jobs...))
	p.WaitIdle(t, waitTimeout)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Equal(t, 1, tr.maxPerKey["comic:1"])
	assert.Equal(t, []int64{1, 2, 3, 4}, tr.order["comic:1"])
	assert.LessOrEqual(t, tr.maxTotal, 4)
	assert.Empty(t, records(t, p))
}

func TestRuntimeBoundsConcurrency(t *testing.T) {
	tr := newTracker()
	tr.hold = 15 * time.Millisecond
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(2, 8))
	p := testsupport.NewPipeline(t, cfg, registerTracked(tr, nil))
	p.Start(t)

	var jobs []task.Job
	for i := int64(0); i < 6; i++ {
		jobs = append(jobs, trackedJob{key: fmt.Sprintf("comic:%d", i), seq: i, tr: tr})
	}
	submitAll(t, p.Runtime, claimItems(t, p, "owner-a", jobs...))
	p.WaitIdle(t, waitTimeout)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.LessOrEqual(t, tr.maxTotal, 2)
	assert.Len(t, tr.order, 6)
}

func TestRuntimeCountsAndCapacity(t *testing.T) {
	tr := newTracker()
	tr.gate = make(chan struct{})
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1, 3))
	p := testsupport.NewPipeline(t, cfg, registerTracked(tr, nil))
	p.Start(t)

	items := claimItems(t, p, "owner-a",
		trackedJob{key: "a", tr: tr}, trackedJob{key: "b", tr: tr}, trackedJob{key: "c", tr: tr})
	submitAll(t, p.Runtime, items)

	require.Eventually(t, func() bool {
		return p.Runtime.Counts()["tracked"].Running == 1
	}, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, worker.KindCounts{Queued: 2, Running: 1}, p.Runtime.Counts()["tracked"])
	assert.Equal(t, 0, p.Runtime.Capacity())
	assert.Equal(t, 3, p.Runtime.Outstanding())
	assert.True(t, p.Runtime.Busy())

	close(tr.gate)
	p.WaitIdle(t, waitTimeout)
	assert.Empty(t, p.Runtime.Counts())
	assert.Equal(t, 3, p.Runtime.Capacity())
	assert.False(t, p.Runtime.Busy())
}

func TestRuntimeRecordsPanicAsFailure(t *testing.T) {
	p := testsupport.NewPipeline(t, testsupport.NewConfig(t), registerTracked(newTracker(), nil))
	p.Start(t)

	items := claimItems(t, p, "owner-a", boomJob{})
	submitAll(t, p.Runtime, items)
	p.WaitIdle(t, waitTimeout)

	rec, err := p.Queue.Get(context.Background(), items[0].Record.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Failed())
	assert.Contains(t, rec.LastError, "page table exploded")
}

type notice struct {
	kind      string
	detail    string
	succeeded int
	failed    int
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (n *recordingNotifier) NotifyJobFailed(_ context.Context, description string, err error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{kind: "failed", detail: description + ": " + err.Error()})
	return nil
}

func (n *recordingNotifier) NotifyQueueCompleted(_ context.Context, succeeded, failed int, _ time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{kind: "completed", succeeded: succeeded, failed: failed})
	return nil
}

func (n *recordingNotifier) TestNotification(context.Context) error { return nil }

func (n *recordingNotifier) snapshot() []notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notice(nil), n.notices...)
}

func TestRuntimeNotifiesFailuresAndDrainedBatches(t *testing.T) {
	tr := newTracker()
	tr.gate = make(chan struct{})
	notifier := &recordingNotifier{}
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1, 4))
	p := testsupport.NewPipeline(t, cfg, registerTracked(tr, nil), testsupport.WithNotifier(notifier))
	p.Start(t)

	submitAll(t, p.Runtime, claimItems(t, p, "owner-a",
		trackedJob{key: "a", seq: 1, tr: tr}, boomJob{}, trackedJob{key: "b", seq: 2, tr: tr}))
	close(tr.gate)

	require.Eventually(t, func() bool {
		notices := notifier.snapshot()
		return len(notices) > 0 && notices[len(notices)-1].kind == "completed"
	}, waitTimeout, 5*time.Millisecond)

	notices := notifier.snapshot()
	require.Len(t, notices, 2)
	assert.Equal(t, "failed", notices[0].kind)
	assert.Contains(t, notices[0].detail, "page table exploded")
	assert.Equal(t, notice{kind: "completed", succeeded: 2, failed: 1}, notices[1])
}

func TestRuntimeCompletesJobThatNeverOpensTx(t *testing.T) {
	tr := newTracker()
	p := testsupport.NewPipeline(t, testsupport.NewConfig(t), registerTracked(tr, nil))
	p.Start(t)

	submitAll(t, p.Runtime, claimItems(t, p, "owner-a", trackedJob{key: "solo", tr: tr}))
	p.WaitIdle(t, waitTimeout)
	assert.Empty(t, records(t, p))
}

func TestRuntimeRejectsSecondTx(t *testing.T) {
	second := make(chan error, 1)
	p := testsupport.NewPipeline(t, testsupport.NewConfig(t), registerTracked(newTracker(), second))
	p.Start(t)

	submitAll(t, p.Runtime, claimItems(t, p, "owner-a", twiceJob{second: second}))
	p.WaitIdle(t, waitTimeout)

	select {
	case err := <-second:
		assert.ErrorIs(t, err, task.ErrTxReused)
	default:
		t.Fatal("job did not attempt a second transaction")
	}
	assert.Empty(t, records(t, p))
}

func TestRuntimeLostLeaseRollsBackJobWrites(t *testing.T) {
	p := testsupport.NewPipeline(t, testsupport.NewConfig(t), registerTracked(newTracker(), nil))
	p.Start(t)
	ctx := context.Background()

	items := claimItems(t, p, "owner-a", createJob{filename: "/lib/ghost.cbz"})
	// Another owner now believes it holds the record.
	items[0].Owner = "owner-b"
	submitAll(t, p.Runtime, items)
	p.WaitIdle(t, waitTimeout)

	comic, err := p.Catalog.FindByFilename(ctx, "/lib/ghost.cbz")
	require.NoError(t, err)
	assert.Nil(t, comic)

	rec, err := p.Queue.Get(ctx, items[0].Record.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.False(t, rec.Failed())
	assert.Equal(t, "owner-a", rec.ClaimedBy)
}

func TestRuntimeStopReleasesUnstartedClaims(t *testing.T) {
	tr := newTracker()
	tr.gate = make(chan struct{})
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1, 4))
	p := testsupport.NewPipeline(t, cfg, registerTracked(tr, nil))
	p.Runtime.Start(context.Background())
	ctx := context.Background()

	items := claimItems(t, p, "owner-a",
		trackedJob{key: "a", tr: tr}, trackedJob{key: "b", tr: tr}, trackedJob{key: "c", tr: tr})
	submitAll(t, p.Runtime, items)
	require.Eventually(t, func() bool {
		return p.Runtime.Counts()["tracked"].Running == 1
	}, waitTimeout, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		p.Runtime.Stop(ctx)
		close(stopped)
	}()
	require.Eventually(t, func() bool { return p.Runtime.Outstanding() == 1 }, waitTimeout, 5*time.Millisecond)
	close(tr.gate)
	select {
	case <-stopped:
	case <-time.After(waitTimeout):
		t.Fatal("stop did not return")
	}

	assert.ErrorIs(t, p.Runtime.Submit(items[0]), worker.ErrStopped)
	assert.Equal(t, 0, p.Runtime.Capacity())

	recs := records(t, p)
	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Empty(t, rec.ClaimedBy, "record %d should be released", rec.ID)
		assert.False(t, rec.Failed())
	}
}

func TestSubmitRejectsNilJob(t *testing.T) {
	p := testsupport.NewPipeline(t, testsupport.NewConfig(t))
	err := p.Runtime.Submit(worker.Item{Owner: "owner-a"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, worker.ErrStopped))
}

func TestHeartbeatRenewsOutstandingLeases(t *testing.T) {
	tr := newTracker()
	tr.gate = make(chan struct{})
	p := testsupport.NewPipeline(t, testsupport.NewConfig(t), registerTracked(tr, nil))
	p.Start(t)
	ctx := context.Background()

	items := claimItems(t, p, "owner-a", trackedJob{key: "long", tr: tr})
	submitAll(t, p.Runtime, items)

	monitor := worker.NewHeartbeatMonitor(p.Queue, p.Runtime, nil, time.Second, time.Hour)
	require.NoError(t, monitor.Renew(ctx))

	rec, err := p.Queue.Get(ctx, items[0].Record.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.ClaimedUntil.After(time.Now().Add(30*time.Minute)))

	close(tr.gate)
	p.WaitIdle(t, waitTimeout)
}

func records(t *testing.T, p *testsupport.Pipeline) []queue.Record {
	t.Helper()
	recs, err := p.Queue.List(context.Background(), queue.ListFilter{})
	require.NoError(t, err)
	return recs
}
