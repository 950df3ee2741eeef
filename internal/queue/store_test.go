package queue_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"folio/internal/queue"
	"folio/internal/store"
	"folio/internal/testsupport"
)

func enqueue(t *testing.T, s *queue.Store, taskType string, props ...queue.Property) queue.Record {
	t.Helper()
	rec, err := s.Enqueue(context.Background(), queue.Record{Type: taskType, Properties: props})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return rec
}

func TestEnqueuePreservesPropertyOrder(t *testing.T) {
	s := testsupport.MustOpenQueue(t, testsupport.NewConfig(t))
	ctx := context.Background()

	props := queue.Properties{
		{Key: "path", Value: "/comics/Saga 001.cbz"},
		{Key: "delete_blocked_pages", Value: "true"},
		{Key: "ignore_metadata", Value: ""},
	}
	rec := enqueue(t, s, "add", props...)
	if rec.ID == 0 {
		t.Fatal("expected assigned id")
	}

	got, err := s.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("expected record")
	}
	if got.Type != "add" {
		t.Fatalf("unexpected type %q", got.Type)
	}
	if len(got.Properties) != len(props) {
		t.Fatalf("expected %d properties, got %+v", len(props), got.Properties)
	}
	for i, prop := range props {
		if got.Properties[i] != prop {
			t.Fatalf("property %d: got %+v want %+v", i, got.Properties[i], prop)
		}
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Fatalf("created_at mismatch: %v vs %v", got.CreatedAt, rec.CreatedAt)
	}

	missing, err := s.Get(ctx, rec.ID+100)
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing record, got %+v err=%v", missing, err)
	}
}

func TestEnqueueRejectsInvalidRecords(t *testing.T) {
	s := testsupport.MustOpenQueue(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if _, err := s.Enqueue(ctx, queue.Record{Type: " "}); !errors.Is(err, queue.ErrEmptyType) {
		t.Fatalf("expected ErrEmptyType, got %v", err)
	}
	_, err := s.Enqueue(ctx, queue.Record{Type: "add", Properties: queue.Properties{{Key: "a"}, {Key: "a"}}})
	if !errors.Is(err, queue.ErrDuplicateProperty) {
		t.Fatalf("expected ErrDuplicateProperty, got %v", err)
	}
	if n, _ := s.CountPending(ctx, "add"); n != 0 {
		t.Fatalf("expected no partial insert, got %d", n)
	}
}

func TestDequeueBatchIsFIFOAndReadOnly(t *testing.T) {
	s := testsupport.MustOpenQueue(t, testsupport.NewConfig(t))
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ids := make([]int64, 0, 5)
	for i := 0; i < 5; i++ {
		clock := base.Add(time.Duration(i) * time.Millisecond)
		rec, err := s.WithClock(func() time.Time { return clock }).Enqueue(ctx, queue.Record{Type: "rescan"})
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		ids = append(ids, rec.ID)
	}

	batch, err := s.DequeueBatch(ctx, 3)
	if err != nil {
		t.Fatalf("DequeueBatch: %v", err)
	}
	if len(batch) != 3 {
		t.Fatalf("expected 3 records, got %d", len(batch))
	}
	for i, rec := range batch {
		if rec.ID != ids[i] {
			t.Fatalf("position %d: got id %d want %d", i, rec.ID, ids[i])
		}
	}
	again, err := s.DequeueBatch(ctx, 10)
	if err != nil {
		t.Fatalf("DequeueBatch: %v", err)
	}
	if len(again) != 5 {
		t.Fatalf("expected dequeue to leave records pending, got %d", len(again))
	}
}

func TestClaimIsExclusiveAcrossOwners(t *testing.T) {
	s := testsupport.MustOpenQueue(t, testsupport.NewConfig(t))
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		enqueue(t, s, "process", queue.Property{Key: "comic_id", Value: "1"})
	}

	var (
		mu   sync.Mutex
		seen = map[int64]string{}
		wg   sync.WaitGroup
	)
	for _, owner := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(owner string) {
			defer wg.Done()
			for {
				claimed, err := s.Claim(ctx, owner, 3, time.Minute)
				if err != nil {
					t.Errorf("Claim(%s): %v", owner, err)
					return
				}
				if len(claimed) == 0 {
					return
				}
				mu.Lock()
				for _, rec := range claimed {
					if prev, dup := seen[rec.ID]; dup {
						t.Errorf("record %d claimed by %s and %s", rec.ID, prev, owner)
					}
					seen[rec.ID] = owner
					if rec.ClaimedBy != owner {
						t.Errorf("record %d reports owner %q want %q", rec.ID, rec.ClaimedBy, owner)
					}
				}
				mu.Unlock()
			}
		}(owner)
	}
	wg.Wait()
	if len(seen) != 20 {
		t.Fatalf("expected all 20 records claimed once, got %d", len(seen))
	}
}

func TestExpiredLeaseIsRedelivered(t *testing.T) {
	s := testsupport.MustOpenQueue(t, testsupport.NewConfig(t))
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clocked := s.WithClock(func() time.Time { return now })
	rec := enqueue(t, clocked, "convert")

	first, err := clocked.Claim(ctx, "crashed", 10, time.Minute)
	if err != nil || len(first) != 1 {
		t.Fatalf("first claim: %v %+v", err, first)
	}
	if again, _ := clocked.Claim(ctx, "other", 10, time.Minute); len(again) != 0 {
		t.Fatalf("expected live lease to block claim, got %+v", again)
	}

	later := now.Add(2 * time.Minute)
	reclaimer := s.WithClock(func() time.Time { return later })
	second, err := reclaimer.Claim(ctx, "other", 10, time.Minute)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(second) != 1 || second[0].ID != rec.ID {
		t.Fatalf("expected redelivery of %d, got %+v", rec.ID, second)
	}
	if second[0].Attempts != 2 {
		t.Fatalf("expected attempts to count deliveries, got %d", second[0].Attempts)
	}

	if err := s.Complete(ctx, rec.ID, "crashed"); !errors.Is(err, queue.ErrLeaseLost) {
		t.Fatalf("expected stale owner completion to fail with ErrLeaseLost, got %v", err)
	}
	if err := s.Complete(ctx, rec.ID, "other"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got, _ := s.Get(ctx, rec.ID); got != nil {
		t.Fatalf("expected record removed, got %+v", got)
	}
}

func TestRenewLeasesKeepsClaimAlive(t *testing.T) {
	s := testsupport.MustOpenQueue(t, testsupport.NewConfig(t))
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rec := enqueue(t, s, "export")
	if _, err := s.WithClock(func() time.Time { return now }).Claim(ctx, "owner", 1, time.Minute); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	renewed, err := s.RenewLeases(ctx, "owner", []int64{rec.ID}, now.Add(10*time.Minute))
	if err != nil || renewed != 1 {
		t.Fatalf("RenewLeases: renewed=%d err=%v", renewed, err)
	}
	if n, _ := s.RenewLeases(ctx, "intruder", []int64{rec.ID}, now.Add(time.Hour)); n != 0 {
		t.Fatalf("expected foreign owner renewal to be ignored, got %d", n)
	}
	later := s.WithClock(func() time.Time { return now.Add(5 * time.Minute) })
	if claimed, _ := later.Claim(ctx, "other", 1, time.Minute); len(claimed) != 0 {
		t.Fatalf("expected renewed lease to block claim, got %+v", claimed)
	}
}

func TestMarkFailedKeepsRecordVisible(t *testing.T) {
	s := testsupport.MustOpenQueue(t, testsupport.NewConfig(t))
	ctx := context.Background()

	failing := enqueue(t, s, "process")
	healthy := enqueue(t, s, "process")
	if _, err := s.Claim(ctx, "owner", 2, time.Minute); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := s.MarkFailed(ctx, failing.ID, "owner", "archive error: truncated"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if _, err := s.Release(ctx, "owner", healthy.ID); err != nil {
		t.Fatalf("Release: %v", err)
	}

	got, err := s.Get(ctx, failing.ID)
	if err != nil || got == nil {
		t.Fatalf("Get: %+v %v", got, err)
	}
	if !got.Failed() || got.LastError != "archive error: truncated" || got.ClaimedBy != "" {
		t.Fatalf("unexpected failed record: %+v", got)
	}

	claimed, err := s.Claim(ctx, "owner", 10, time.Minute)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != healthy.ID {
		t.Fatalf("expected only healthy record claimable, got %+v", claimed)
	}

	pending, err := s.CountPending(ctx, "process")
	if err != nil || pending != 2 {
		t.Fatalf("expected failed record counted, got %d err=%v", pending, err)
	}
	counts, err := s.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts.Failed != 1 || counts.Claimed != 1 || counts.Pending != 0 || counts.ByType["process"] != 2 {
		t.Fatalf("unexpected counts: %+v", counts)
	}

	retried, err := s.RetryFailed(ctx)
	if err != nil || retried != 1 {
		t.Fatalf("RetryFailed: %d %v", retried, err)
	}
	failedList, err := s.List(ctx, queue.ListFilter{FailedOnly: true})
	if err != nil || len(failedList) != 0 {
		t.Fatalf("expected no failed records after retry, got %+v %v", failedList, err)
	}
}

func TestWithTxRollsBackEnqueue(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	s := queue.New(db)
	ctx := context.Background()

	boom := errors.New("job failed")
	err := db.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := s.WithTx(tx).Enqueue(ctx, queue.Record{Type: "process"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected job error, got %v", err)
	}
	if n, _ := s.CountPending(ctx, "process"); n != 0 {
		t.Fatalf("expected rollback to discard enqueue, got %d", n)
	}
}

func TestRecordsSurviveReopen(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	db, err := store.OpenConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("OpenConfig: %v", err)
	}
	rec, err := queue.New(db).Enqueue(ctx, queue.Record{Type: "delete", Properties: queue.Properties{{Key: "comic_id", Value: "4"}}})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := queue.New(db).Claim(ctx, "before-crash", 1, time.Hour); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	_ = db.Close()

	reopened := testsupport.MustOpenQueue(t, cfg)
	released, err := reopened.ReleaseAllClaims(ctx)
	if err != nil || released != 1 {
		t.Fatalf("ReleaseAllClaims: %d %v", released, err)
	}
	batch, err := reopened.DequeueBatch(ctx, 1)
	if err != nil {
		t.Fatalf("DequeueBatch: %v", err)
	}
	if len(batch) != 1 || batch[0].ID != rec.ID {
		t.Fatalf("expected record to survive reopen, got %+v", batch)
	}
	if v, _ := batch[0].Properties.Get("comic_id"); v != "4" {
		t.Fatalf("unexpected properties %+v", batch[0].Properties)
	}
}

func TestMaintenanceOperations(t *testing.T) {
	s := testsupport.MustOpenQueue(t, testsupport.NewConfig(t))
	ctx := context.Background()

	a := enqueue(t, s, "add")
	b := enqueue(t, s, "rescan")
	enqueue(t, s, "rescan")
	if _, err := s.Claim(ctx, "o", 1, time.Minute); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := s.MarkFailed(ctx, a.ID, "", "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	list, err := s.List(ctx, queue.ListFilter{Types: []string{"rescan"}, Limit: 1})
	if err != nil || len(list) != 1 || list[0].ID != b.ID {
		t.Fatalf("unexpected filtered list %+v %v", list, err)
	}

	health, err := s.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 3 || health.Failed != 1 || health.Pending != 2 {
		t.Fatalf("unexpected health: %+v", health)
	}

	if n, err := s.ClearFailed(ctx); err != nil || n != 1 {
		t.Fatalf("ClearFailed: %d %v", n, err)
	}
	if n, err := s.Remove(ctx, b.ID); err != nil || n != 1 {
		t.Fatalf("Remove: %d %v", n, err)
	}
	if n, err := s.Clear(ctx); err != nil || n != 1 {
		t.Fatalf("Clear: %d %v", n, err)
	}

	dbHealth, err := s.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !dbHealth.DatabaseExists || !dbHealth.TableExists || !dbHealth.IntegrityCheck || len(dbHealth.MissingColumns) != 0 {
		t.Fatalf("unexpected database health: %+v", dbHealth)
	}
}

func TestPropertiesWithReplacesInPlace(t *testing.T) {
	props := queue.Properties{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}
	updated := props.With("a", "9").With("c", "3")
	if props[0].Value != "1" {
		t.Fatal("expected original bag unchanged")
	}
	if updated[0] != (queue.Property{Key: "a", Value: "9"}) || updated[2].Key != "c" {
		t.Fatalf("unexpected bag %+v", updated)
	}
}
