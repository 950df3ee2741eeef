package worker

import (
	"context"
	"testing"
	"time"
)

func TestSignalWaitWakesOnBroadcast(t *testing.T) {
	s := NewSignal()
	seen := s.Generation()
	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Broadcast()
	}()
	gen, changed := s.Wait(context.Background(), seen, 5*time.Second)
	if !changed || gen != seen+1 {
		t.Fatalf("expected generation %d, got %d (changed=%v)", seen+1, gen, changed)
	}
}

func TestSignalWaitReturnsImmediatelyWhenGenerationMoved(t *testing.T) {
	s := NewSignal()
	seen := s.Generation()
	s.Broadcast()
	start := time.Now()
	if _, changed := s.Wait(context.Background(), seen, 5*time.Second); !changed {
		t.Fatal("expected a change")
	}
	if time.Since(start) > time.Second {
		t.Fatal("wait blocked although the generation had already moved")
	}
}

func TestSignalWaitTimesOut(t *testing.T) {
	s := NewSignal()
	start := time.Now()
	gen, changed := s.Wait(context.Background(), s.Generation(), 30*time.Millisecond)
	if changed || gen != 0 {
		t.Fatalf("unexpected change to %d", gen)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("returned after %s, before the timeout", elapsed)
	}
}

func TestSignalWaitHonorsContext(t *testing.T) {
	s := NewSignal()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	done := make(chan struct{})
	go func() {
		s.Wait(ctx, s.Generation(), time.Minute)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("wait ignored context cancellation")
	}
}
