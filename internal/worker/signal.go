package worker

import (
	"context"
	"sync"
	"time"
)

// Signal is a broadcast condition variable with a generation counter.
// Waiters remember the generation they last observed and wake once it moves.
type Signal struct {
	mu   sync.Mutex
	cond *sync.Cond
	gen  uint64
}

// NewSignal returns a ready Signal.
func NewSignal() *Signal {
	s := &Signal{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Broadcast advances the generation and wakes every waiter.
func (s *Signal) Broadcast() {
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Generation returns the current generation.
func (s *Signal) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Wait blocks until the generation differs from seen, timeout elapses or ctx
// ends. It returns the generation observed on return and whether it changed.
func (s *Signal) Wait(ctx context.Context, seen uint64, timeout time.Duration) (uint64, bool) {
	deadline := time.Now().Add(timeout)
	stop := context.AfterFunc(ctx, s.wake)
	defer stop()
	timer := time.AfterFunc(timeout, s.wake)
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.gen == seen && ctx.Err() == nil && time.Now().Before(deadline) {
		s.cond.Wait()
	}
	return s.gen, s.gen != seen
}

// wake broadcasts under the lock so a waiter between its check and Wait
// cannot miss it.
func (s *Signal) wake() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cond.Broadcast()
}
