// Package lock provides an in-process, key-scoped mutual exclusion service.
// It serialises logically concurrent requests that contend on the same
// resource (for example two purchase attempts for the same event by the same
// user, or redelivered copies of the same payment webhook).  The service is
// deliberately process-local: cross-process safety is the job of the
// conditional counter updates in the repository layer, and the lock exists to
// avoid wasted external calls under contention, not to be the correctness
// mechanism.  If the application is ever deployed as multiple instances this
// package must be replaced by a distributed lock or dropped entirely.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned by WithLock when the lock could not be acquired
// within the caller's budget.  The protected function is never invoked in
// that case.  Callers should surface this as a "please retry" condition.
var ErrTimeout = errors.New("lock: acquisition timed out")

// ErrEmptyKey is returned when WithLock is called with an empty key.
var ErrEmptyKey = errors.New("lock: empty key")

// waiter represents a single queued acquirer for a key.  The ready channel
// is closed by the releasing holder when the lock is handed over.  The
// granted flag is only read and written while holding the service mutex and
// resolves the race between a hand-over and a timeout firing at the same
// moment.
type waiter struct {
	ready   chan struct{}
	granted bool
}

// entry tracks the state of a single contended key.  An entry exists in the
// table if and only if the key currently has a holder; waiters queue behind
// it in FIFO order.  Entries are created on the first acquisition attempt
// for a key and removed as soon as the last holder releases with nobody
// waiting, so the table never grows without bound.
type entry struct {
	heldSince time.Time
	waiters   []*waiter
}

// Service is a key-scoped lock manager.  Construct one instance at process
// start with New and inject it wherever locking is needed; independent
// instances are fully isolated, which keeps parallel tests clean.
//
// Waiters for the same key are served strictly in arrival order.  Distinct
// keys are completely independent and carry no ordering guarantee relative
// to each other.  Re-entrant acquisition of the same key from within the
// protected function is not supported and will deadlock until the inner
// call times out; callers must not nest locks on the same key.
type Service struct {
	mu      sync.Mutex
	entries map[string]*entry

	// running counters for the operational stats endpoint
	totalAcquisitions uint64
	totalWait         time.Duration
}

// New returns an empty lock service ready for use.
func New() *Service {
	return &Service{entries: make(map[string]*entry)}
}

// WithLock runs fn while holding the exclusive lock for key.  If the key is
// free the caller becomes holder immediately; otherwise it queues behind the
// current holder and any earlier waiters.  The timeout bounds the wait for
// acquisition, measured from the start of the call: when it elapses (or ctx
// is cancelled) before the lock is granted, the waiter is removed from the
// queue and ErrTimeout (or the context error) is returned without running fn.
//
// Once acquired, the lock is released on every exit path: normal return,
// error return, and panic (the panic is re-raised after release).  Errors
// from fn propagate to the caller unchanged.
func (s *Service) WithLock(ctx context.Context, key string, timeout time.Duration, fn func() error) error {
	if key == "" {
		return ErrEmptyKey
	}
	if timeout <= 0 {
		return ErrTimeout
	}
	start := time.Now()

	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		// Fast path: nobody holds the key, acquire immediately.
		e = &entry{heldSince: start}
		s.entries[key] = e
		s.totalAcquisitions++
		s.mu.Unlock()
		return s.run(key, fn)
	}
	w := &waiter{ready: make(chan struct{})}
	e.waiters = append(e.waiters, w)
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.ready:
		s.mu.Lock()
		s.totalAcquisitions++
		s.totalWait += time.Since(start)
		e.heldSince = time.Now()
		s.mu.Unlock()
		return s.run(key, fn)
	case <-timer.C:
		return s.abandon(key, w, ErrTimeout)
	case <-ctx.Done():
		return s.abandon(key, w, ctx.Err())
	}
}

// run executes fn and guarantees the key is released afterwards, including
// when fn panics.
func (s *Service) run(key string, fn func() error) error {
	defer s.release(key)
	return fn()
}

// release hands the key to the next queued waiter in FIFO order, or removes
// the entry entirely when no one is waiting.
func (s *Service) release(key string) {
	s.mu.Lock()
	s.releaseLocked(key)
	s.mu.Unlock()
}

func (s *Service) releaseLocked(key string) {
	e, ok := s.entries[key]
	if !ok {
		return
	}
	if len(e.waiters) > 0 {
		next := e.waiters[0]
		e.waiters = e.waiters[1:]
		next.granted = true
		close(next.ready)
		// the entry stays held; ownership passed to next
		return
	}
	delete(s.entries, key)
}

// abandon removes a timed-out or cancelled waiter from the queue.  When the
// hand-over raced with the deadline and the lock was already granted to this
// waiter, ownership is passed straight on to the next waiter so that a
// caller never becomes holder after its deadline.
func (s *Service) abandon(key string, w *waiter, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.granted {
		s.releaseLocked(key)
		return cause
	}
	e, ok := s.entries[key]
	if !ok {
		return cause
	}
	for i, q := range e.waiters {
		if q == w {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			break
		}
	}
	return cause
}

// Stats is a point-in-time snapshot of the service counters.
type Stats struct {
	ActiveLocks       int     `json:"active_locks"`
	TotalAcquisitions uint64  `json:"total_acquisitions"`
	AvgWaitMillis     float64 `json:"avg_wait_ms"`
}

// Stats returns the current counters.  The average wait is cumulative over
// the life of the service and includes immediate (zero-wait) acquisitions.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		ActiveLocks:       len(s.entries),
		TotalAcquisitions: s.totalAcquisitions,
	}
	if s.totalAcquisitions > 0 {
		st.AvgWaitMillis = float64(s.totalWait.Milliseconds()) / float64(s.totalAcquisitions)
	}
	return st
}

// trackedKeys reports the number of keys currently present in the table.
// Exposed for tests that assert the table does not leak entries.
func (s *Service) trackedKeys() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
