// Package correlation parks synchronous callers behind futures keyed by
// transaction id until the matching asynchronous callback arrives.
//
// Flow:
//  1. Gateway dispatches an action and the upstream synchronously ACKs
//  2. Gateway opens a correlation and suspends on Pending.Wait
//  3. Callback receiver resolves the correlation with the async result
//  4. Resolve, Cancel and expiry race; whichever removes the entry first
//     wins, and the losers are no-ops
package correlation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/onixgrid/bapbridge/internal/protocol"
)

// Errors
var (
	ErrDuplicateTransaction = errors.New("correlation: transaction id already pending")
	ErrCancelled            = errors.New("correlation: wait cancelled")
)

// DefaultWindow is the expiry window used when none is configured.
const DefaultWindow = 30 * time.Second

// TimeoutError is returned from Wait when no callback arrived within the
// configured window. It names the callback so callers can log something
// readable.
type TimeoutError struct {
	Action protocol.Action
	Window time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout waiting for %s callback (%dms)", e.Action.CallbackName(), e.Window.Milliseconds())
}

// Result is the asynchronous payload a correlation is fulfilled with.
type Result struct {
	Context *protocol.Context `json:"context,omitempty"`
	Message json.RawMessage   `json:"message,omitempty"`
	Error   *protocol.Error   `json:"error,omitempty"`
}

type outcome struct {
	result Result
	err    error
}

// Pending is one in-flight request awaiting its asynchronous result.
type Pending struct {
	TransactionID string
	Action        protocol.Action
	CreatedAt     time.Time

	store *Store
	done  chan outcome // buffered; exactly one send ever happens
}

// Wait suspends until the correlation is resolved, expires, or ctx is
// cancelled. Caller-side cancellation (client disconnect) is treated the
// same as an explicit Cancel so abandoned waits do not linger.
func (p *Pending) Wait(ctx context.Context) (Result, error) {
	select {
	case out := <-p.done:
		return out.result, out.err
	case <-ctx.Done():
		p.store.Cancel(p.TransactionID)
		// A resolve may have won the race before Cancel removed the entry.
		select {
		case out := <-p.done:
			return out.result, out.err
		default:
			return Result{}, ctx.Err()
		}
	}
}

type entry struct {
	pending *Pending
	timer   *time.Timer
}

// Store is the in-memory registry of outstanding correlations. It is the
// only shared mutable state in the bridge; all synchronization is the one
// mutex around the map.
type Store struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]*entry
}

// NewStore creates a correlation store with the given expiry window.
// Pass 0 to use DefaultWindow.
func NewStore(window time.Duration) *Store {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Store{
		window:  window,
		entries: make(map[string]*entry),
	}
}

// Window returns the configured expiry window.
func (s *Store) Window() time.Duration {
	return s.window
}

// Open registers a new pending correlation and starts its expiry timer.
// Fails with ErrDuplicateTransaction if the id is already pending.
func (s *Store) Open(transactionID string, action protocol.Action) (*Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[transactionID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTransaction, transactionID)
	}

	p := &Pending{
		TransactionID: transactionID,
		Action:        action,
		CreatedAt:     time.Now(),
		store:         s,
		done:          make(chan outcome, 1),
	}
	e := &entry{pending: p}
	e.timer = time.AfterFunc(s.window, func() { s.expire(transactionID) })
	s.entries[transactionID] = e

	corOpened.Inc()
	corPending.Inc()
	return p, nil
}

// take removes and returns the entry for id, stopping its timer.
// All terminal events funnel through here, which is what makes them
// mutually exclusive: the map removal under the mutex is the single
// check-and-remove that decides the winner.
func (s *Store) take(transactionID string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[transactionID]
	if !ok {
		return nil
	}
	delete(s.entries, transactionID)
	e.timer.Stop()
	corPending.Dec()
	return e
}

// Resolve fulfills a pending correlation with the asynchronous result.
// Returns false if no matching correlation exists (late or duplicate
// callbacks are safe no-ops).
func (s *Store) Resolve(transactionID string, result Result) bool {
	e := s.take(transactionID)
	if e == nil {
		return false
	}
	e.pending.done <- outcome{result: result}
	corResolved.Inc()
	return true
}

// Cancel removes a pending correlation without fulfilling it, used when
// the synchronous upstream reply itself signalled rejection and no
// callback will ever arrive. Returns false if no match was found.
func (s *Store) Cancel(transactionID string) bool {
	e := s.take(transactionID)
	if e == nil {
		return false
	}
	e.pending.done <- outcome{err: ErrCancelled}
	corCancelled.Inc()
	return true
}

// expire fails the pending correlation's future with a TimeoutError.
func (s *Store) expire(transactionID string) {
	e := s.take(transactionID)
	if e == nil {
		return
	}
	e.pending.done <- outcome{err: &TimeoutError{Action: e.pending.Action, Window: s.window}}
	corExpired.Inc()
}

// Count returns the number of currently pending correlations.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
