package correlation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/onixgrid/bapbridge/internal/protocol"
)

func TestOpenAndResolve(t *testing.T) {
	s := NewStore(5 * time.Second)

	p, err := s.Open("txn-1", protocol.ActionSelect)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if s.Count() != 1 {
		t.Errorf("expected 1 pending, got %d", s.Count())
	}

	payload := Result{Message: json.RawMessage(`{"order":{"id":"ord-1"}}`)}
	if !s.Resolve("txn-1", payload) {
		t.Fatal("expected resolve to find the pending correlation")
	}

	result, err := p.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if string(result.Message) != `{"order":{"id":"ord-1"}}` {
		t.Errorf("unexpected message: %s", result.Message)
	}
	if s.Count() != 0 {
		t.Errorf("expected 0 pending after resolve, got %d", s.Count())
	}
}

func TestOpen_Duplicate(t *testing.T) {
	s := NewStore(5 * time.Second)

	if _, err := s.Open("txn-1", protocol.ActionSelect); err != nil {
		t.Fatalf("first open: %v", err)
	}
	_, err := s.Open("txn-1", protocol.ActionInit)
	if !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("expected ErrDuplicateTransaction, got %v", err)
	}
}

func TestResolve_NoMatch(t *testing.T) {
	s := NewStore(5 * time.Second)
	if s.Resolve("nope", Result{}) {
		t.Error("resolve of unknown id should return false")
	}
	if s.Cancel("nope") {
		t.Error("cancel of unknown id should return false")
	}
}

func TestResolveAndCancelAreMutuallyExclusive(t *testing.T) {
	s := NewStore(5 * time.Second)

	if _, err := s.Open("txn-1", protocol.ActionSelect); err != nil {
		t.Fatalf("open: %v", err)
	}
	if !s.Resolve("txn-1", Result{}) {
		t.Fatal("first resolve should win")
	}
	if s.Cancel("txn-1") {
		t.Error("cancel after resolve should be a no-op")
	}
	if s.Resolve("txn-1", Result{}) {
		t.Error("second resolve should be a no-op")
	}

	if _, err := s.Open("txn-2", protocol.ActionConfirm); err != nil {
		t.Fatalf("open: %v", err)
	}
	if !s.Cancel("txn-2") {
		t.Fatal("first cancel should win")
	}
	if s.Resolve("txn-2", Result{}) {
		t.Error("resolve after cancel should be a no-op")
	}
}

func TestExpiry(t *testing.T) {
	s := NewStore(50 * time.Millisecond)

	p, err := s.Open("txn-1", protocol.ActionSelect)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	_, err = p.Wait(context.Background())
	if err == nil {
		t.Fatal("expected timeout error")
	}

	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TimeoutError, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "on_select") {
		t.Errorf("timeout message should name the callback: %q", err.Error())
	}
	if !strings.Contains(err.Error(), "50ms") {
		t.Errorf("timeout message should name the window: %q", err.Error())
	}
	if s.Count() != 0 {
		t.Errorf("expected entry removed after expiry, got %d pending", s.Count())
	}

	// Expiry already won; a late callback must be a no-op.
	if s.Resolve("txn-1", Result{}) {
		t.Error("resolve after expiry should be a no-op")
	}
}

func TestResolveStopsExpiry(t *testing.T) {
	s := NewStore(30 * time.Millisecond)

	p, err := s.Open("txn-1", protocol.ActionInit)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !s.Resolve("txn-1", Result{Message: json.RawMessage(`{}`)}) {
		t.Fatal("resolve should find the correlation")
	}

	// Wait past the window; the result must still be the resolution,
	// not a timeout.
	time.Sleep(60 * time.Millisecond)
	result, err := p.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait after resolve: %v", err)
	}
	if result.Message == nil {
		t.Error("expected resolved payload")
	}
}

func TestWait_ContextCancelled(t *testing.T) {
	s := NewStore(5 * time.Second)

	p, err := s.Open("txn-1", protocol.ActionStatus)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.Wait(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if s.Count() != 0 {
		t.Errorf("caller cancellation should remove the entry, got %d pending", s.Count())
	}
}

func TestConcurrentTerminalEvents_SingleWinner(t *testing.T) {
	s := NewStore(5 * time.Second)

	const n = 100
	var resolved, cancelled atomic.Int64

	for i := 0; i < n; i++ {
		id := fmt.Sprintf("txn-%d", i)
		if _, err := s.Open(id, protocol.ActionSelect); err != nil {
			t.Fatalf("open: %v", err)
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			if s.Resolve(id, Result{}) {
				resolved.Add(1)
			}
		}()
		go func() {
			defer wg.Done()
			if s.Cancel(id) {
				cancelled.Add(1)
			}
		}()
		wg.Wait()
	}

	if resolved.Load()+cancelled.Load() != n {
		t.Errorf("expected exactly %d winners, got %d resolved + %d cancelled",
			n, resolved.Load(), cancelled.Load())
	}
}

func TestWindowDefault(t *testing.T) {
	s := NewStore(0)
	if s.Window() != DefaultWindow {
		t.Errorf("expected default window, got %v", s.Window())
	}
}
