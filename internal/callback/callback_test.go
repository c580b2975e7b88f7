package callback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/onixgrid/bapbridge/internal/correlation"
	"github.com/onixgrid/bapbridge/internal/orders"
	"github.com/onixgrid/bapbridge/internal/protocol"
	"github.com/onixgrid/bapbridge/internal/settlement"
)

type fakeNotifier struct {
	calls atomic.Int64
	err   error
}

func (f *fakeNotifier) SendConfirmation(context.Context, string, *protocol.Order) error {
	f.calls.Add(1)
	return f.err
}

func newTestReceiver(store *correlation.Store, notifier Notifier) (*Receiver, *orders.MemoryStore, *settlement.MemoryStore) {
	orderStore := orders.NewMemoryStore()
	settlements := settlement.NewMemoryStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewReceiver(store, orderStore, settlements, notifier, nil, 0.50, log), orderStore, settlements
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestReceive_ResolvesPending(t *testing.T) {
	store := correlation.NewStore(time.Second)
	r, _, _ := newTestReceiver(store, &fakeNotifier{})

	pending, err := store.Open("txn-1", protocol.ActionSelect)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	ack := r.Receive("on_select", []byte(`{"context":{"transaction_id":"txn-1"},"message":{"order":{"id":"ord-1"}}}`))
	if ack.Message.Ack.Status != "ACK" {
		t.Errorf("ack status = %q, want ACK", ack.Message.Ack.Status)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result, err := pending.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if result.Context.TransactionID != "txn-1" {
		t.Errorf("result context transaction id = %q", result.Context.TransactionID)
	}
}

func TestReceive_UnmatchedStillAcked(t *testing.T) {
	store := correlation.NewStore(time.Second)
	r, _, _ := newTestReceiver(store, &fakeNotifier{})

	ack := r.Receive("on_status", []byte(`{"context":{"transaction_id":"nobody-waiting"},"message":{}}`))
	if ack.Message.Ack.Status != "ACK" {
		t.Errorf("unsolicited callback must still be ACKed, got %q", ack.Message.Ack.Status)
	}
}

func TestReceive_MalformedBodyStillAcked(t *testing.T) {
	store := correlation.NewStore(time.Second)
	r, _, _ := newTestReceiver(store, &fakeNotifier{})

	ack := r.Receive("on_select", []byte(`{truncated`))
	if ack.Message.Ack.Status != "ACK" {
		t.Errorf("malformed callback must still be ACKed, got %q", ack.Message.Ack.Status)
	}
}

func TestReceive_ConfirmFinalization(t *testing.T) {
	store := correlation.NewStore(time.Second)
	notifier := &fakeNotifier{}
	r, orderStore, settlements := newTestReceiver(store, notifier)

	body := `{
		"context": {"transaction_id": "txn-c"},
		"message": {"order": {
			"id": "ord-c",
			"status": "CONFIRMED",
			"items": [
				{"id": "blk-1", "quantity": 5, "price": "6.00"},
				{"id": "blk-2", "quantity": 10, "price": "6.00"},
				{"id": "blk-3", "quantity": 3, "price": "6.00"}
			],
			"providerAttributes": {"platformId": "seller-net", "domainId": "GEN-9"}
		}}
	}`
	r.Receive("on_confirm", []byte(body))

	waitFor(t, func() bool {
		recs, _ := settlements.FindByTransactionID(context.Background(), "txn-c")
		return len(recs) == 1
	}, "settlement record never created")

	recs, _ := settlements.FindByTransactionID(context.Background(), "txn-c")
	if recs[0].Quantity != 18 {
		t.Errorf("settlement quantity = %v, want 18", recs[0].Quantity)
	}
	if recs[0].CounterpartyPlatformID != "seller-net" || recs[0].CounterpartyDomainID != "GEN-9" {
		t.Errorf("counterparty not taken from providerAttributes: %+v", recs[0])
	}
	if recs[0].ItemRef != "blk-1" {
		t.Errorf("item ref = %q, want blk-1", recs[0].ItemRef)
	}

	waitFor(t, func() bool {
		_, err := orderStore.FindByTransactionID(context.Background(), "txn-c")
		return err == nil
	}, "order record never saved")

	rec, _ := orderStore.FindByTransactionID(context.Background(), "txn-c")
	if rec.TotalQuantity != 18 {
		t.Errorf("order total quantity = %v, want 18", rec.TotalQuantity)
	}
	// 18 × 6.00 + 18 × 0.50 wheeling = 117.00
	if rec.TotalCost != "117.00" {
		t.Errorf("order total cost = %q, want 117.00", rec.TotalCost)
	}

	waitFor(t, func() bool { return notifier.calls.Load() == 1 }, "notification never dispatched")
}

func TestReceive_ConfirmWithErrorSkipsFinalization(t *testing.T) {
	store := correlation.NewStore(time.Second)
	notifier := &fakeNotifier{}
	r, _, settlements := newTestReceiver(store, notifier)

	body := `{
		"context": {"transaction_id": "txn-err"},
		"message": {"order": {"items": [{"quantity": 5}]}},
		"error": {"code": "50001", "message": "provider unavailable"}
	}`
	ack := r.Receive("on_confirm", []byte(body))
	if ack.Message.Ack.Status != "ACK" {
		t.Errorf("errored confirm must still be ACKed")
	}

	time.Sleep(50 * time.Millisecond)
	recs, _ := settlements.FindByTransactionID(context.Background(), "txn-err")
	if len(recs) != 0 {
		t.Errorf("no settlement should exist for an errored confirm, got %d", len(recs))
	}
	if notifier.calls.Load() != 0 {
		t.Errorf("no notification should be sent for an errored confirm")
	}
}

func TestReceive_DuplicateConfirmSettlesOnce(t *testing.T) {
	store := correlation.NewStore(time.Second)
	r, _, settlements := newTestReceiver(store, &fakeNotifier{})

	body := `{
		"context": {"transaction_id": "txn-dup"},
		"message": {"order": {"items": [{"id": "blk-1", "quantity": 7, "price": "5.00"}]}}
	}`
	first := r.Receive("on_confirm", []byte(body))
	second := r.Receive("on_confirm", []byte(body))
	if first.Message.Ack.Status != "ACK" || second.Message.Ack.Status != "ACK" {
		t.Error("both deliveries must be ACKed")
	}

	waitFor(t, func() bool {
		recs, _ := settlements.FindByTransactionID(context.Background(), "txn-dup")
		return len(recs) >= 1
	}, "settlement record never created")
	time.Sleep(50 * time.Millisecond)

	recs, _ := settlements.FindByTransactionID(context.Background(), "txn-dup")
	if len(recs) != 1 {
		t.Errorf("exactly one settlement record expected, got %d", len(recs))
	}
}

func TestReceive_NotifierFailureIsSwallowed(t *testing.T) {
	store := correlation.NewStore(time.Second)
	notifier := &fakeNotifier{err: errors.New("webhook down")}
	r, orderStore, _ := newTestReceiver(store, notifier)

	body := `{
		"context": {"transaction_id": "txn-nf"},
		"message": {"order": {"items": [{"id": "blk-1", "quantity": 2, "price": "4.00"}]}}
	}`
	r.Receive("on_confirm", []byte(body))

	waitFor(t, func() bool {
		_, err := orderStore.FindByTransactionID(context.Background(), "txn-nf")
		return err == nil
	}, "order should still be saved when notification fails")
}
