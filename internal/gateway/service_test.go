package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/onixgrid/bapbridge/internal/correlation"
	"github.com/onixgrid/bapbridge/internal/normalize"
	"github.com/onixgrid/bapbridge/internal/profile"
	"github.com/onixgrid/bapbridge/internal/protocol"
)

type staticLookup struct {
	p *profile.Profile
}

func (s *staticLookup) FindVerifiedBuyer(context.Context, string) (*profile.Profile, error) {
	if s.p == nil {
		return nil, profile.ErrNoProfile
	}
	return s.p, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(upstreamURL string, window time.Duration) (*Service, *correlation.Store) {
	n := normalize.New(&staticLookup{}, normalize.Config{
		SubscriberID: "bap.test",
		Domain:       "energy:retail",
		CoreVersion:  "1.1.0",
	})
	store := correlation.NewStore(window)
	svc := NewService(n, store, NewUpstream(upstreamURL, 2*time.Second), discardLogger())
	return svc, store
}

func canonicalSelect(t *testing.T, txnID string) *normalize.Request {
	t.Helper()
	var req normalize.Request
	body := `{"context":{"transaction_id":"` + txnID + `"},"message":{"order":{"items":[{"id":"blk-1","quantity":5,"price":"6.20"}]}}}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	return &req
}

func ackServer(status string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(protocol.NewAckResponse(status))
	}))
}

func TestExecute_AckThenCallback(t *testing.T) {
	upstream := ackServer("ACK")
	defer upstream.Close()

	svc, store := newTestService(upstream.URL, 2*time.Second)

	go func() {
		// Callbacks race the Open; retry until the pending entry exists.
		payload := json.RawMessage(`{"order":{"id":"ord-1"}}`)
		for i := 0; i < 100; i++ {
			if store.Resolve("txn-1", correlation.Result{Message: payload}) {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	result, txnID, err := svc.Execute(context.Background(), protocol.ActionSelect, canonicalSelect(t, "txn-1"), "")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if txnID != "txn-1" {
		t.Errorf("transaction id = %q, want txn-1", txnID)
	}
	if string(result.Message) != `{"order":{"id":"ord-1"}}` {
		t.Errorf("unexpected payload: %s", result.Message)
	}
	if store.Count() != 0 {
		t.Errorf("store should be empty after resolution, has %d", store.Count())
	}
}

func TestExecute_Timeout(t *testing.T) {
	upstream := ackServer("ACK")
	defer upstream.Close()

	svc, store := newTestService(upstream.URL, 60*time.Millisecond)

	_, _, err := svc.Execute(context.Background(), protocol.ActionSelect, canonicalSelect(t, "txn-t"), "")
	var te *correlation.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if apiErr := classify(err); apiErr.Status != http.StatusGatewayTimeout {
		t.Errorf("timeout should map to 504, got %d", apiErr.Status)
	}
	if store.Count() != 0 {
		t.Errorf("expired entry should be removed, store has %d", store.Count())
	}
}

func TestExecute_NackCancelsCorrelation(t *testing.T) {
	upstream := ackServer("NACK")
	defer upstream.Close()

	svc, store := newTestService(upstream.URL, 2*time.Second)

	_, _, err := svc.Execute(context.Background(), protocol.ActionSelect, canonicalSelect(t, "txn-n"), "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadGateway || apiErr.Code != CodeUpstreamError {
		t.Errorf("got %d/%s, want 502/%s", apiErr.Status, apiErr.Code, CodeUpstreamError)
	}
	if store.Count() != 0 {
		t.Errorf("rejected correlation should be cancelled, store has %d", store.Count())
	}
}

func TestExecute_UnknownAckTreatedAsReject(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`17`))
	}))
	defer upstream.Close()

	svc, store := newTestService(upstream.URL, 2*time.Second)

	_, _, err := svc.Execute(context.Background(), protocol.ActionSelect, canonicalSelect(t, "txn-u"), "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadGateway {
		t.Errorf("unknown ack should map to 502, got %d", apiErr.Status)
	}
	if store.Count() != 0 {
		t.Errorf("store should be empty, has %d", store.Count())
	}
}

func TestExecute_DispatchNetworkError(t *testing.T) {
	upstream := ackServer("ACK")
	upstream.Close() // connection refused

	svc, store := newTestService(upstream.URL, 2*time.Second)

	_, _, err := svc.Execute(context.Background(), protocol.ActionSelect, canonicalSelect(t, "txn-x"), "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusInternalServerError || apiErr.Code != CodeInternal {
		t.Errorf("network failure should map to 500/%s, got %d/%s", CodeInternal, apiErr.Status, apiErr.Code)
	}
	if store.Count() != 0 {
		t.Errorf("nothing should have been opened, store has %d", store.Count())
	}
}

func TestExecute_UpstreamHTTPErrorDetails(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":{"error":{"code":"30000","message":"invalid order","paths":"message.order.items, context.domain"}}}`))
	}))
	defer upstream.Close()

	svc, _ := newTestService(upstream.URL, 2*time.Second)

	_, _, err := svc.Execute(context.Background(), protocol.ActionSelect, canonicalSelect(t, "txn-e"), "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", apiErr.Status)
	}
	if len(apiErr.Details) != 2 {
		t.Fatalf("expected 2 details from paths, got %d", len(apiErr.Details))
	}
	if apiErr.Details[0].Field != "message.order.items" || apiErr.Details[1].Field != "context.domain" {
		t.Errorf("unexpected detail fields: %+v", apiErr.Details)
	}
}

func TestExecute_DuplicateCorrelation(t *testing.T) {
	upstream := ackServer("ACK")
	defer upstream.Close()

	svc, store := newTestService(upstream.URL, 2*time.Second)
	if _, err := store.Open("txn-d", protocol.ActionSelect); err != nil {
		t.Fatalf("pre-open: %v", err)
	}

	_, _, err := svc.Execute(context.Background(), protocol.ActionSelect, canonicalSelect(t, "txn-d"), "")
	if !errors.Is(err, correlation.ErrDuplicateTransaction) {
		t.Fatalf("expected ErrDuplicateTransaction, got %v", err)
	}
	if apiErr := classify(err); apiErr.Status != http.StatusConflict || apiErr.Code != CodeDuplicate {
		t.Errorf("duplicate should map to 409/%s, got %d/%s", CodeDuplicate, apiErr.Status, apiErr.Code)
	}
}

func TestExecute_BusinessErrorCallback(t *testing.T) {
	upstream := ackServer("ACK")
	defer upstream.Close()

	svc, store := newTestService(upstream.URL, 2*time.Second)

	go func() {
		res := correlation.Result{Error: &protocol.Error{Code: "40002", Message: "offer no longer available"}}
		for i := 0; i < 100; i++ {
			if store.Resolve("txn-b", res) {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	_, _, err := svc.Execute(context.Background(), protocol.ActionSelect, canonicalSelect(t, "txn-b"), "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Code != "40002" {
		t.Errorf("business error should map to 400 with the callback code, got %d/%s", apiErr.Status, apiErr.Code)
	}
}
