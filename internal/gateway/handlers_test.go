package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/onixgrid/bapbridge/internal/correlation"
	"github.com/onixgrid/bapbridge/internal/normalize"
)

func newTestRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandlers(svc, discardLogger()).Register(r)
	return r
}

func TestHandle_InvalidJSON(t *testing.T) {
	svc, _ := newTestService("http://unused.invalid", time.Second)
	r := newTestRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/select", strings.NewReader(`{not json`))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var resp struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Success || resp.Error.Code != CodeValidation {
		t.Errorf("got %+v, want success=false code=%s", resp, CodeValidation)
	}
}

func TestHandle_CatalogueWithoutIdentity(t *testing.T) {
	var upstreamHits atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamHits.Add(1)
	}))
	defer upstream.Close()

	svc, _ := newTestService(upstream.URL, time.Second)
	r := newTestRouter(svc)

	body := `{
		"catalogue": {"items": [{"id": "blk-1"}], "offers": [{"id": "off-1", "itemId": "blk-1", "price": {"currency": "INR", "value": "6.20"}}]},
		"customAttributes": {"quantity": 10}
	}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/select", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if !strings.Contains(w.Body.String(), CodeUnauthorized) {
		t.Errorf("body should carry %s: %s", CodeUnauthorized, w.Body.String())
	}
	if upstreamHits.Load() != 0 {
		t.Errorf("upstream should never be contacted, got %d hits", upstreamHits.Load())
	}
}

func TestHandle_SuccessShape(t *testing.T) {
	upstream := ackServer("ACK")
	defer upstream.Close()

	svc, store := newTestService(upstream.URL, 2*time.Second)
	r := newTestRouter(svc)

	go func() {
		payload := json.RawMessage(`{"order":{"id":"ord-9"}}`)
		for i := 0; i < 100; i++ {
			if store.Resolve("txn-h", correlation.Result{Message: payload}) {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	body := `{"context":{"transaction_id":"txn-h"},"message":{"order":{"items":[{"id":"blk-1","quantity":5,"price":"6.20"}]}}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/select", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Success       bool   `json:"success"`
		TransactionID string `json:"transaction_id"`
		Data          struct {
			Message json.RawMessage `json:"message"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.TransactionID != "txn-h" {
		t.Errorf("got %+v, want success=true transaction_id=txn-h", resp)
	}
	if !strings.Contains(string(resp.Data.Message), "ord-9") {
		t.Errorf("data.message should carry the callback payload: %s", resp.Data.Message)
	}
}

func TestClassify_Taxonomy(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", &normalize.ValidationError{Msg: "bad"}, http.StatusBadRequest, CodeValidation},
		{"unauthorized", normalize.ErrUnauthorized, http.StatusUnauthorized, CodeUnauthorized},
		{"no buyer profile", normalize.ErrNoBuyerProfile, http.StatusForbidden, CodeNoBuyerProfile},
		{"lookup failed", &normalize.LookupError{Err: errTest}, http.StatusInternalServerError, CodeProfileLookup},
		{"duplicate", correlation.ErrDuplicateTransaction, http.StatusConflict, CodeDuplicate},
		{"timeout", &correlation.TimeoutError{}, http.StatusGatewayTimeout, CodeTimeout},
		{"unknown", errTest, http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := classify(tt.err)
			if apiErr.Status != tt.wantStatus || apiErr.Code != tt.wantCode {
				t.Errorf("classify(%v) = %d/%s, want %d/%s", tt.err, apiErr.Status, apiErr.Code, tt.wantStatus, tt.wantCode)
			}
		})
	}
}

var errTest = &testError{}

type testError struct{}

func (*testError) Error() string { return "boom" }
