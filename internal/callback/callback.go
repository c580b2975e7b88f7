// Package callback receives the asynchronous results the upstream
// counterparty posts back. Every inbound callback is acknowledged with a
// fixed ACK regardless of whether anyone is still waiting for it; the
// confirmation callback additionally triggers best-effort finalization
// off the response path.
package callback

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/onixgrid/bapbridge/internal/correlation"
	"github.com/onixgrid/bapbridge/internal/orders"
	"github.com/onixgrid/bapbridge/internal/protocol"
	"github.com/onixgrid/bapbridge/internal/settlement"
)

// Names of the callback endpoints served, one per asynchronous result
// type plus the auxiliary lifecycle events.
var Names = []string{
	"on_select", "on_init", "on_confirm", "on_status",
	"on_update", "on_rating", "on_support", "on_track", "on_cancel",
}

// finalizeTimeout bounds the detached finalization work; it is
// independent of the HTTP response already sent.
const finalizeTimeout = 30 * time.Second

// Notifier dispatches the confirmation notification.
type Notifier interface {
	SendConfirmation(ctx context.Context, transactionID string, order *protocol.Order) error
}

// Broadcaster pushes callback events to realtime subscribers.
type Broadcaster interface {
	Broadcast(event string, data any)
}

// Receiver matches inbound callbacks to pending correlations and runs
// confirmation finalization.
type Receiver struct {
	correlations *correlation.Store
	orders       orders.Store
	settlements  settlement.Store
	notifier     Notifier
	broadcaster  Broadcaster
	wheeling     float64
	log          *slog.Logger
}

func NewReceiver(store *correlation.Store, orderStore orders.Store, settlements settlement.Store,
	notifier Notifier, broadcaster Broadcaster, wheelingCharge float64, log *slog.Logger) *Receiver {
	return &Receiver{
		correlations: store,
		orders:       orderStore,
		settlements:  settlements,
		notifier:     notifier,
		broadcaster:  broadcaster,
		wheeling:     wheelingCharge,
		log:          log,
	}
}

// payload is the wire shape of every inbound callback.
type payload struct {
	Context *protocol.Context `json:"context"`
	Message json.RawMessage   `json:"message"`
	Error   *protocol.Error   `json:"error"`
}

// Receive processes one callback. The returned ack is always
// "ACK" regardless of matching, so the sender never learns whether the
// caller already timed out.
func (r *Receiver) Receive(name string, body []byte) protocol.AckResponse {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		r.log.Warn("malformed callback body", "callback", name, "error", err)
		cbReceived.WithLabelValues(name, "malformed").Inc()
		return protocol.NewAckResponse("ACK")
	}

	txnID := ""
	if p.Context != nil {
		txnID = p.Context.TransactionID
	}
	log := r.log.With("callback", name, "transaction_id", txnID)

	matched := false
	if txnID != "" {
		matched = r.correlations.Resolve(txnID, correlation.Result{
			Context: p.Context,
			Message: p.Message,
			Error:   p.Error,
		})
	}
	if matched {
		cbReceived.WithLabelValues(name, "matched").Inc()
	} else {
		// Late, duplicate, or unsolicited: acknowledged all the same.
		cbReceived.WithLabelValues(name, "unmatched").Inc()
		log.Debug("no pending correlation for callback")
	}

	if r.broadcaster != nil {
		r.broadcaster.Broadcast(name, map[string]any{
			"transactionId": txnID,
			"matched":       matched,
		})
	}

	if name == "on_confirm" && p.Error == nil {
		if order := extractOrder(p.Message); order != nil {
			go r.finalize(txnID, order, p.Message)
		}
	}

	return protocol.NewAckResponse("ACK")
}

func extractOrder(message json.RawMessage) *protocol.Order {
	if len(message) == 0 {
		return nil
	}
	var m protocol.Message
	if err := json.Unmarshal(message, &m); err != nil {
		return nil
	}
	return m.Order
}

// finalize persists the order record, creates the settlement entry, and
// dispatches the confirmation notification. The three effects are
// independent; a failure in any one is logged and the rest still run.
func (r *Receiver) finalize(txnID string, order *protocol.Order, raw json.RawMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	log := r.log.With("transaction_id", txnID)
	totalQty := order.TotalQuantity()

	if err := r.orders.Save(ctx, &orders.Record{
		TransactionID: txnID,
		OrderID:       order.ID,
		Status:        order.Status,
		TotalQuantity: totalQty,
		TotalCost:     protocol.FormatDecimal(order.TotalCost(r.wheeling)),
		Payload:       raw,
	}); err != nil {
		cbFinalizeErrors.WithLabelValues("order").Inc()
		log.Error("order persistence failed", "error", err)
	}

	rec := &settlement.Record{
		TransactionID: txnID,
		Quantity:      totalQty,
		Amount:        protocol.FormatDecimal(order.TotalCost(r.wheeling)),
		Role:          settlement.RoleSeller,
	}
	if len(order.Items) > 0 {
		rec.ItemRef = order.Items[0].ID
	}
	if order.ProviderAttributes != nil {
		rec.CounterpartyPlatformID = order.ProviderAttributes.PlatformID
		rec.CounterpartyDomainID = order.ProviderAttributes.DomainID
	}
	if err := r.settlements.Create(ctx, rec); err != nil {
		if err == settlement.ErrDuplicate {
			log.Debug("settlement already recorded")
		} else {
			cbFinalizeErrors.WithLabelValues("settlement").Inc()
			log.Error("settlement creation failed", "error", err)
		}
	}

	if err := r.notifier.SendConfirmation(ctx, txnID, order); err != nil {
		cbFinalizeErrors.WithLabelValues("notify").Inc()
		log.Warn("confirmation notification failed", "error", err)
	}
}
