// Package protocol defines the canonical envelope shapes exchanged with the
// ONIX network: a context block identifying the parties and the transaction,
// and a message block carrying the order payload for the action.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Action is a protocol action dispatched to the upstream counterparty.
type Action string

const (
	ActionSelect  Action = "select"
	ActionInit    Action = "init"
	ActionConfirm Action = "confirm"
	ActionStatus  Action = "status"
)

// Actions lists the synchronous actions the bridge exposes.
var Actions = []Action{ActionSelect, ActionInit, ActionConfirm, ActionStatus}

// CallbackName returns the asynchronous result name for an action,
// e.g. "on_select" for "select".
func (a Action) CallbackName() string {
	return "on_" + string(a)
}

// Valid reports whether a is one of the dispatchable actions.
func (a Action) Valid() bool {
	switch a {
	case ActionSelect, ActionInit, ActionConfirm, ActionStatus:
		return true
	}
	return false
}

// Order statuses
const (
	StatusInitialized = "INITIALIZED"
	StatusConfirmed   = "CONFIRMED"
)

// Payment statuses
const (
	PaymentPending = "PENDING"
	PaymentPaid    = "PAID"
)

// Context identifies one protocol exchange: who is talking, about which
// transaction, and under which protocol version.
type Context struct {
	Domain        string `json:"domain"`
	Action        string `json:"action"`
	CoreVersion   string `json:"core_version"`
	BapID         string `json:"bap_id"`
	BapURI        string `json:"bap_uri,omitempty"`
	BppID         string `json:"bpp_id,omitempty"`
	BppURI        string `json:"bpp_uri,omitempty"`
	TransactionID string `json:"transaction_id"`
	MessageID     string `json:"message_id"`
	Timestamp     string `json:"timestamp"`
	TTL           string `json:"ttl,omitempty"`
}

// Envelope is the canonical request/response shape all normalized input
// converges to before dispatch.
type Envelope struct {
	Context Context `json:"context"`
	Message Message `json:"message"`
}

// Message carries the action-specific payload.
type Message struct {
	Order *Order `json:"order,omitempty"`
}

// Error is a business-level protocol error carried in callbacks and
// upstream replies.
type Error struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Paths   string `json:"paths,omitempty"`
}

// Ack is the synchronous accept/reject marker in upstream replies.
type Ack struct {
	Status string `json:"status"`
}

// AckResponse is the fixed acknowledgement shape returned to callback
// senders and by compliant counterparties.
type AckResponse struct {
	Message struct {
		Ack Ack `json:"ack"`
	} `json:"message"`
}

// NewAckResponse builds an AckResponse with the given status ("ACK"/"NACK").
func NewAckResponse(status string) AckResponse {
	var r AckResponse
	r.Message.Ack.Status = status
	return r
}

// TradeParty identifies one settlement party: the network platform it
// belongs to and its id within the utility domain (consumer account or
// meter number).
type TradeParty struct {
	PlatformID string `json:"platformId"`
	DomainID   string `json:"domainId"`
}

// Blank reports whether the party is missing or effectively empty.
// Whitespace-only identifiers count as missing.
func (p *TradeParty) Blank() bool {
	return p == nil ||
		strings.TrimSpace(p.PlatformID) == "" ||
		strings.TrimSpace(p.DomainID) == ""
}

// Provider is the selling platform's provider entry.
type Provider struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// OrderItem is one order line: an energy block of some quantity at a unit
// price, optionally tied to the offer it was selected from.
type OrderItem struct {
	ID       string  `json:"id"`
	OfferID  string  `json:"offerId,omitempty"`
	Quantity float64 `json:"quantity"`
	Price    string  `json:"price,omitempty"` // unit price per kWh, decimal string
}

// Order is the order/document payload embedded in select, init, confirm
// and their callbacks.
type Order struct {
	ID                 string       `json:"id,omitempty"`
	Status             string       `json:"status,omitempty"`
	Provider           *Provider    `json:"provider,omitempty"`
	Items              []OrderItem  `json:"items"`
	BuyerAttributes    *TradeParty  `json:"buyerAttributes,omitempty"`
	ProviderAttributes *TradeParty  `json:"providerAttributes,omitempty"`
	Fulfillment        *Fulfillment `json:"fulfillment,omitempty"`
	Payment            *Payment     `json:"payment,omitempty"`
	Quote              *Quote       `json:"quote,omitempty"`
}

// TotalQuantity sums per-line quantities.
func (o *Order) TotalQuantity() float64 {
	var total float64
	for _, item := range o.Items {
		total += item.Quantity
	}
	return total
}

// TotalCost sums quantity × unit price across lines, plus the per-unit
// wheeling surcharge on the total quantity.
func (o *Order) TotalCost(wheelingPerUnit float64) float64 {
	var total float64
	for _, item := range o.Items {
		total += item.Quantity * ParseDecimal(item.Price)
	}
	return total + wheelingPerUnit*o.TotalQuantity()
}

// Fulfillment describes how the energy is delivered.
type Fulfillment struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type,omitempty"` // e.g. "WHEELING"
}

// Payment is the payment sub-block attached at init.
type Payment struct {
	ID     string `json:"id,omitempty"`
	Type   string `json:"type,omitempty"`
	Status string `json:"status,omitempty"`
}

// Price is a currency/value pair. Values are decimal strings.
type Price struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
}

// QuoteLine is one component of a quote breakup.
type QuoteLine struct {
	Title string `json:"title"`
	Price Price  `json:"price"`
}

// Quote is the computed monetary total for an order.
type Quote struct {
	Price   Price       `json:"price"`
	Breakup []QuoteLine `json:"breakup,omitempty"`
}

// NowTimestamp formats the current time the way envelope contexts carry it.
func NowTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// ParseDecimal converts a decimal string to float64, returning 0 for empty
// or malformed input. Quote math tolerates rounding; settlement records
// store the formatted result, not the float.
func ParseDecimal(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

// FormatDecimal renders a float as a two-decimal money string.
func FormatDecimal(f float64) string {
	return fmt.Sprintf("%.2f", f)
}
