// Package normalize converts the caller-facing request shapes into
// canonical protocol envelopes.
//
// Three shapes are recognized, classified once at the boundary:
// - canonical envelope (context + message), passed through after validation
// - catalogue shorthand (select only), expanded using the caller's buyer profile
// - order shorthand (init/confirm), the previous step's order plus this step's delta
package normalize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/onixgrid/bapbridge/internal/idgen"
	"github.com/onixgrid/bapbridge/internal/profile"
	"github.com/onixgrid/bapbridge/internal/protocol"
)

// Errors
var (
	ErrUnauthorized   = errors.New("caller identity required for catalogue requests")
	ErrNoBuyerProfile = errors.New("no verified buyer profile for caller")
)

// ValidationError reports a malformed or incomplete request shape.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalidf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// LookupError wraps a profile lookup failure that is neither "absent"
// nor "unverified".
type LookupError struct {
	Err error
}

func (e *LookupError) Error() string { return "profile lookup failed: " + e.Err.Error() }
func (e *LookupError) Unwrap() error { return e.Err }

// Catalogue is the inline seller catalogue carried by the select shorthand.
type Catalogue struct {
	Provider           *protocol.Provider   `json:"provider,omitempty"`
	ProviderAttributes *protocol.TradeParty `json:"providerAttributes,omitempty"`
	Items              []CatalogueItem      `json:"items"`
	Offers             []Offer              `json:"offers"`
}

// CatalogueItem is a sellable unit in the catalogue.
type CatalogueItem struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Offer prices a catalogue item.
type Offer struct {
	ID     string         `json:"id"`
	ItemID string         `json:"itemId"`
	Price  protocol.Price `json:"price"`
}

// CustomAttributes carries the buyer's choices for a catalogue select.
type CustomAttributes struct {
	Quantity        float64 `json:"quantity"`
	SelectedOfferID string  `json:"selectedOfferId,omitempty"`
}

// Request is the tagged union over the recognized input shapes. Exactly
// one discriminant field group is expected per call; classification
// checks them in precedence order.
type Request struct {
	// Canonical envelope
	Context *protocol.Context `json:"context,omitempty"`
	Message *protocol.Message `json:"message,omitempty"`

	// Catalogue shorthand (select)
	Catalogue        *Catalogue        `json:"catalogue,omitempty"`
	CustomAttributes *CustomAttributes `json:"customAttributes,omitempty"`

	// Order shorthand (init, confirm)
	Order     *protocol.Order `json:"order,omitempty"`
	PaymentID string          `json:"paymentId,omitempty"`
}

// Config carries the envelope context identity and pricing knobs.
type Config struct {
	SubscriberID  string
	SubscriberURI string
	Domain        string
	CoreVersion   string
	TTL           string
	Currency      string
	// WheelingCharge is the per-kWh delivery surcharge added to quotes.
	WheelingCharge float64
}

// Normalizer builds canonical envelopes out of caller requests.
type Normalizer struct {
	profiles profile.Lookup
	cfg      Config
	newID    func() string
}

func New(profiles profile.Lookup, cfg Config) *Normalizer {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	return &Normalizer{profiles: profiles, cfg: cfg, newID: idgen.New}
}

// Normalize classifies the request shape for the given action and
// produces a canonical envelope. subject is the authenticated caller
// identity, "" when anonymous.
func (n *Normalizer) Normalize(ctx context.Context, action protocol.Action, req *Request, subject string) (*protocol.Envelope, error) {
	switch {
	case req.Context != nil && req.Message != nil:
		return n.fromCanonical(action, req)
	case req.Catalogue != nil:
		return n.fromCatalogue(ctx, action, req, subject)
	case req.Order != nil:
		return n.fromOrder(action, req)
	default:
		return nil, invalidf("unrecognized request shape for %s: expected context+message, catalogue, or order", action)
	}
}

func (n *Normalizer) fromCanonical(action protocol.Action, req *Request) (*protocol.Envelope, error) {
	if strings.TrimSpace(req.Context.TransactionID) == "" {
		return nil, invalidf("context.transaction_id is required")
	}
	if action == protocol.ActionConfirm {
		if err := validateSettlementParties(req.Message.Order); err != nil {
			return nil, err
		}
	}
	env := &protocol.Envelope{Context: *req.Context, Message: *req.Message}
	n.stampContext(&env.Context, action)
	return env, nil
}

func (n *Normalizer) fromCatalogue(ctx context.Context, action protocol.Action, req *Request, subject string) (*protocol.Envelope, error) {
	if action != protocol.ActionSelect {
		return nil, invalidf("catalogue shorthand is only valid for select, got %s", action)
	}
	if len(req.Catalogue.Items) == 0 || len(req.Catalogue.Offers) == 0 {
		return nil, invalidf("catalogue must carry at least one item and one offer")
	}
	if req.CustomAttributes == nil || req.CustomAttributes.Quantity <= 0 {
		return nil, invalidf("customAttributes.quantity must be a positive kWh amount")
	}
	if subject == "" {
		return nil, ErrUnauthorized
	}

	buyer, err := n.profiles.FindVerifiedBuyer(ctx, subject)
	if err != nil {
		if errors.Is(err, profile.ErrNoProfile) {
			return nil, ErrNoBuyerProfile
		}
		return nil, &LookupError{Err: err}
	}

	items := matchOffers(req.Catalogue, req.CustomAttributes)
	if len(items) == 0 {
		return nil, invalidf("no offer matches the requested catalogue items")
	}

	order := &protocol.Order{
		Provider:        req.Catalogue.Provider,
		Items:           items,
		BuyerAttributes: &protocol.TradeParty{PlatformID: buyer.PlatformID, DomainID: buyer.DomainID},
	}
	if req.Catalogue.ProviderAttributes != nil {
		order.ProviderAttributes = req.Catalogue.ProviderAttributes
	}

	env := &protocol.Envelope{Message: protocol.Message{Order: order}}
	n.stampContext(&env.Context, action)
	return env, nil
}

func (n *Normalizer) fromOrder(action protocol.Action, req *Request) (*protocol.Envelope, error) {
	if action != protocol.ActionInit && action != protocol.ActionConfirm {
		return nil, invalidf("order shorthand is only valid for init and confirm, got %s", action)
	}
	if len(req.Order.Items) == 0 {
		return nil, invalidf("order must carry at least one item")
	}

	order := *req.Order
	order.Quote = n.buildQuote(&order)

	switch action {
	case protocol.ActionInit:
		order.Status = protocol.StatusInitialized
		order.Payment = &protocol.Payment{
			ID:     req.PaymentID,
			Type:   "PRE-FULFILLMENT",
			Status: protocol.PaymentPending,
		}
		if order.Fulfillment == nil {
			order.Fulfillment = &protocol.Fulfillment{Type: "ENERGY-DELIVERY"}
		}
	case protocol.ActionConfirm:
		if err := validateSettlementParties(&order); err != nil {
			return nil, err
		}
		order.Status = protocol.StatusConfirmed
	}

	env := &protocol.Envelope{Message: protocol.Message{Order: &order}}
	n.stampContext(&env.Context, action)
	return env, nil
}

// matchOffers produces one order line per item with a priced offer. The
// explicitly selected offer wins for the item it references; every other
// item takes the first offer pointing at it.
func matchOffers(cat *Catalogue, attrs *CustomAttributes) []protocol.OrderItem {
	var items []protocol.OrderItem
	for _, it := range cat.Items {
		var matched *Offer
		for i := range cat.Offers {
			off := &cat.Offers[i]
			if off.ItemID != it.ID {
				continue
			}
			if attrs.SelectedOfferID != "" && off.ID == attrs.SelectedOfferID {
				matched = off
				break
			}
			if matched == nil && attrs.SelectedOfferID == "" {
				matched = off
				break
			}
			if matched == nil {
				matched = off
			}
		}
		if matched == nil {
			continue
		}
		items = append(items, protocol.OrderItem{
			ID:       it.ID,
			OfferID:  matched.ID,
			Quantity: attrs.Quantity,
			Price:    matched.Price.Value,
		})
	}
	return items
}

func (n *Normalizer) buildQuote(order *protocol.Order) *protocol.Quote {
	total := order.TotalCost(n.cfg.WheelingCharge)
	quote := &protocol.Quote{
		Price: protocol.Price{Currency: n.cfg.Currency, Value: protocol.FormatDecimal(total)},
	}
	for _, it := range order.Items {
		line := it.Quantity * protocol.ParseDecimal(it.Price)
		quote.Breakup = append(quote.Breakup, protocol.QuoteLine{
			Title: it.ID,
			Price: protocol.Price{Currency: n.cfg.Currency, Value: protocol.FormatDecimal(line)},
		})
	}
	if n.cfg.WheelingCharge > 0 {
		quote.Breakup = append(quote.Breakup, protocol.QuoteLine{
			Title: "wheeling-charge",
			Price: protocol.Price{Currency: n.cfg.Currency, Value: protocol.FormatDecimal(n.cfg.WheelingCharge * order.TotalQuantity())},
		})
	}
	return quote
}

// validateSettlementParties requires both counterparty identifiers on a
// confirm order. Whitespace-only values count as missing, buyer side is
// reported first.
func validateSettlementParties(order *protocol.Order) error {
	if order == nil {
		return invalidf("message.order is required for confirm")
	}
	if order.BuyerAttributes == nil || order.BuyerAttributes.Blank() {
		return invalidf("missing required field: order.buyerAttributes")
	}
	if order.ProviderAttributes == nil || order.ProviderAttributes.Blank() {
		return invalidf("missing required field: order.providerAttributes")
	}
	return nil
}

func (n *Normalizer) stampContext(c *protocol.Context, action protocol.Action) {
	c.Action = string(action)
	if c.Domain == "" {
		c.Domain = n.cfg.Domain
	}
	if c.CoreVersion == "" {
		c.CoreVersion = n.cfg.CoreVersion
	}
	if c.BapID == "" {
		c.BapID = n.cfg.SubscriberID
	}
	if c.BapURI == "" {
		c.BapURI = n.cfg.SubscriberURI
	}
	if c.TransactionID == "" {
		c.TransactionID = n.newID()
	}
	if c.MessageID == "" {
		c.MessageID = n.newID()
	}
	if c.TTL == "" {
		c.TTL = n.cfg.TTL
	}
	c.Timestamp = protocol.NowTimestamp()
}
