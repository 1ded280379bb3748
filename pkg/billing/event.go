// Package billing implements the billing-platform webhook half of §6
// External Interfaces: signature verification plus the `sale.approved` /
// `cart.abandonment` handling that correlates a payment event to a Thread
// and drives it through the Response Processor. Grounded on the Ingress
// Dispatcher's (pkg/dispatch) decide-and-act shape — resolve state, take
// the per-thread lock, execute an action list — narrowed to the subset of
// steps a billing event needs instead of the full inbound-message pipeline.
package billing

import "encoding/json"

// EventSaleApproved and EventCartAbandonment are the two event kinds §6
// gives explicit handling for; any other value falls through to
// Service.handleUnknown, which persists and ignores it.
const (
	EventSaleApproved    = "sale.approved"
	EventCartAbandonment = "cart.abandonment"
)

// Event is the billing platform's webhook payload (§6: "POST JSON with
// fields {event, order_id, buyer_email, buyer_phone, value, product_id,
// signature}"). BuyerEmail/BuyerPhone are pointers because either may be
// absent — correlation falls back to whichever is present.
type Event struct {
	EventKind  string   `json:"event"`
	OrderID    string   `json:"order_id"`
	BuyerEmail *string  `json:"buyer_email,omitempty"`
	BuyerPhone *string  `json:"buyer_phone,omitempty"`
	Value      float64  `json:"value"`
	ProductID  string   `json:"product_id,omitempty"`
	Signature  string   `json:"signature,omitempty"`
	raw        json.RawMessage
}

// ParseEvent decodes the raw webhook body into an Event, retaining the raw
// bytes for SalesEvent.RawPayload.
func ParseEvent(body []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, err
	}
	e.raw = json.RawMessage(append([]byte(nil), body...))
	return &e, nil
}

// Raw returns the original JSON body, for durable storage in SalesEvent.
func (e *Event) Raw() json.RawMessage {
	return e.raw
}
