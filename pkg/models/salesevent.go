package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SalesEvent is an immutable record of a billing-platform webhook.
// It is consulted by §6 handling, not by core orchestration, except to
// trigger a post-purchase stage transition.
type SalesEvent struct {
	ID         uuid.UUID
	Source     string
	EventKind  string
	OrderID    string
	BuyerEmail *string
	BuyerPhone *string
	Value      float64
	RawPayload json.RawMessage
	ContactID  *uuid.UUID
	CreatedAt  time.Time
}
