// Package models contains the plain domain types persisted by the Store.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Contact is a person identified by a normalized E.164 phone number. It is
// created lazily on first inbound from an unknown phone and is otherwise
// immutable except for profile fields and order aggregates.
type Contact struct {
	ID         uuid.UUID
	Phone      string
	Email      *string
	Name       *string
	OrderCount int
	OrderValue float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
