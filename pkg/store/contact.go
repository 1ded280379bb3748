package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/salesbroker/funnelbroker/pkg/models"
)

const contactColumns = `id, phone, email, name, order_count, order_value, created_at, updated_at`

func scanContact(row *sql.Row) (*models.Contact, error) {
	var c models.Contact
	err := row.Scan(&c.ID, &c.Phone, &c.Email, &c.Name, &c.OrderCount, &c.OrderValue, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func getOrCreateContact(ctx context.Context, q dbtx, phone string) (*models.Contact, error) {
	row := q.QueryRowContext(ctx, `
		INSERT INTO contacts (id, phone)
		VALUES (gen_random_uuid(), $1)
		ON CONFLICT (phone) DO UPDATE SET phone = EXCLUDED.phone
		RETURNING `+contactColumns, phone)
	c, err := scanContact(row)
	if err != nil {
		return nil, fmt.Errorf("get or create contact: %w", err)
	}
	return c, nil
}

// GetOrCreateContact returns the contact for phone, creating it if this is
// the first inbound from this number.
func (s *Store) GetOrCreateContact(ctx context.Context, phone string) (*models.Contact, error) {
	return getOrCreateContact(ctx, s.db, phone)
}

func (t *TxStore) GetOrCreateContact(ctx context.Context, phone string) (*models.Contact, error) {
	return getOrCreateContact(ctx, t.tx, phone)
}

// GetContact fetches a contact by id, e.g. to resolve the provider-facing
// recipient address for a thread before a scheduled or billing-triggered
// send.
func (s *Store) GetContact(ctx context.Context, id uuid.UUID) (*models.Contact, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id)
	c, err := scanContact(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return c, nil
}

func findContactByEmailOrPhone(ctx context.Context, q dbtx, email, phone *string) (*models.Contact, error) {
	if email == nil && phone == nil {
		return nil, ErrNotFound
	}
	row := q.QueryRowContext(ctx, `
		SELECT `+contactColumns+` FROM contacts
		WHERE ($1::text IS NOT NULL AND email = $1) OR ($2::text IS NOT NULL AND phone = $2)
		ORDER BY (phone = $2) DESC
		LIMIT 1`, email, phone)
	c, err := scanContact(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find contact by email or phone: %w", err)
	}
	return c, nil
}

// FindContactByEmailOrPhone correlates a billing webhook to a contact,
// preferring a phone match over an email match when both are present.
func (s *Store) FindContactByEmailOrPhone(ctx context.Context, email, phone *string) (*models.Contact, error) {
	return findContactByEmailOrPhone(ctx, s.db, email, phone)
}

func recordPurchase(ctx context.Context, q dbtx, contactID uuid.UUID, value float64) error {
	_, err := q.ExecContext(ctx, `
		UPDATE contacts SET order_count = order_count + 1, order_value = order_value + $2, updated_at = now()
		WHERE id = $1`, contactID, value)
	if err != nil {
		return fmt.Errorf("record purchase: %w", err)
	}
	return nil
}

// RecordPurchase increments a contact's order aggregates.
func (s *Store) RecordPurchase(ctx context.Context, contactID uuid.UUID, value float64) error {
	return recordPurchase(ctx, s.db, contactID, value)
}

func (t *TxStore) RecordPurchase(ctx context.Context, contactID uuid.UUID, value float64) error {
	return recordPurchase(ctx, t.tx, contactID, value)
}
