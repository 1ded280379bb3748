package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/salesbroker/funnelbroker/pkg/models"
)

const salesEventColumns = `id, source, event_kind, order_id, buyer_email, buyer_phone, value, raw_payload, contact_id, created_at`

func scanSalesEvent(row *sql.Row) (*models.SalesEvent, error) {
	var e models.SalesEvent
	var raw []byte
	err := row.Scan(&e.ID, &e.Source, &e.EventKind, &e.OrderID, &e.BuyerEmail, &e.BuyerPhone, &e.Value, &raw, &e.ContactID, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.RawPayload = raw
	return &e, nil
}

// RecordSalesEvent persists a billing webhook idempotently: redelivery of the
// same (source, event_kind, order_id) triple returns the originally stored
// row untouched rather than creating a duplicate (§8 idempotence property).
func (s *Store) RecordSalesEvent(ctx context.Context, e *models.SalesEvent) (*models.SalesEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO sales_events (id, source, event_kind, order_id, buyer_email, buyer_phone, value, raw_payload, contact_id)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (source, event_kind, order_id) DO UPDATE SET source = EXCLUDED.source
		RETURNING `+salesEventColumns,
		e.Source, e.EventKind, e.OrderID, e.BuyerEmail, e.BuyerPhone, e.Value, []byte(e.RawPayload), e.ContactID)
	out, err := scanSalesEvent(row)
	if err != nil {
		return nil, fmt.Errorf("record sales event: %w", err)
	}
	return out, nil
}

// SalesEventExists reports whether (source, event_kind, order_id) was
// already recorded, without writing anything.
func (s *Store) SalesEventExists(ctx context.Context, source, eventKind, orderID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM sales_events WHERE source = $1 AND event_kind = $2 AND order_id = $3)`,
		source, eventKind, orderID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check sales event existence: %w", err)
	}
	return exists, nil
}

// WebhookSeen checks whether dedupKey has already been processed for a
// provider, and if not, marks it seen in the same statement — an
// insert-if-absent check-and-set against the webhook_dedup table (§9).
// threadID is nil for webhook deliveries that precede thread resolution
// (e.g. a billing event for an unknown contact).
func (s *Store) WebhookSeen(ctx context.Context, provider, dedupKey string, threadID *uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_dedup (dedup_key, provider, thread_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (dedup_key) DO NOTHING`, dedupKey, provider, threadID)
	if err != nil {
		return false, fmt.Errorf("record webhook dedup key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	// RowsAffected == 0 means the ON CONFLICT DO NOTHING fired: already seen.
	return n == 0, nil
}
