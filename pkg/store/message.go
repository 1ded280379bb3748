package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/salesbroker/funnelbroker/pkg/models"
)

const messageColumns = `id, thread_id, role, is_human, content, created_at`

func scanMessage(row *sql.Row) (*models.Message, error) {
	var m models.Message
	err := row.Scan(&m.ID, &m.ThreadID, &m.Role, &m.IsHuman, &m.Content, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func appendMessage(ctx context.Context, q dbtx, threadID uuid.UUID, role models.MessageRole, content string, isHuman bool) (*models.Message, error) {
	// created_at is clamped to be >= the last message in the thread so that
	// per-thread ordering stays monotonic non-decreasing even under clock
	// skew between concurrent writers (which the per-thread lock otherwise
	// already rules out, but costs nothing to guard against here too).
	row := q.QueryRowContext(ctx, `
		INSERT INTO messages (id, thread_id, role, is_human, content, created_at)
		VALUES (
			gen_random_uuid(), $1, $2, $3, $4,
			GREATEST(now(), COALESCE((SELECT max(created_at) FROM messages WHERE thread_id = $1), now()))
		)
		RETURNING `+messageColumns, threadID, string(role), isHuman, content)
	m, err := scanMessage(row)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return m, nil
}

// AppendMessage persists a single immutable Message row.
func (s *Store) AppendMessage(ctx context.Context, threadID uuid.UUID, role models.MessageRole, content string, isHuman bool) (*models.Message, error) {
	return appendMessage(ctx, s.db, threadID, role, content, isHuman)
}

func (t *TxStore) AppendMessage(ctx context.Context, threadID uuid.UUID, role models.MessageRole, content string, isHuman bool) (*models.Message, error) {
	return appendMessage(ctx, t.tx, threadID, role, content, isHuman)
}

func listMessages(ctx context.Context, q dbtx, threadID uuid.UUID, limit int) ([]*models.Message, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM (
			SELECT `+messageColumns+` FROM messages
			WHERE thread_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent ORDER BY created_at ASC`, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Role, &m.IsHuman, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListMessages returns up to limit most recent messages for a thread, in
// chronological order — the bounded history window fed to the LLM Client.
func (s *Store) ListMessages(ctx context.Context, threadID uuid.UUID, limit int) ([]*models.Message, error) {
	return listMessages(ctx, s.db, threadID, limit)
}

func (t *TxStore) ListMessages(ctx context.Context, threadID uuid.UUID, limit int) ([]*models.Message, error) {
	return listMessages(ctx, t.tx, threadID, limit)
}
