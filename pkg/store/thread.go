package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/salesbroker/funnelbroker/pkg/models"
)

const threadColumns = `id, contact_id, channel, lead_stage, human_takeover, meta, created_at, updated_at`

func scanThread(row *sql.Row) (*models.Thread, error) {
	var t models.Thread
	var metaRaw []byte
	err := row.Scan(&t.ID, &t.ContactID, &t.Channel, &t.LeadStage, &t.HumanTakeover, &metaRaw, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Meta = map[string]any{}
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &t.Meta); err != nil {
			return nil, fmt.Errorf("unmarshal thread meta: %w", err)
		}
	}
	return &t, nil
}

func getOrCreateThread(ctx context.Context, q dbtx, contactID uuid.UUID, channel string) (*models.Thread, error) {
	row := q.QueryRowContext(ctx, `
		INSERT INTO threads (id, contact_id, channel)
		VALUES (gen_random_uuid(), $1, $2)
		ON CONFLICT (contact_id, channel) DO UPDATE SET channel = EXCLUDED.channel
		RETURNING `+threadColumns, contactID, channel)
	th, err := scanThread(row)
	if err != nil {
		return nil, fmt.Errorf("get or create thread: %w", err)
	}
	return th, nil
}

// GetOrCreateThread returns the 1:1 thread for (contact, channel), creating
// it if this is the first inbound on this channel.
func (s *Store) GetOrCreateThread(ctx context.Context, contactID uuid.UUID, channel string) (*models.Thread, error) {
	return getOrCreateThread(ctx, s.db, contactID, channel)
}

func (t *TxStore) GetOrCreateThread(ctx context.Context, contactID uuid.UUID, channel string) (*models.Thread, error) {
	return getOrCreateThread(ctx, t.tx, contactID, channel)
}

func getThread(ctx context.Context, q dbtx, threadID uuid.UUID) (*models.Thread, error) {
	row := q.QueryRowContext(ctx, `SELECT `+threadColumns+` FROM threads WHERE id = $1`, threadID)
	th, err := scanThread(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get thread: %w", err)
	}
	return th, nil
}

// GetThread fetches a thread by id.
func (s *Store) GetThread(ctx context.Context, threadID uuid.UUID) (*models.Thread, error) {
	return getThread(ctx, s.db, threadID)
}

// FindThreadByContact returns the contact's most recently active thread,
// used by the billing webhook path (§6) to correlate a sale or cart-
// abandonment event to a conversation without knowing which channel it
// came in on. Returns ErrNotFound if the contact has no thread yet.
func (s *Store) FindThreadByContact(ctx context.Context, contactID uuid.UUID) (*models.Thread, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+threadColumns+` FROM threads
		WHERE contact_id = $1
		ORDER BY updated_at DESC
		LIMIT 1`, contactID)
	th, err := scanThread(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find thread by contact: %w", err)
	}
	return th, nil
}

func (t *TxStore) GetThread(ctx context.Context, threadID uuid.UUID) (*models.Thread, error) {
	return getThread(ctx, t.tx, threadID)
}

// mergeMeta merges patch into current: shallow at the top level, except
// list-valued keys (currently only "tags"), which are set-unioned rather
// than overwritten, per §4.1.
func mergeMeta(current, patch map[string]any) map[string]any {
	out := make(map[string]any, len(current)+len(patch))
	for k, v := range current {
		out[k] = v
	}
	for k, v := range patch {
		if k == models.MetaTags {
			out[k] = unionStringSlices(toStringSlice(current[k]), toStringSlice(v))
			continue
		}
		out[k] = v
	}
	return out
}

func toStringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func unionStringSlices(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func updateThreadMetaAndStage(ctx context.Context, q dbtx, threadID uuid.UUID, stage string, metaPatch map[string]any) (*models.Thread, error) {
	row := q.QueryRowContext(ctx, `SELECT meta FROM threads WHERE id = $1 FOR UPDATE`, threadID)
	var currentRaw []byte
	if err := row.Scan(&currentRaw); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock thread meta: %w", err)
	}
	current := map[string]any{}
	if len(currentRaw) > 0 {
		if err := json.Unmarshal(currentRaw, &current); err != nil {
			return nil, fmt.Errorf("unmarshal current meta: %w", err)
		}
	}

	merged := mergeMeta(current, metaPatch)
	merged[models.MetaStageID] = stage // kept in sync for backward-compatible reads; never authoritative

	mergedRaw, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("marshal merged meta: %w", err)
	}

	row = q.QueryRowContext(ctx, `
		UPDATE threads SET lead_stage = $2, meta = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+threadColumns, threadID, stage, mergedRaw)
	th, err := scanThread(row)
	if err != nil {
		return nil, fmt.Errorf("update thread meta and stage: %w", err)
	}
	return th, nil
}

// UpdateThreadMetaAndStage merges metaPatch into the thread's meta (shallow,
// set-union for "tags") and sets lead_stage, in a transaction of its own (a
// locking read, then the update) outside any caller transaction. Use TxStore.UpdateThreadMetaAndStage instead when this
// must commit atomically with an appended message (§4.1, §4.8).
func (s *Store) UpdateThreadMetaAndStage(ctx context.Context, threadID uuid.UUID, stage string, metaPatch map[string]any) (*models.Thread, error) {
	var result *models.Thread
	err := s.RunInTx(ctx, func(tx *TxStore) error {
		var err error
		result, err = tx.UpdateThreadMetaAndStage(ctx, threadID, stage, metaPatch)
		return err
	})
	return result, err
}

func (t *TxStore) UpdateThreadMetaAndStage(ctx context.Context, threadID uuid.UUID, stage string, metaPatch map[string]any) (*models.Thread, error) {
	return updateThreadMetaAndStage(ctx, t.tx, threadID, stage, metaPatch)
}

func setHumanTakeover(ctx context.Context, q dbtx, threadID uuid.UUID, takeover bool) error {
	_, err := q.ExecContext(ctx, `UPDATE threads SET human_takeover = $2, updated_at = now() WHERE id = $1`, threadID, takeover)
	if err != nil {
		return fmt.Errorf("set human takeover: %w", err)
	}
	return nil
}

// SetHumanTakeover flips the human_takeover gate for a thread.
func (s *Store) SetHumanTakeover(ctx context.Context, threadID uuid.UUID, takeover bool) error {
	return setHumanTakeover(ctx, s.db, threadID, takeover)
}

func (t *TxStore) SetHumanTakeover(ctx context.Context, threadID uuid.UUID, takeover bool) error {
	return setHumanTakeover(ctx, t.tx, threadID, takeover)
}

// ListThreads returns a filtered, paginated page of threads for the
// read-model endpoints (§6), newest-updated first. FunnelID/LeadStage match
// against meta/lead_stage exactly when non-empty; HumanTakeover filters only
// when non-nil. Limit defaults to 20 when <= 0.
func (s *Store) ListThreads(ctx context.Context, filter models.ThreadFilter) (*models.ThreadListResult, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	where := "WHERE true"
	args := []any{}
	if filter.FunnelID != "" {
		args = append(args, filter.FunnelID)
		where += fmt.Sprintf(" AND meta->>'funnel_id' = $%d", len(args))
	}
	if filter.LeadStage != "" {
		args = append(args, filter.LeadStage)
		where += fmt.Sprintf(" AND lead_stage = $%d", len(args))
	}
	if filter.HumanTakeover != nil {
		args = append(args, *filter.HumanTakeover)
		where += fmt.Sprintf(" AND human_takeover = $%d", len(args))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM threads `+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count threads: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+threadColumns+` FROM threads `+where+`
		ORDER BY updated_at DESC
		LIMIT $`+fmt.Sprint(len(args)-1)+` OFFSET $`+fmt.Sprint(len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	threads := []*models.Thread{}
	for rows.Next() {
		var t models.Thread
		var metaRaw []byte
		if err := rows.Scan(&t.ID, &t.ContactID, &t.Channel, &t.LeadStage, &t.HumanTakeover, &metaRaw, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan thread row: %w", err)
		}
		t.Meta = map[string]any{}
		if len(metaRaw) > 0 {
			if err := json.Unmarshal(metaRaw, &t.Meta); err != nil {
				return nil, fmt.Errorf("unmarshal thread meta: %w", err)
			}
		}
		threads = append(threads, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate thread rows: %w", err)
	}

	return &models.ThreadListResult{Threads: threads, TotalCount: total, Limit: limit, Offset: offset}, nil
}
