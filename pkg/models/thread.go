package models

import (
	"time"

	"github.com/google/uuid"
)

// MetaFunnelID, MetaStageID, MetaTags and MetaSource are the well-known keys
// the Funnel Detector and Trigger Engine write into Thread.Meta.
//
// lead_stage (the typed column) is authoritative; meta["stage_id"] is kept in
// sync for backward-compatible reads only and is never consulted by the
// Trigger Engine or stage-machine validation.
const (
	MetaFunnelID = "funnel_id"
	MetaStageID  = "stage_id"
	MetaTags     = "tags"
	MetaSource   = "source"
)

// Thread is a 1:1 conversation with a Contact over a single channel.
type Thread struct {
	ID            uuid.UUID
	ContactID     uuid.UUID
	Channel       string
	LeadStage     string // enumerated stage id, or "" meaning unset
	HumanTakeover bool
	Meta          map[string]any
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Tags returns the string slice stored at Meta["tags"], tolerating the
// untyped shape produced by JSON round-tripping.
func (t *Thread) Tags() []string {
	raw, ok := t.Meta[MetaTags]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// FunnelID returns Meta["funnel_id"], or "" if unset.
func (t *Thread) FunnelID() string {
	if v, ok := t.Meta[MetaFunnelID].(string); ok {
		return v
	}
	return ""
}

// ThreadFilter narrows a ListThreads query. Zero values mean "no filter" for
// pointer fields and "default" for Limit/Offset.
type ThreadFilter struct {
	FunnelID      string
	LeadStage     string
	HumanTakeover *bool
	Limit         int
	Offset        int
}

// ThreadListResult is a page of threads alongside the total row count
// matching the filter, for read-model pagination (§6).
type ThreadListResult struct {
	Threads    []*Thread
	TotalCount int
	Limit      int
	Offset     int
}
