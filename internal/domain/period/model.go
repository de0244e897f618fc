// Package period owns the per-branch accounting period lifecycle:
// OPEN → CLOSED → OPEN (reopen) → CLOSED (revision+1) → …
// There is no terminal state; each reopen/close cycle bumps the revision.
package period

import (
	"time"

	"brigata/internal/core/id"
)

// Status of an inventory period.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// InventoryPeriod is one branch's accounting interval.
//
// Revision starts at 1 and is the revision the current/next close writes.
// ClosedAt records the first successful close; a close of a previously
// closed period increments the revision before writing rows.
type InventoryPeriod struct {
	ID       id.ID  `db:"id" json:"id"`
	OrgID    id.ID  `db:"org_id" json:"orgId"`
	BranchID id.ID  `db:"branch_id" json:"branchId"`
	StartsAt time.Time `db:"starts_at" json:"startsAt"`
	EndsAt   time.Time `db:"ends_at" json:"endsAt"`
	Status   Status    `db:"status" json:"status"`
	Revision int       `db:"revision" json:"revision"`

	ClosedAt  *time.Time `db:"closed_at" json:"closedAt,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
}

// Contains reports whether t falls within the period boundaries.
func (p *InventoryPeriod) Contains(t time.Time) bool {
	return !t.Before(p.StartsAt) && t.Before(p.EndsAt)
}

// EventType classifies period audit events.
type EventType string

const (
	EventCreated         EventType = "CREATED"
	EventClosed          EventType = "CLOSED"
	EventReopened        EventType = "REOPENED"
	EventOverrideUsed    EventType = "OVERRIDE_USED"
	EventExportGenerated EventType = "EXPORT_GENERATED"
)

// Event is one row of the append-only period audit trail.
// Reason is required for REOPENED and OVERRIDE_USED.
type Event struct {
	ID       id.ID     `db:"id" json:"id"`
	PeriodID id.ID     `db:"period_id" json:"periodId"`
	Type     EventType `db:"event_type" json:"type"`
	Actor    string    `db:"actor" json:"actor"`
	Reason   string    `db:"reason" json:"reason,omitempty"`

	Metadata  map[string]any `db:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"createdAt"`
}

// NewEvent creates an event row with a generated id.
func NewEvent(periodID id.ID, eventType EventType, actor, reason string) *Event {
	return &Event{
		ID:        id.New(),
		PeriodID:  periodID,
		Type:      eventType,
		Actor:     actor,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
}

// WithMetadata attaches metadata to the event.
func (e *Event) WithMetadata(key string, value any) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value
	return e
}
