package dto

import (
	"time"

	"brigata/internal/domain/period"
)

// CreatePeriodRequest is the body for POST /periods.
type CreatePeriodRequest struct {
	OrgID    string    `json:"orgId" binding:"required,uuid"`
	BranchID string    `json:"branchId" binding:"required,uuid"`
	StartsAt time.Time `json:"startsAt" binding:"required"`
	EndsAt   time.Time `json:"endsAt" binding:"required"`
}

// ReopenPeriodRequest is the body for POST /periods/:id/reopen.
type ReopenPeriodRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// PeriodResponse wraps a period with the event the operation produced.
type PeriodResponse struct {
	Period *period.InventoryPeriod `json:"period"`
	Event  *period.Event           `json:"event,omitempty"`
}

// PostGLRequest is the body for POST /periods/:id/gl-entries.
type PostGLRequest struct {
	// Revision selects the snapshot revision to post; 0 means latest.
	Revision int `json:"revision,omitempty"`
}

// PostGLResponse reports the resulting GL entry.
type PostGLResponse struct {
	EntryID  string `json:"entryId,omitempty"`
	Revision int    `json:"revision"`
	Posted   bool   `json:"posted"`
}
