package dto

import (
	"time"

	"brigata/internal/core/types"
	"brigata/internal/domain/ledger"
)

// RecordMovementRequest is the body for POST /movements.
//
// Quantity is a positive magnitude for fixed-direction types; signed types
// (ADJUSTMENT, STOCKTAKE_VARIANCE) keep their sign. UnitCost is required for
// receipts and priced into the lot for every inbound movement.
type RecordMovementRequest struct {
	OrgID      string `json:"orgId" binding:"required,uuid"`
	BranchID   string `json:"branchId" binding:"required,uuid"`
	ItemID     string `json:"itemId" binding:"required,uuid"`
	LocationID string `json:"locationId" binding:"required,uuid"`
	Type       string `json:"type" binding:"required"`

	Quantity types.Quantity `json:"quantity" binding:"required"`
	UnitCost string         `json:"unitCost,omitempty"`

	EffectiveAt time.Time `json:"effectiveAt" binding:"required"`
	SourceRef   string    `json:"sourceRef,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Override    bool      `json:"override,omitempty"`
}

// MovementResponse wraps a movement with its allocation breakdown.
type MovementResponse struct {
	Movement  *ledger.StockMovement  `json:"movement"`
	Breakdown []ledger.LotConsumption `json:"breakdown,omitempty"`
}

// OnHandResponse is the replayed on-hand quantity at a point in time.
type OnHandResponse struct {
	BranchID   string         `json:"branchId"`
	ItemID     string         `json:"itemId"`
	LocationID string         `json:"locationId"`
	At         time.Time      `json:"at"`
	OnHand     types.Quantity `json:"onHand"`
}
