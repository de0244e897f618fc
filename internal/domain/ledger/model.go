// Package ledger provides the stock ledger: the append-only system of record
// for every stock movement. Movements are never mutated or deleted;
// corrections are new compensating movements.
package ledger

import (
	"time"

	"brigata/internal/core/id"
	"brigata/internal/core/types"
)

// MovementType classifies a stock movement.
type MovementType string

const (
	MovementReceipt           MovementType = "RECEIPT"
	MovementSaleDepletion     MovementType = "SALE_DEPLETION"
	MovementWaste             MovementType = "WASTE"
	MovementAdjustment        MovementType = "ADJUSTMENT"
	MovementTransferIn        MovementType = "TRANSFER_IN"
	MovementTransferOut       MovementType = "TRANSFER_OUT"
	MovementStocktakeVariance MovementType = "STOCKTAKE_VARIANCE"
)

// Direction of a movement type relative to stock on hand.
type Direction int

const (
	// DirectionInbound increases stock (positive quantity).
	DirectionInbound Direction = iota
	// DirectionOutbound decreases stock (negative quantity).
	DirectionOutbound
	// DirectionSigned takes its direction from the quantity sign
	// (adjustments and stocktake variances go either way).
	DirectionSigned
)

// Direction returns the direction implied by the movement type.
func (t MovementType) Direction() Direction {
	switch t {
	case MovementReceipt, MovementTransferIn:
		return DirectionInbound
	case MovementSaleDepletion, MovementWaste, MovementTransferOut:
		return DirectionOutbound
	default:
		return DirectionSigned
	}
}

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementReceipt, MovementSaleDepletion, MovementWaste,
		MovementAdjustment, MovementTransferIn, MovementTransferOut,
		MovementStocktakeVariance:
		return true
	}
	return false
}

// CostFlagAverageFallback marks movements whose cost was partly priced at the
// weighted-average unit cost because lots were exhausted.
const CostFlagAverageFallback = "ANOMALOUS_COST_FALLBACK"

// StockMovement is one row in the stock ledger.
//
// EffectiveAt is the business event time; RecordedAt is the system write
// time. They differ when corrections are backdated.
type StockMovement struct {
	ID         id.ID        `db:"id" json:"id"`
	OrgID      id.ID        `db:"org_id" json:"orgId"`
	BranchID   id.ID        `db:"branch_id" json:"branchId"`
	ItemID     id.ID        `db:"item_id" json:"itemId"`
	LocationID id.ID        `db:"location_id" json:"locationId"`
	Type       MovementType `db:"movement_type" json:"type"`

	// Quantity is signed: positive for inbound, negative for outbound.
	Quantity types.Quantity `db:"quantity" json:"quantity"`

	// UnitCost is supplied for inbound movements (lot price).
	UnitCost types.Money `db:"unit_cost" json:"unitCost"`

	// AllocatedCost is filled by the costing engine for outbound movements.
	AllocatedCost types.Money `db:"allocated_cost" json:"allocatedCost"`

	EffectiveAt time.Time `db:"effective_at" json:"effectiveAt"`
	RecordedAt  time.Time `db:"recorded_at" json:"recordedAt"`

	// LotID references the lot created by an inbound movement.
	LotID *id.ID `db:"lot_id" json:"lotId,omitempty"`

	// SourceRef links to the originating order, PO, or stocktake.
	SourceRef string `db:"source_ref" json:"sourceRef,omitempty"`

	Reason   string `db:"reason" json:"reason,omitempty"`
	CostFlag string `db:"cost_flag" json:"costFlag,omitempty"`
}

// IsOutbound reports whether the stored quantity decreases stock.
func (m *StockMovement) IsOutbound() bool {
	return m.Quantity.IsNegative()
}

// Lot is a costed quantity of an item received at one time, consumed
// oldest-first. Lots are never deleted; fully consumed lots are retained
// at zero remaining for audit.
type Lot struct {
	ID         id.ID          `db:"id" json:"id"`
	OrgID      id.ID          `db:"org_id" json:"orgId"`
	ItemID     id.ID          `db:"item_id" json:"itemId"`
	LocationID id.ID          `db:"location_id" json:"locationId"`
	ReceivedAt time.Time      `db:"received_at" json:"receivedAt"`
	UnitCost   types.Money    `db:"unit_cost" json:"unitCost"`
	Received   types.Quantity `db:"qty_received" json:"qtyReceived"`
	Remaining  types.Quantity `db:"qty_remaining" json:"qtyRemaining"`
	CreatedAt  time.Time      `db:"created_at" json:"createdAt"`
}

// LotConsumption is the per-lot audit breakdown of one outbound allocation.
// A nil LotID marks the weighted-average fallback draw.
type LotConsumption struct {
	ID         id.ID          `db:"id" json:"id"`
	MovementID id.ID          `db:"movement_id" json:"movementId"`
	LotID      *id.ID         `db:"lot_id" json:"lotId,omitempty"`
	Quantity   types.Quantity `db:"quantity" json:"quantity"`
	UnitCost   types.Money    `db:"unit_cost" json:"unitCost"`
	Cost       types.Money    `db:"cost" json:"cost"`
	CreatedAt  time.Time      `db:"created_at" json:"createdAt"`
}

// ItemLocation identifies one stock dimension within a branch.
type ItemLocation struct {
	ItemID     id.ID `db:"item_id" json:"itemId"`
	LocationID id.ID `db:"location_id" json:"locationId"`
}

// DepletionTotal aggregates actual depletion for one item over a window.
type DepletionTotal struct {
	ItemID   id.ID          `db:"item_id" json:"itemId"`
	Quantity types.Quantity `db:"quantity" json:"quantity"`
	Cost     types.Money    `db:"cost" json:"cost"`
}
