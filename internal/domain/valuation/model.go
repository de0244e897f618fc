// Package valuation builds immutable quantity/value snapshots and movement
// summaries for a period revision. Rows are written once per
// (period, item, [location], revision) and never updated; a new revision is
// a new row set.
package valuation

import (
	"context"
	"time"

	"brigata/internal/core/id"
	"brigata/internal/core/types"
)

// Snapshot is a point-in-time quantity/value record for one item/location
// at a period revision.
type Snapshot struct {
	PeriodID   id.ID          `db:"period_id" json:"periodId"`
	ItemID     id.ID          `db:"item_id" json:"itemId"`
	LocationID id.ID          `db:"location_id" json:"locationId"`
	Revision   int            `db:"revision" json:"revision"`
	Quantity   types.Quantity `db:"quantity" json:"quantity"`
	Value      types.Money    `db:"value" json:"value"`
	CreatedAt  time.Time      `db:"created_at" json:"createdAt"`
}

// MovementSummary aggregates a period's movements per item, split by
// movement class. Input to reconciliation and GL posting.
type MovementSummary struct {
	PeriodID id.ID `db:"period_id" json:"periodId"`
	ItemID   id.ID `db:"item_id" json:"itemId"`
	Revision int   `db:"revision" json:"revision"`

	ReceiptQty    types.Quantity `db:"receipt_qty" json:"receiptQty"`
	ReceiptCost   types.Money    `db:"receipt_cost" json:"receiptCost"`
	DepletionQty  types.Quantity `db:"depletion_qty" json:"depletionQty"`
	DepletionCost types.Money    `db:"depletion_cost" json:"depletionCost"`
	WasteQty      types.Quantity `db:"waste_qty" json:"wasteQty"`
	WasteCost     types.Money    `db:"waste_cost" json:"wasteCost"`
	AdjustmentQty  types.Quantity `db:"adjustment_qty" json:"adjustmentQty"`
	AdjustmentCost types.Money    `db:"adjustment_cost" json:"adjustmentCost"`
	TransferQty    types.Quantity `db:"transfer_qty" json:"transferQty"`
	TransferCost   types.Money    `db:"transfer_cost" json:"transferCost"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Repository stores snapshot and summary rows. Both tables are write-once
// per revision.
type Repository interface {
	// InsertSnapshots bulk-writes snapshot rows for one revision.
	InsertSnapshots(ctx context.Context, rows []Snapshot) error

	// InsertSummaries bulk-writes summary rows for one revision.
	InsertSummaries(ctx context.Context, rows []MovementSummary) error

	// GetSnapshot retrieves one snapshot row.
	GetSnapshot(ctx context.Context, periodID, itemID, locationID id.ID, revision int) (*Snapshot, error)

	// ListSnapshots retrieves all snapshot rows for a period revision.
	ListSnapshots(ctx context.Context, periodID id.ID, revision int) ([]Snapshot, error)

	// LatestRevision returns the highest revision with snapshot rows for
	// the period, or 0 when none exist.
	LatestRevision(ctx context.Context, periodID id.ID) (int, error)

	// ListSummaries retrieves all summary rows for a period revision.
	ListSummaries(ctx context.Context, periodID id.ID, revision int) ([]MovementSummary, error)
}
