package ledger

import (
	"context"
	"time"

	"brigata/internal/core/id"
	"brigata/internal/core/types"
)

// Repository defines storage operations for the stock ledger.
// The postgres implementation lives in infrastructure/storage/postgres/ledger_repo.
type Repository interface {
	// Movement operations (append-only; there is no update or delete)

	// CreateMovement inserts a single movement row.
	CreateMovement(ctx context.Context, m *StockMovement) error

	// GetMovement retrieves one movement by id.
	GetMovement(ctx context.Context, movementID id.ID) (*StockMovement, error)

	// ListMovements retrieves movements matching the filter,
	// ordered by effective_at then recorded_at.
	ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error)

	// ListForReplay returns all movements for one item/location with
	// effective_at <= until, in deterministic replay order
	// (effective_at, recorded_at, id).
	ListForReplay(ctx context.Context, branchID, itemID, locationID id.ID, until time.Time) ([]StockMovement, error)

	// ListActiveItemLocations returns every (item, location) pair with
	// ledger activity in the branch up to the boundary.
	ListActiveItemLocations(ctx context.Context, branchID id.ID, until time.Time) ([]ItemLocation, error)

	// OnHandAt computes the signed quantity sum with effective_at <= at.
	OnHandAt(ctx context.Context, branchID, itemID, locationID id.ID, at time.Time) (types.Quantity, error)

	// SumDepletionByItem aggregates SALE_DEPLETION quantity and allocated
	// cost per item over [from, to) for reconciliation.
	SumDepletionByItem(ctx context.Context, branchID id.ID, from, to time.Time) ([]DepletionTotal, error)

	// Lot operations

	// CreateLot inserts a new lot (created by inbound movements).
	CreateLot(ctx context.Context, lot *Lot) error

	// GetLotsForUpdate returns all lots for item/location ordered by
	// received_at then id, with row locks held for the transaction.
	// This serializes concurrent allocations per (item, location).
	GetLotsForUpdate(ctx context.Context, orgID, itemID, locationID id.ID) ([]Lot, error)

	// DecrementLotRemaining subtracts qty from a lot's remaining quantity.
	// Fails if the result would be negative.
	DecrementLotRemaining(ctx context.Context, lotID id.ID, qty types.Quantity) error

	// Consumption audit

	// CreateConsumptions inserts the per-lot breakdown for a movement.
	CreateConsumptions(ctx context.Context, rows []LotConsumption) error

	// GetConsumptionsByMovement retrieves the breakdown for one movement.
	GetConsumptionsByMovement(ctx context.Context, movementID id.ID) ([]LotConsumption, error)
}

// MovementFilter for movement history queries.
type MovementFilter struct {
	OrgID      id.ID
	BranchID   *id.ID
	ItemID     *id.ID
	LocationID *id.ID
	Type       *MovementType
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}
