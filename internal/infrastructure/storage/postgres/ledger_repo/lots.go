package ledger_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"brigata/internal/core/id"
	"brigata/internal/core/types"
	"brigata/internal/domain/ledger"
)

var lotColumns = []string{
	"id", "org_id", "item_id", "location_id",
	"received_at", "unit_cost", "qty_received", "qty_remaining", "created_at",
}

// CreateLot inserts a new lot.
func (r *LedgerRepo) CreateLot(ctx context.Context, lot *ledger.Lot) error {
	q := r.builder.Insert(lotsTable).
		Columns(lotColumns...).
		Values(
			lot.ID, lot.OrgID, lot.ItemID, lot.LocationID,
			lot.ReceivedAt, lot.UnitCost, lot.Received, lot.Remaining, lot.CreatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert lot: %w", err)
	}
	return nil
}

// GetLotsForUpdate returns the item/location's lots ordered for FIFO with
// row locks held. Two concurrent outbound movements on the same dimension
// serialize here, which prevents double-consuming a lot remainder.
func (r *LedgerRepo) GetLotsForUpdate(ctx context.Context, orgID, itemID, locationID id.ID) ([]ledger.Lot, error) {
	sql := `
		SELECT id, org_id, item_id, location_id,
		       received_at, unit_cost, qty_received, qty_remaining, created_at
		FROM stock_lots
		WHERE org_id = $1 AND item_id = $2 AND location_id = $3
		ORDER BY received_at, id
		FOR UPDATE
	`

	var lots []ledger.Lot
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &lots, sql, orgID, itemID, locationID); err != nil {
		return nil, fmt.Errorf("lock lots: %w", err)
	}
	return lots, nil
}

// DecrementLotRemaining subtracts qty from a lot's remaining quantity.
// The WHERE guard keeps qty_remaining from ever going negative.
func (r *LedgerRepo) DecrementLotRemaining(ctx context.Context, lotID id.ID, qty types.Quantity) error {
	sql := `
		UPDATE stock_lots
		SET qty_remaining = qty_remaining - $2
		WHERE id = $1 AND qty_remaining >= $2
	`

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, lotID, qty)
	if err != nil {
		return fmt.Errorf("decrement lot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lot %s has less than %s remaining", lotID, qty)
	}
	return nil
}

// CreateConsumptions inserts the per-lot breakdown rows for a movement.
func (r *LedgerRepo) CreateConsumptions(ctx context.Context, rows []ledger.LotConsumption) error {
	if len(rows) == 0 {
		return nil
	}

	q := r.builder.Insert(consumptionsTable).Columns(
		"id", "movement_id", "lot_id", "quantity", "unit_cost", "cost", "created_at",
	)
	for _, c := range rows {
		q = q.Values(c.ID, c.MovementID, c.LotID, c.Quantity, c.UnitCost, c.Cost, c.CreatedAt)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert consumptions: %w", err)
	}
	return nil
}

// GetConsumptionsByMovement retrieves the breakdown for one movement.
func (r *LedgerRepo) GetConsumptionsByMovement(ctx context.Context, movementID id.ID) ([]ledger.LotConsumption, error) {
	q := r.builder.Select(
		"id", "movement_id", "lot_id", "quantity", "unit_cost", "cost", "created_at",
	).From(consumptionsTable).
		Where(squirrel.Eq{"movement_id": movementID}).
		OrderBy("created_at", "id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []ledger.LotConsumption
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select consumptions: %w", err)
	}
	return rows, nil
}
