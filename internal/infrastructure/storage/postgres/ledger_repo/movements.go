// Package ledger_repo provides the PostgreSQL implementation of the stock
// ledger repository. Movement and consumption tables are append-only; the
// only mutable column in the package is a lot's remaining quantity.
package ledger_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"brigata/internal/core/apperror"
	"brigata/internal/core/id"
	"brigata/internal/core/types"
	"brigata/internal/domain/ledger"
	"brigata/internal/infrastructure/storage/postgres"
)

const (
	movementsTable    = "stock_movements"
	lotsTable         = "stock_lots"
	consumptionsTable = "lot_consumptions"
)

var movementColumns = []string{
	"id", "org_id", "branch_id", "item_id", "location_id", "movement_type",
	"quantity", "unit_cost", "allocated_cost",
	"effective_at", "recorded_at",
	"lot_id", "source_ref", "reason", "cost_flag",
}

// LedgerRepo implements ledger.Repository.
type LedgerRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewLedgerRepo creates a new stock ledger repository.
func NewLedgerRepo(txm *postgres.TxManager) *LedgerRepo {
	return &LedgerRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// CreateMovement inserts one movement row.
func (r *LedgerRepo) CreateMovement(ctx context.Context, m *ledger.StockMovement) error {
	q := r.builder.Insert(movementsTable).
		Columns(movementColumns...).
		Values(
			m.ID, m.OrgID, m.BranchID, m.ItemID, m.LocationID, m.Type,
			m.Quantity, m.UnitCost, m.AllocatedCost,
			m.EffectiveAt, m.RecordedAt,
			m.LotID, m.SourceRef, m.Reason, m.CostFlag,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

// GetMovement retrieves one movement by id.
func (r *LedgerRepo) GetMovement(ctx context.Context, movementID id.ID) (*ledger.StockMovement, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"id": movementID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var m ledger.StockMovement
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &m, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("movement", movementID.String())
		}
		return nil, fmt.Errorf("get movement: %w", err)
	}
	return &m, nil
}

// ListMovements retrieves movements matching the filter.
func (r *LedgerRepo) ListMovements(ctx context.Context, filter ledger.MovementFilter) ([]ledger.StockMovement, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"org_id": filter.OrgID})

	if filter.BranchID != nil {
		q = q.Where(squirrel.Eq{"branch_id": *filter.BranchID})
	}
	if filter.ItemID != nil {
		q = q.Where(squirrel.Eq{"item_id": *filter.ItemID})
	}
	if filter.LocationID != nil {
		q = q.Where(squirrel.Eq{"location_id": *filter.LocationID})
	}
	if filter.Type != nil {
		q = q.Where(squirrel.Eq{"movement_type": *filter.Type})
	}
	if filter.From != nil {
		q = q.Where(squirrel.GtOrEq{"effective_at": *filter.From})
	}
	if filter.To != nil {
		q = q.Where(squirrel.Lt{"effective_at": *filter.To})
	}

	q = q.OrderBy("effective_at DESC", "recorded_at DESC")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []ledger.StockMovement
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}
	return movements, nil
}

// ListForReplay returns movements in deterministic replay order.
func (r *LedgerRepo) ListForReplay(ctx context.Context, branchID, itemID, locationID id.ID, until time.Time) ([]ledger.StockMovement, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{
			"branch_id":   branchID,
			"item_id":     itemID,
			"location_id": locationID,
		}).
		Where(squirrel.LtOrEq{"effective_at": until}).
		OrderBy("effective_at", "recorded_at", "id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []ledger.StockMovement
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select replay movements: %w", err)
	}
	return movements, nil
}

// ListActiveItemLocations returns distinct (item, location) pairs with
// activity up to the boundary.
func (r *LedgerRepo) ListActiveItemLocations(ctx context.Context, branchID id.ID, until time.Time) ([]ledger.ItemLocation, error) {
	sql := `
		SELECT DISTINCT item_id, location_id
		FROM stock_movements
		WHERE branch_id = $1 AND effective_at <= $2
		ORDER BY item_id, location_id
	`

	var pairs []ledger.ItemLocation
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &pairs, sql, branchID, until); err != nil {
		return nil, fmt.Errorf("select active item locations: %w", err)
	}
	return pairs, nil
}

// OnHandAt computes the signed quantity sum at a point in time.
func (r *LedgerRepo) OnHandAt(ctx context.Context, branchID, itemID, locationID id.ID, at time.Time) (types.Quantity, error) {
	sql := `
		SELECT COALESCE(SUM(quantity), 0)
		FROM stock_movements
		WHERE branch_id = $1
		  AND item_id = $2
		  AND location_id = $3
		  AND effective_at <= $4
	`

	var scaled int64
	err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, branchID, itemID, locationID, at).Scan(&scaled)
	if err != nil && err != pgx.ErrNoRows {
		return 0, fmt.Errorf("calculate on-hand: %w", err)
	}
	return types.NewQuantityFromInt64Scaled(scaled), nil
}

// SumDepletionByItem aggregates sale depletion per item over [from, to).
func (r *LedgerRepo) SumDepletionByItem(ctx context.Context, branchID id.ID, from, to time.Time) ([]ledger.DepletionTotal, error) {
	sql := `
		SELECT item_id,
		       COALESCE(SUM(-quantity), 0) AS quantity,
		       COALESCE(SUM(allocated_cost), 0) AS cost
		FROM stock_movements
		WHERE branch_id = $1
		  AND movement_type = $2
		  AND effective_at >= $3
		  AND effective_at < $4
		GROUP BY item_id
		ORDER BY item_id
	`

	var totals []ledger.DepletionTotal
	err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &totals, sql,
		branchID, ledger.MovementSaleDepletion, from, to)
	if err != nil {
		return nil, fmt.Errorf("sum depletion: %w", err)
	}
	return totals, nil
}

// Ensure interface compliance.
var _ ledger.Repository = (*LedgerRepo)(nil)
