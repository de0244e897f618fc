// Package valuation_repo provides the PostgreSQL implementation of the
// valuation snapshot repository. Snapshot and summary rows are written in
// bulk with COPY; a period close for a large catalog writes thousands of
// rows in one shot.
package valuation_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"brigata/internal/core/apperror"
	"brigata/internal/core/id"
	"brigata/internal/domain/valuation"
	"brigata/internal/infrastructure/storage/postgres"
)

const (
	snapshotsTable = "valuation_snapshots"
	summariesTable = "period_movement_summaries"
)

var snapshotColumns = []string{
	"period_id", "item_id", "location_id", "revision",
	"quantity", "value", "created_at",
}

var summaryColumns = []string{
	"period_id", "item_id", "revision",
	"receipt_qty", "receipt_cost",
	"depletion_qty", "depletion_cost",
	"waste_qty", "waste_cost",
	"adjustment_qty", "adjustment_cost",
	"transfer_qty", "transfer_cost",
	"created_at",
}

// ValuationRepo implements valuation.Repository.
type ValuationRepo struct {
	txm     *postgres.TxManager
	batch   *postgres.BatchInserter
	builder squirrel.StatementBuilderType
}

// NewValuationRepo creates a new valuation repository.
func NewValuationRepo(txm *postgres.TxManager) *ValuationRepo {
	return &ValuationRepo{
		txm:     txm,
		batch:   postgres.NewBatchInserter(txm),
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// InsertSnapshots bulk-writes snapshot rows via COPY.
func (r *ValuationRepo) InsertSnapshots(ctx context.Context, rows []valuation.Snapshot) error {
	if len(rows) == 0 {
		return nil
	}

	data := make([][]any, 0, len(rows))
	for _, s := range rows {
		data = append(data, []any{
			s.PeriodID, s.ItemID, s.LocationID, s.Revision,
			s.Quantity, s.Value, s.CreatedAt,
		})
	}

	n, err := r.batch.CopyFromSlice(ctx, snapshotsTable, snapshotColumns, data)
	if err != nil {
		return fmt.Errorf("copy snapshots: %w", err)
	}
	if n != int64(len(rows)) {
		return fmt.Errorf("copy snapshots: wrote %d of %d rows", n, len(rows))
	}
	return nil
}

// InsertSummaries bulk-writes summary rows via COPY.
func (r *ValuationRepo) InsertSummaries(ctx context.Context, rows []valuation.MovementSummary) error {
	if len(rows) == 0 {
		return nil
	}

	data := make([][]any, 0, len(rows))
	for _, s := range rows {
		data = append(data, []any{
			s.PeriodID, s.ItemID, s.Revision,
			s.ReceiptQty, s.ReceiptCost,
			s.DepletionQty, s.DepletionCost,
			s.WasteQty, s.WasteCost,
			s.AdjustmentQty, s.AdjustmentCost,
			s.TransferQty, s.TransferCost,
			s.CreatedAt,
		})
	}

	n, err := r.batch.CopyFromSlice(ctx, summariesTable, summaryColumns, data)
	if err != nil {
		return fmt.Errorf("copy summaries: %w", err)
	}
	if n != int64(len(rows)) {
		return fmt.Errorf("copy summaries: wrote %d of %d rows", n, len(rows))
	}
	return nil
}

// GetSnapshot retrieves one snapshot row.
func (r *ValuationRepo) GetSnapshot(ctx context.Context, periodID, itemID, locationID id.ID, revision int) (*valuation.Snapshot, error) {
	q := r.builder.Select(snapshotColumns...).
		From(snapshotsTable).
		Where(squirrel.Eq{
			"period_id":   periodID,
			"item_id":     itemID,
			"location_id": locationID,
			"revision":    revision,
		})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var s valuation.Snapshot
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &s, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("snapshot", itemID.String())
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return &s, nil
}

// ListSnapshots retrieves all snapshot rows for a period revision.
func (r *ValuationRepo) ListSnapshots(ctx context.Context, periodID id.ID, revision int) ([]valuation.Snapshot, error) {
	q := r.builder.Select(snapshotColumns...).
		From(snapshotsTable).
		Where(squirrel.Eq{"period_id": periodID, "revision": revision}).
		OrderBy("item_id", "location_id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var snapshots []valuation.Snapshot
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &snapshots, sql, args...); err != nil {
		return nil, fmt.Errorf("select snapshots: %w", err)
	}
	return snapshots, nil
}

// LatestRevision returns the highest snapshot revision, or 0 when none exist.
func (r *ValuationRepo) LatestRevision(ctx context.Context, periodID id.ID) (int, error) {
	sql := `
		SELECT COALESCE(MAX(revision), 0)
		FROM valuation_snapshots
		WHERE period_id = $1
	`

	var revision int
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, periodID).Scan(&revision); err != nil {
		return 0, fmt.Errorf("latest revision: %w", err)
	}
	return revision, nil
}

// ListSummaries retrieves all summary rows for a period revision.
func (r *ValuationRepo) ListSummaries(ctx context.Context, periodID id.ID, revision int) ([]valuation.MovementSummary, error) {
	q := r.builder.Select(summaryColumns...).
		From(summariesTable).
		Where(squirrel.Eq{"period_id": periodID, "revision": revision}).
		OrderBy("item_id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var summaries []valuation.MovementSummary
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &summaries, sql, args...); err != nil {
		return nil, fmt.Errorf("select summaries: %w", err)
	}
	return summaries, nil
}

var _ valuation.Repository = (*ValuationRepo)(nil)
