// Package period_repo provides the PostgreSQL implementation of the
// inventory period repository, including the NOWAIT row lock that
// serializes close/reopen per branch.
package period_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"brigata/internal/core/apperror"
	"brigata/internal/core/id"
	"brigata/internal/domain/period"
	"brigata/internal/infrastructure/storage/postgres"
)

const (
	periodsTable = "inventory_periods"
	eventsTable  = "inventory_period_events"
)

// pgLockNotAvailable is raised by FOR UPDATE NOWAIT on a held lock.
const pgLockNotAvailable = "55P03"

var periodColumns = []string{
	"id", "org_id", "branch_id", "starts_at", "ends_at",
	"status", "revision", "closed_at", "created_at", "updated_at",
}

// PeriodRepo implements period.Repository.
type PeriodRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewPeriodRepo creates a new period repository.
func NewPeriodRepo(txm *postgres.TxManager) *PeriodRepo {
	return &PeriodRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new period.
func (r *PeriodRepo) Create(ctx context.Context, p *period.InventoryPeriod) error {
	q := r.builder.Insert(periodsTable).
		Columns(periodColumns...).
		Values(
			p.ID, p.OrgID, p.BranchID, p.StartsAt, p.EndsAt,
			p.Status, p.Revision, p.ClosedAt, p.CreatedAt, p.UpdatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert period: %w", err)
	}
	return nil
}

// GetByID retrieves one period.
func (r *PeriodRepo) GetByID(ctx context.Context, periodID id.ID) (*period.InventoryPeriod, error) {
	q := r.builder.Select(periodColumns...).
		From(periodsTable).
		Where(squirrel.Eq{"id": periodID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var p period.InventoryPeriod
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &p, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("period", periodID.String())
		}
		return nil, fmt.Errorf("get period: %w", err)
	}
	return &p, nil
}

// GetForUpdate retrieves a period with a row lock, failing fast when the
// lock is held by a concurrent close/reopen.
func (r *PeriodRepo) GetForUpdate(ctx context.Context, periodID id.ID) (*period.InventoryPeriod, error) {
	sql := `
		SELECT id, org_id, branch_id, starts_at, ends_at,
		       status, revision, closed_at, created_at, updated_at
		FROM inventory_periods
		WHERE id = $1
		FOR UPDATE NOWAIT
	`

	var p period.InventoryPeriod
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &p, sql, periodID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable {
			branchID := ""
			if existing, getErr := r.GetByID(ctx, periodID); getErr == nil {
				branchID = existing.BranchID.String()
			}
			return nil, apperror.NewConcurrentClose(branchID)
		}
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("period", periodID.String())
		}
		return nil, fmt.Errorf("lock period: %w", err)
	}
	return &p, nil
}

// FindAt returns the branch period containing t.
func (r *PeriodRepo) FindAt(ctx context.Context, branchID id.ID, at time.Time) (*period.InventoryPeriod, error) {
	sql := `
		SELECT id, org_id, branch_id, starts_at, ends_at,
		       status, revision, closed_at, created_at, updated_at
		FROM inventory_periods
		WHERE branch_id = $1 AND starts_at <= $2 AND ends_at > $2
		LIMIT 1
	`

	var p period.InventoryPeriod
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &p, sql, branchID, at); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("period", at.Format(time.RFC3339))
		}
		return nil, fmt.Errorf("find period at: %w", err)
	}
	return &p, nil
}

// FindAtForShare returns the branch period containing t, holding a share
// lock on the row for the rest of the transaction. Close/reopen lock the
// same row FOR UPDATE NOWAIT, so the two paths serialize: an in-flight
// movement makes a concurrent close fail with CONCURRENT_CLOSE, and a
// movement arriving after a close committed sees the CLOSED status.
func (r *PeriodRepo) FindAtForShare(ctx context.Context, branchID id.ID, at time.Time) (*period.InventoryPeriod, error) {
	sql := `
		SELECT id, org_id, branch_id, starts_at, ends_at,
		       status, revision, closed_at, created_at, updated_at
		FROM inventory_periods
		WHERE branch_id = $1 AND starts_at <= $2 AND ends_at > $2
		LIMIT 1
		FOR SHARE
	`

	var p period.InventoryPeriod
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &p, sql, branchID, at); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("period", at.Format(time.RFC3339))
		}
		return nil, fmt.Errorf("lock period at: %w", err)
	}
	return &p, nil
}

// CountOverlapping counts branch periods intersecting [startsAt, endsAt).
func (r *PeriodRepo) CountOverlapping(ctx context.Context, branchID id.ID, startsAt, endsAt time.Time) (int, error) {
	sql := `
		SELECT COUNT(*)
		FROM inventory_periods
		WHERE branch_id = $1 AND starts_at < $3 AND ends_at > $2
	`

	var count int
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, branchID, startsAt, endsAt).Scan(&count); err != nil {
		return 0, fmt.Errorf("count overlapping periods: %w", err)
	}
	return count, nil
}

// UpdateState persists lifecycle changes (status, revision, closed_at).
func (r *PeriodRepo) UpdateState(ctx context.Context, p *period.InventoryPeriod) error {
	q := r.builder.Update(periodsTable).
		Set("status", p.Status).
		Set("revision", p.Revision).
		Set("closed_at", p.ClosedAt).
		Set("updated_at", p.UpdatedAt).
		Where(squirrel.Eq{"id": p.ID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update period: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("period", p.ID.String())
	}
	return nil
}

// List returns branch periods, newest first.
func (r *PeriodRepo) List(ctx context.Context, branchID id.ID, limit, offset int) ([]period.InventoryPeriod, error) {
	q := r.builder.Select(periodColumns...).
		From(periodsTable).
		Where(squirrel.Eq{"branch_id": branchID}).
		OrderBy("starts_at DESC")

	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	if offset > 0 {
		q = q.Offset(uint64(offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var periods []period.InventoryPeriod
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &periods, sql, args...); err != nil {
		return nil, fmt.Errorf("select periods: %w", err)
	}
	return periods, nil
}

// AppendEvent writes one audit event.
func (r *PeriodRepo) AppendEvent(ctx context.Context, e *period.Event) error {
	q := r.builder.Insert(eventsTable).
		Columns("id", "period_id", "event_type", "actor", "reason", "metadata", "created_at").
		Values(e.ID, e.PeriodID, e.Type, e.Actor, e.Reason, e.Metadata, e.CreatedAt)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert period event: %w", err)
	}
	return nil
}

// ListEvents returns the period's audit trail, oldest first.
func (r *PeriodRepo) ListEvents(ctx context.Context, periodID id.ID) ([]period.Event, error) {
	q := r.builder.Select("id", "period_id", "event_type", "actor", "reason", "metadata", "created_at").
		From(eventsTable).
		Where(squirrel.Eq{"period_id": periodID}).
		OrderBy("created_at", "id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var events []period.Event
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &events, sql, args...); err != nil {
		return nil, fmt.Errorf("select period events: %w", err)
	}
	return events, nil
}

var _ period.Repository = (*PeriodRepo)(nil)
