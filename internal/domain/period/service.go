package period

import (
	"context"
	"fmt"
	"time"

	"brigata/internal/core/apperror"
	"brigata/internal/core/id"
	"brigata/internal/core/tx"
	"brigata/internal/domain/orgpolicy"
	"brigata/internal/domain/reconciliation"
	"brigata/internal/domain/valuation"
	"brigata/pkg/logger"
)

// Service drives the period state machine. Close and reopen are serialized
// per branch by row locks; unrelated branches make progress independently.
type Service struct {
	repo       Repository
	txm        tx.Manager
	builder    *valuation.Builder
	valuations valuation.Repository
	policies   *orgpolicy.Service

	// recon gates close when the org requires clean reconciliation.
	// Optional: nil disables the gate regardless of policy.
	recon *reconciliation.Service
}

// NewService creates a period manager.
func NewService(
	repo Repository,
	txm tx.Manager,
	builder *valuation.Builder,
	valuations valuation.Repository,
	policies *orgpolicy.Service,
	recon *reconciliation.Service,
) *Service {
	return &Service{
		repo:       repo,
		txm:        txm,
		builder:    builder,
		valuations: valuations,
		policies:   policies,
		recon:      recon,
	}
}

// Create opens a new period for a branch. Boundaries must not overlap an
// existing period.
func (s *Service) Create(ctx context.Context, orgID, branchID id.ID, startsAt, endsAt time.Time, actor string) (*InventoryPeriod, *Event, error) {
	if id.IsNil(orgID) || id.IsNil(branchID) {
		return nil, nil, apperror.NewValidation("org and branch are required")
	}
	if !startsAt.Before(endsAt) {
		return nil, nil, apperror.NewValidation("period start must precede end")
	}

	overlapping, err := s.repo.CountOverlapping(ctx, branchID, startsAt, endsAt)
	if err != nil {
		return nil, nil, fmt.Errorf("check overlap: %w", err)
	}
	if overlapping > 0 {
		return nil, nil, apperror.NewConflict("period overlaps an existing period for this branch")
	}

	now := time.Now().UTC()
	p := &InventoryPeriod{
		ID:        id.New(),
		OrgID:     orgID,
		BranchID:  branchID,
		StartsAt:  startsAt.UTC(),
		EndsAt:    endsAt.UTC(),
		Status:    StatusOpen,
		Revision:  1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	event := NewEvent(p.ID, EventCreated, actor, "")

	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, p); err != nil {
			return fmt.Errorf("create period: %w", err)
		}
		return s.repo.AppendEvent(ctx, event)
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Info(ctx, "period created",
		"period_id", p.ID,
		"branch_id", branchID,
		"starts_at", p.StartsAt,
		"ends_at", p.EndsAt,
	)
	return p, event, nil
}

// Close transitions an open period to CLOSED: it checks the org's
// reconciliation gate, builds snapshot and summary rows at the current
// revision, and appends a CLOSED event. A close of a previously closed
// period bumps the revision first and writes a fresh row set; prior
// revisions are never touched.
func (s *Service) Close(ctx context.Context, periodID id.ID, actor string) (*InventoryPeriod, *Event, error) {
	var (
		p     *InventoryPeriod
		event *Event
	)

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.repo.GetForUpdate(ctx, periodID)
		if err != nil {
			return err
		}
		if p.Status != StatusOpen {
			return apperror.NewConflict("period is not open").
				WithDetail("period_id", periodID.String()).
				WithDetail("status", string(p.Status))
		}

		if err := s.checkReconciliationGate(ctx, p); err != nil {
			return err
		}

		revision := p.Revision
		if p.ClosedAt != nil {
			revision = p.Revision + 1
		}

		if _, err := s.builder.Build(ctx, valuation.BuildInput{
			PeriodID: p.ID,
			BranchID: p.BranchID,
			StartsAt: p.StartsAt,
			EndsAt:   p.EndsAt,
			Revision: revision,
		}); err != nil {
			return fmt.Errorf("build valuation: %w", err)
		}

		now := time.Now().UTC()
		p.Status = StatusClosed
		p.Revision = revision
		p.ClosedAt = &now
		p.UpdatedAt = now
		if err := s.repo.UpdateState(ctx, p); err != nil {
			return fmt.Errorf("update period state: %w", err)
		}

		event = NewEvent(p.ID, EventClosed, actor, "").
			WithMetadata("revision", revision)
		return s.repo.AppendEvent(ctx, event)
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Info(ctx, "period closed",
		"period_id", p.ID,
		"branch_id", p.BranchID,
		"revision", p.Revision,
	)
	return p, event, nil
}

// Reopen transitions a closed period back to OPEN. Requires a reason and
// never deletes or alters the prior revision's snapshot/summary rows.
func (s *Service) Reopen(ctx context.Context, periodID id.ID, actor, reason string) (*InventoryPeriod, *Event, error) {
	if reason == "" {
		return nil, nil, apperror.NewValidation("reopen requires a reason").
			WithDetail("field", "reason")
	}

	var (
		p     *InventoryPeriod
		event *Event
	)

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.repo.GetForUpdate(ctx, periodID)
		if err != nil {
			return err
		}
		if p.Status != StatusClosed {
			return apperror.NewConflict("period is not closed").
				WithDetail("period_id", periodID.String()).
				WithDetail("status", string(p.Status))
		}

		p.Status = StatusOpen
		p.UpdatedAt = time.Now().UTC()
		if err := s.repo.UpdateState(ctx, p); err != nil {
			return fmt.Errorf("update period state: %w", err)
		}

		event = NewEvent(p.ID, EventReopened, actor, reason)
		return s.repo.AppendEvent(ctx, event)
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Info(ctx, "period reopened",
		"period_id", p.ID,
		"branch_id", p.BranchID,
		"reason", reason,
	)
	return p, event, nil
}

// checkReconciliationGate refuses close while flagged variances remain,
// when the org's policy demands it.
func (s *Service) checkReconciliationGate(ctx context.Context, p *InventoryPeriod) error {
	policy, err := s.policies.PolicyFor(ctx, p.OrgID)
	if err != nil {
		return err
	}
	if !policy.RequireCleanReconciliation || s.recon == nil {
		return nil
	}

	report, err := s.recon.Reconcile(ctx, p.OrgID, p.BranchID, p.StartsAt, p.EndsAt)
	if err != nil {
		return fmt.Errorf("reconcile before close: %w", err)
	}
	if report.Flagged > 0 {
		return apperror.NewReconciliationTolerance(p.ID.String(), report.Flagged)
	}
	return nil
}

// --- Queries and guard implementation ---

// GetByID retrieves a period.
func (s *Service) GetByID(ctx context.Context, periodID id.ID) (*InventoryPeriod, error) {
	return s.repo.GetByID(ctx, periodID)
}

// List returns periods for a branch, newest first.
func (s *Service) List(ctx context.Context, branchID id.ID, limit, offset int) ([]InventoryPeriod, error) {
	return s.repo.List(ctx, branchID, limit, offset)
}

// ListEvents returns the period's audit trail.
func (s *Service) ListEvents(ctx context.Context, periodID id.ID) ([]Event, error) {
	return s.repo.ListEvents(ctx, periodID)
}

// ClosedPeriodAt implements ledger.PeriodGuard. It takes a share lock on the
// containing period so the answer stays true for the rest of the caller's
// transaction: a concurrent close either waits out the movement or fails
// with CONCURRENT_CLOSE, never closing over an in-flight write.
func (s *Service) ClosedPeriodAt(ctx context.Context, branchID id.ID, at time.Time) (id.ID, bool, error) {
	p, err := s.repo.FindAtForShare(ctx, branchID, at)
	if err != nil {
		if apperror.IsNotFound(err) {
			return id.Nil(), false, nil
		}
		return id.Nil(), false, err
	}
	return p.ID, p.Status == StatusClosed, nil
}

// RecordOverride implements ledger.PeriodGuard. Every overridden movement
// produces exactly one OVERRIDE_USED event carrying the supplied reason.
func (s *Service) RecordOverride(ctx context.Context, periodID id.ID, actor, reason string) error {
	event := NewEvent(periodID, EventOverrideUsed, actor, reason)
	if err := s.repo.AppendEvent(ctx, event); err != nil {
		return err
	}
	logger.Warn(ctx, "closed-period override used",
		"period_id", periodID,
		"actor", actor,
		"reason", reason,
	)
	return nil
}
