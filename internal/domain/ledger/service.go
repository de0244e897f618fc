package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"brigata/internal/core/apperror"
	"brigata/internal/core/id"
	"brigata/internal/core/tx"
	"brigata/internal/core/types"
	"brigata/internal/domain/costing"
	"brigata/pkg/logger"
)

// PeriodGuard answers whether an effective time falls inside a closed period
// and records override audit events. Implemented by the period manager;
// declared here so the ledger does not depend on the period package.
type PeriodGuard interface {
	// ClosedPeriodAt returns the period id and true when at falls within a
	// CLOSED period for the branch.
	ClosedPeriodAt(ctx context.Context, branchID id.ID, at time.Time) (id.ID, bool, error)

	// RecordOverride appends an OVERRIDE_USED event to the period's audit log.
	RecordOverride(ctx context.Context, periodID id.ID, actor, reason string) error
}

// PolicySource exposes the org-level costing configuration.
type PolicySource interface {
	CostFallbackAllowed(ctx context.Context, orgID id.ID) (bool, error)
}

// Service records stock movements and drives synchronous cost allocation.
type Service struct {
	repo     Repository
	txm      tx.Manager
	periods  PeriodGuard
	policies PolicySource
}

// NewService creates a new stock ledger service.
func NewService(repo Repository, txm tx.Manager, periods PeriodGuard, policies PolicySource) *Service {
	return &Service{
		repo:     repo,
		txm:      txm,
		periods:  periods,
		policies: policies,
	}
}

// RecordMovementInput carries everything needed to append one movement.
type RecordMovementInput struct {
	OrgID      id.ID
	BranchID   id.ID
	ItemID     id.ID
	LocationID id.ID
	Type       MovementType

	// Quantity may be passed as a positive magnitude for fixed-direction
	// types; the sign is normalized from the movement type. Signed types
	// (ADJUSTMENT, STOCKTAKE_VARIANCE) keep the caller's sign.
	Quantity types.Quantity

	// UnitCost prices the lot created by inbound movements.
	UnitCost types.Money

	EffectiveAt time.Time
	SourceRef   string
	Reason      string

	// Override accepts the movement into a closed period. Requires a
	// non-empty Reason and produces an OVERRIDE_USED audit event.
	Override bool
	Actor    string
}

// RecordMovement validates, costs, and atomically appends a stock movement.
// The movement and its lot side effects are written all-or-nothing.
func (s *Service) RecordMovement(ctx context.Context, in RecordMovementInput) (*StockMovement, error) {
	qty, err := normalizeQuantity(in.Type, in.Quantity)
	if err != nil {
		return nil, err
	}
	if err := s.validate(in, qty); err != nil {
		return nil, err
	}

	m := &StockMovement{
		ID:          id.New(),
		OrgID:       in.OrgID,
		BranchID:    in.BranchID,
		ItemID:      in.ItemID,
		LocationID:  in.LocationID,
		Type:        in.Type,
		Quantity:    qty,
		UnitCost:    in.UnitCost,
		EffectiveAt: in.EffectiveAt.UTC(),
		RecordedAt:  time.Now().UTC(),
		SourceRef:   in.SourceRef,
		Reason:      in.Reason,
	}
	m.AllocatedCost = types.ZeroMoney()

	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		// The guard locks the containing period row for the rest of this
		// transaction, so a concurrent close cannot slip between the check
		// and the movement commit.
		overriddenPeriod, err := s.checkClosedPeriod(ctx, in)
		if err != nil {
			return err
		}

		if qty.IsPositive() {
			if err := s.recordInbound(ctx, m); err != nil {
				return err
			}
		} else {
			if err := s.recordOutbound(ctx, m); err != nil {
				return err
			}
		}

		if !id.IsNil(overriddenPeriod) {
			if err := s.periods.RecordOverride(ctx, overriddenPeriod, in.Actor, in.Reason); err != nil {
				return fmt.Errorf("record override event: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "recorded stock movement",
		"movement_id", m.ID,
		"type", m.Type,
		"item_id", m.ItemID,
		"quantity", m.Quantity,
		"cost_flag", m.CostFlag,
	)

	return m, nil
}

// recordInbound creates a lot priced at the supplied unit cost and writes the
// movement. Inbound stock without a lot would be invisible to FIFO costing,
// so every inbound movement carries one.
func (s *Service) recordInbound(ctx context.Context, m *StockMovement) error {
	lot := &Lot{
		ID:         id.New(),
		OrgID:      m.OrgID,
		ItemID:     m.ItemID,
		LocationID: m.LocationID,
		ReceivedAt: m.EffectiveAt,
		UnitCost:   m.UnitCost,
		Received:   m.Quantity,
		Remaining:  m.Quantity,
		CreatedAt:  m.RecordedAt,
	}
	if err := s.repo.CreateLot(ctx, lot); err != nil {
		return fmt.Errorf("create lot: %w", err)
	}

	m.LotID = &lot.ID
	if err := s.repo.CreateMovement(ctx, m); err != nil {
		return fmt.Errorf("create movement: %w", err)
	}
	return nil
}

// recordOutbound locks the item/location's lots, allocates cost FIFO, applies
// lot consumption, and writes movement plus breakdown rows.
func (s *Service) recordOutbound(ctx context.Context, m *StockMovement) error {
	lots, err := s.repo.GetLotsForUpdate(ctx, m.OrgID, m.ItemID, m.LocationID)
	if err != nil {
		return fmt.Errorf("lock lots: %w", err)
	}

	fallbackAllowed, err := s.policies.CostFallbackAllowed(ctx, m.OrgID)
	if err != nil {
		return fmt.Errorf("load cost policy: %w", err)
	}

	views := make([]costing.Lot, 0, len(lots))
	for _, lot := range lots {
		views = append(views, costing.Lot{
			ID:         lot.ID,
			ReceivedAt: lot.ReceivedAt,
			UnitCost:   lot.UnitCost,
			Received:   lot.Received,
			Remaining:  lot.Remaining,
		})
	}

	alloc, err := costing.Allocate(views, m.Quantity.Abs(), costing.Policy{
		AllowAverageFallback: fallbackAllowed,
	})
	if err != nil {
		var insufficient *costing.InsufficientStockError
		if errors.As(err, &insufficient) {
			return apperror.NewInsufficientLotStock(
				m.ItemID.String(),
				insufficient.Requested.Float64(),
				insufficient.Available.Float64(),
			)
		}
		return fmt.Errorf("allocate cost: %w", err)
	}

	consumptions := make([]LotConsumption, 0, len(alloc.Lines))
	for _, line := range alloc.Lines {
		var lotRef *id.ID
		if !id.IsNil(line.LotID) {
			lotID := line.LotID
			lotRef = &lotID
			if err := s.repo.DecrementLotRemaining(ctx, lotID, line.Quantity); err != nil {
				return fmt.Errorf("consume lot %s: %w", lotID, err)
			}
		}
		consumptions = append(consumptions, LotConsumption{
			ID:         id.New(),
			MovementID: m.ID,
			LotID:      lotRef,
			Quantity:   line.Quantity,
			UnitCost:   line.UnitCost,
			Cost:       line.Cost,
			CreatedAt:  m.RecordedAt,
		})
	}

	m.AllocatedCost = alloc.TotalCost
	if alloc.Fallback {
		m.CostFlag = CostFlagAverageFallback
		logger.Warn(ctx, "outbound movement priced with average-cost fallback",
			"movement_id", m.ID,
			"item_id", m.ItemID,
		)
	}

	if err := s.repo.CreateMovement(ctx, m); err != nil {
		return fmt.Errorf("create movement: %w", err)
	}
	if err := s.repo.CreateConsumptions(ctx, consumptions); err != nil {
		return fmt.Errorf("create consumptions: %w", err)
	}
	return nil
}

// checkClosedPeriod enforces the closed-period rule. Must run inside the
// movement transaction: the guard's period lock is what orders this movement
// against a concurrent close. Returns the period id when the movement is
// accepted via override so the caller can audit it.
func (s *Service) checkClosedPeriod(ctx context.Context, in RecordMovementInput) (id.ID, error) {
	periodID, closed, err := s.periods.ClosedPeriodAt(ctx, in.BranchID, in.EffectiveAt)
	if err != nil {
		return id.Nil(), fmt.Errorf("check period status: %w", err)
	}
	if !closed {
		return id.Nil(), nil
	}

	if !in.Override {
		return id.Nil(), apperror.NewClosedPeriodViolation(periodID.String(), in.EffectiveAt)
	}
	if in.Reason == "" {
		return id.Nil(), apperror.NewValidation("override requires a reason").
			WithDetail("field", "reason")
	}
	return periodID, nil
}

func (s *Service) validate(in RecordMovementInput, qty types.Quantity) error {
	if id.IsNil(in.OrgID) || id.IsNil(in.BranchID) {
		return apperror.NewValidation("org and branch are required")
	}
	if id.IsNil(in.ItemID) || id.IsNil(in.LocationID) {
		return apperror.NewValidation("item and location are required")
	}
	if in.EffectiveAt.IsZero() {
		return apperror.NewValidation("effectiveAt is required").
			WithDetail("field", "effectiveAt")
	}
	// Every inbound movement creates a lot; a zero-cost lot would depress
	// all subsequent FIFO allocations for the item.
	if qty.IsPositive() && !in.UnitCost.IsPositive() {
		return apperror.NewValidation(
			fmt.Sprintf("%s requires a positive unit cost", in.Type)).
			WithDetail("field", "unitCost")
	}
	return nil
}

// normalizeQuantity applies the sign implied by the movement type.
// Fixed-direction types accept positive magnitudes; signed types keep the
// caller's sign.
func normalizeQuantity(t MovementType, qty types.Quantity) (types.Quantity, error) {
	if !t.Valid() {
		return 0, apperror.NewValidation(fmt.Sprintf("unknown movement type %q", t))
	}
	if qty.IsZero() {
		return 0, apperror.NewValidation("quantity must not be zero").
			WithDetail("field", "quantity")
	}

	switch t.Direction() {
	case DirectionInbound:
		if qty.IsNegative() {
			return 0, apperror.NewValidation(
				fmt.Sprintf("%s requires a positive quantity", t)).
				WithDetail("field", "quantity")
		}
		return qty, nil
	case DirectionOutbound:
		// Callers may pass positive magnitudes; stored sign is negative.
		return qty.Abs().Neg(), nil
	default:
		return qty, nil
	}
}

// --- Queries ---

// GetMovement returns one movement with its consumption breakdown.
func (s *Service) GetMovement(ctx context.Context, movementID id.ID) (*StockMovement, []LotConsumption, error) {
	m, err := s.repo.GetMovement(ctx, movementID)
	if err != nil {
		return nil, nil, err
	}
	if !m.IsOutbound() {
		return m, nil, nil
	}
	breakdown, err := s.repo.GetConsumptionsByMovement(ctx, movementID)
	if err != nil {
		return nil, nil, fmt.Errorf("get consumptions: %w", err)
	}
	return m, breakdown, nil
}

// ListMovements returns movement history matching the filter.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	return s.repo.ListMovements(ctx, filter)
}

// OnHandAt returns the replayed signed quantity sum at a point in time.
func (s *Service) OnHandAt(ctx context.Context, branchID, itemID, locationID id.ID, at time.Time) (types.Quantity, error) {
	return s.repo.OnHandAt(ctx, branchID, itemID, locationID, at)
}
