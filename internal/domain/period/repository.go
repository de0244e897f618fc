package period

import (
	"context"
	"time"

	"brigata/internal/core/id"
)

// Repository defines storage operations for periods and their audit events.
type Repository interface {
	// Create inserts a new period.
	Create(ctx context.Context, p *InventoryPeriod) error

	// GetByID retrieves one period.
	GetByID(ctx context.Context, periodID id.ID) (*InventoryPeriod, error)

	// GetForUpdate retrieves a period holding a row lock without waiting.
	// Returns apperror.CodeConcurrentClose when another close/reopen holds
	// the lock. This is the per-branch mutual exclusion for lifecycle ops.
	GetForUpdate(ctx context.Context, periodID id.ID) (*InventoryPeriod, error)

	// FindAt returns the branch period containing t, or apperror.CodeNotFound.
	FindAt(ctx context.Context, branchID id.ID, at time.Time) (*InventoryPeriod, error)

	// FindAtForShare is FindAt holding a share lock on the period row until
	// the caller's transaction ends. The lock conflicts with the exclusive
	// lock taken by close/reopen, so a movement holding it makes a
	// concurrent close fail fast, and a committed close is visible here.
	FindAtForShare(ctx context.Context, branchID id.ID, at time.Time) (*InventoryPeriod, error)

	// CountOverlapping counts branch periods intersecting [startsAt, endsAt).
	CountOverlapping(ctx context.Context, branchID id.ID, startsAt, endsAt time.Time) (int, error)

	// UpdateState persists status, revision, and close timestamp changes.
	// Periods are otherwise immutable.
	UpdateState(ctx context.Context, p *InventoryPeriod) error

	// List returns periods for a branch, newest first.
	List(ctx context.Context, branchID id.ID, limit, offset int) ([]InventoryPeriod, error)

	// AppendEvent writes one audit event. Events are append-only.
	AppendEvent(ctx context.Context, e *Event) error

	// ListEvents returns the period's audit trail, oldest first.
	ListEvents(ctx context.Context, periodID id.ID) ([]Event, error)
}
