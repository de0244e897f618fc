// Package orgpolicy holds the org-level configuration the costing engine
// consults: cost fallback, reconciliation gating, and variance tolerance.
package orgpolicy

import (
	"context"
	"fmt"

	"brigata/internal/core/apperror"
	"brigata/internal/core/id"
	"brigata/internal/core/types"
)

// Policy is the effective configuration for one org.
type Policy struct {
	OrgID id.ID `db:"org_id" json:"orgId"`

	// AllowCostFallback permits pricing outbound shortfalls at the
	// weighted-average unit cost instead of rejecting the movement.
	AllowCostFallback bool `db:"allow_cost_fallback" json:"allowCostFallback"`

	// RequireCleanReconciliation blocks period close while flagged
	// reconciliation variances remain.
	RequireCleanReconciliation bool `db:"require_clean_reconciliation" json:"requireCleanReconciliation"`

	// VarianceTolerance is the absolute quantity variance above which a
	// reconciliation row is flagged for investigation.
	VarianceTolerance types.Quantity `db:"variance_tolerance" json:"varianceTolerance"`
}

// DefaultPolicy returns the engine defaults: no fallback, no close gate,
// zero tolerance (every non-zero variance flagged).
func DefaultPolicy(orgID id.ID) Policy {
	return Policy{OrgID: orgID}
}

// Repository stores per-org policies.
type Repository interface {
	// Get returns the policy for the org, or apperror.CodeNotFound.
	Get(ctx context.Context, orgID id.ID) (Policy, error)

	// Upsert creates or replaces the org's policy.
	Upsert(ctx context.Context, p Policy) error
}

// Service resolves effective policies, falling back to defaults when an org
// has never configured one.
type Service struct {
	repo Repository
}

// NewService creates a new policy service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// PolicyFor returns the org's policy or the default.
func (s *Service) PolicyFor(ctx context.Context, orgID id.ID) (Policy, error) {
	p, err := s.repo.Get(ctx, orgID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return DefaultPolicy(orgID), nil
		}
		return Policy{}, fmt.Errorf("get org policy: %w", err)
	}
	return p, nil
}

// CostFallbackAllowed implements ledger.PolicySource.
func (s *Service) CostFallbackAllowed(ctx context.Context, orgID id.ID) (bool, error) {
	p, err := s.PolicyFor(ctx, orgID)
	if err != nil {
		return false, err
	}
	return p.AllowCostFallback, nil
}

// Update validates and stores an org policy.
func (s *Service) Update(ctx context.Context, p Policy) error {
	if id.IsNil(p.OrgID) {
		return apperror.NewValidation("org is required")
	}
	if p.VarianceTolerance.IsNegative() {
		return apperror.NewValidation("variance tolerance must not be negative").
			WithDetail("field", "varianceTolerance")
	}
	return s.repo.Upsert(ctx, p)
}
