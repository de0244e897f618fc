// Package policy_repo provides the PostgreSQL implementation of the
// org policy repository.
package policy_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"brigata/internal/core/apperror"
	"brigata/internal/core/id"
	"brigata/internal/domain/orgpolicy"
	"brigata/internal/infrastructure/storage/postgres"
)

const policiesTable = "org_policies"

// PolicyRepo implements orgpolicy.Repository.
type PolicyRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewPolicyRepo creates a new org policy repository.
func NewPolicyRepo(txm *postgres.TxManager) *PolicyRepo {
	return &PolicyRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Get returns the org's policy.
func (r *PolicyRepo) Get(ctx context.Context, orgID id.ID) (orgpolicy.Policy, error) {
	q := r.builder.Select(
		"org_id", "allow_cost_fallback", "require_clean_reconciliation", "variance_tolerance",
	).From(policiesTable).
		Where(squirrel.Eq{"org_id": orgID})

	sql, args, err := q.ToSql()
	if err != nil {
		return orgpolicy.Policy{}, fmt.Errorf("build query: %w", err)
	}

	var p orgpolicy.Policy
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &p, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return orgpolicy.Policy{}, apperror.NewNotFound("org policy", orgID.String())
		}
		return orgpolicy.Policy{}, fmt.Errorf("get org policy: %w", err)
	}
	return p, nil
}

// Upsert creates or replaces the org's policy.
func (r *PolicyRepo) Upsert(ctx context.Context, p orgpolicy.Policy) error {
	sql := `
		INSERT INTO org_policies (org_id, allow_cost_fallback, require_clean_reconciliation, variance_tolerance)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (org_id) DO UPDATE SET
			allow_cost_fallback = EXCLUDED.allow_cost_fallback,
			require_clean_reconciliation = EXCLUDED.require_clean_reconciliation,
			variance_tolerance = EXCLUDED.variance_tolerance
	`

	_, err := r.txm.GetQuerier(ctx).Exec(ctx, sql,
		p.OrgID, p.AllowCostFallback, p.RequireCleanReconciliation, p.VarianceTolerance)
	if err != nil {
		return fmt.Errorf("upsert org policy: %w", err)
	}
	return nil
}

var _ orgpolicy.Repository = (*PolicyRepo)(nil)
