package dto

import "brigata/internal/core/types"

// UpdatePolicyRequest is the body for PUT /orgs/:orgId/policy.
type UpdatePolicyRequest struct {
	AllowCostFallback          bool           `json:"allowCostFallback"`
	RequireCleanReconciliation bool           `json:"requireCleanReconciliation"`
	VarianceTolerance          types.Quantity `json:"varianceTolerance"`
}
