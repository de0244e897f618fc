package handlers

import (
	"github.com/gin-gonic/gin"

	"brigata/internal/domain/orgpolicy"
	"brigata/internal/infrastructure/http/v1/dto"
)

// PoliciesHandler exposes org-level costing configuration.
type PoliciesHandler struct {
	*BaseHandler
	service *orgpolicy.Service
}

// NewPoliciesHandler creates a policies handler.
func NewPoliciesHandler(base *BaseHandler, service *orgpolicy.Service) *PoliciesHandler {
	return &PoliciesHandler{BaseHandler: base, service: service}
}

// RegisterRoutes registers policy endpoints on the group.
func (h *PoliciesHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:orgId/policy", h.Get)
	rg.PUT("/:orgId/policy", h.Update)
}

// Get handles GET /orgs/:orgId/policy. Unconfigured orgs get the defaults.
func (h *PoliciesHandler) Get(c *gin.Context) {
	orgID, ok := h.ParseID(c, "orgId")
	if !ok {
		return
	}

	policy, err := h.service.PolicyFor(c.Request.Context(), orgID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, policy)
}

// Update handles PUT /orgs/:orgId/policy.
func (h *PoliciesHandler) Update(c *gin.Context) {
	orgID, ok := h.ParseID(c, "orgId")
	if !ok {
		return
	}

	var req dto.UpdatePolicyRequest
	if !h.BindJSON(c, &req) {
		return
	}

	policy := orgpolicy.Policy{
		OrgID:                      orgID,
		AllowCostFallback:          req.AllowCostFallback,
		RequireCleanReconciliation: req.RequireCleanReconciliation,
		VarianceTolerance:          req.VarianceTolerance,
	}
	if err := h.service.Update(c.Request.Context(), policy); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, policy)
}
