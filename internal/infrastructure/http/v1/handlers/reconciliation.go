package handlers

import (
	"github.com/gin-gonic/gin"

	"brigata/internal/domain/reconciliation"
)

// ReconciliationHandler exposes variance reports.
type ReconciliationHandler struct {
	*BaseHandler
	service *reconciliation.Service
}

// NewReconciliationHandler creates a reconciliation handler.
func NewReconciliationHandler(base *BaseHandler, service *reconciliation.Service) *ReconciliationHandler {
	return &ReconciliationHandler{BaseHandler: base, service: service}
}

// RegisterRoutes registers reconciliation endpoints on the group.
func (h *ReconciliationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.Report)
}

// Report handles GET /reconciliation?orgId&branchId&from&to.
// The report is derived on demand and never persisted.
func (h *ReconciliationHandler) Report(c *gin.Context) {
	orgID, ok := h.ParseIDQuery(c, "orgId")
	if !ok {
		return
	}
	branchID, ok := h.ParseIDQuery(c, "branchId")
	if !ok {
		return
	}
	from, ok := h.ParseTimeQuery(c, "from")
	if !ok {
		return
	}
	to, ok := h.ParseTimeQuery(c, "to")
	if !ok {
		return
	}

	report, err := h.service.Reconcile(c.Request.Context(), orgID, branchID, from, to)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}
