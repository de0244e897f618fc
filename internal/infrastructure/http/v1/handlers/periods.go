package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"brigata/internal/core/apperror"
	"brigata/internal/core/id"
	"brigata/internal/domain/glposting"
	"brigata/internal/domain/period"
	"brigata/internal/domain/reconciliation"
	"brigata/internal/domain/valuation"
	"brigata/internal/infrastructure/http/v1/dto"
)

// PeriodsHandler exposes the period lifecycle, snapshots, and exports.
type PeriodsHandler struct {
	*BaseHandler
	service    *period.Service
	valuations valuation.Repository

	// recon and gl are optional; the GL posting route is only registered
	// when both collaborators are configured.
	recon *reconciliation.Service
	gl    *glposting.Adapter
}

// NewPeriodsHandler creates a periods handler.
func NewPeriodsHandler(
	base *BaseHandler,
	service *period.Service,
	valuations valuation.Repository,
	recon *reconciliation.Service,
	gl *glposting.Adapter,
) *PeriodsHandler {
	return &PeriodsHandler{
		BaseHandler: base,
		service:     service,
		valuations:  valuations,
		recon:       recon,
		gl:          gl,
	}
}

// RegisterRoutes registers period endpoints on the group.
func (h *PeriodsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.POST("/:id/close", h.Close)
	rg.POST("/:id/reopen", h.Reopen)
	rg.GET("/:id/events", h.Events)
	rg.GET("/:id/snapshots", h.Snapshots)
	rg.GET("/:id/summaries", h.Summaries)
	rg.GET("/:id/export", h.Export)

	if h.recon != nil && h.gl != nil {
		rg.POST("/:id/gl-entries", h.PostGL)
	}
}

// Create handles POST /periods.
func (h *PeriodsHandler) Create(c *gin.Context) {
	var req dto.CreatePeriodRequest
	if !h.BindJSON(c, &req) {
		return
	}

	orgID, err := id.Parse(req.OrgID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid orgId"))
		return
	}
	branchID, err := id.Parse(req.BranchID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid branchId"))
		return
	}

	p, _, err := h.service.Create(c.Request.Context(), orgID, branchID, req.StartsAt, req.EndsAt, h.Actor(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, p.ID.String())
}

// Get handles GET /periods/:id.
func (h *PeriodsHandler) Get(c *gin.Context) {
	periodID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	p, err := h.service.GetByID(c.Request.Context(), periodID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.PeriodResponse{Period: p})
}

// List handles GET /periods?branchId=...
func (h *PeriodsHandler) List(c *gin.Context) {
	branchID, ok := h.ParseIDQuery(c, "branchId")
	if !ok {
		return
	}
	limit := h.ParseIntQuery(c, "limit", 50)
	offset := h.ParseIntQuery(c, "offset", 0)

	periods, err := h.service.List(c.Request.Context(), branchID, limit, offset)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse[period.InventoryPeriod]{Items: periods, Limit: limit, Offset: offset})
}

// Close handles POST /periods/:id/close.
func (h *PeriodsHandler) Close(c *gin.Context) {
	periodID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	p, event, err := h.service.Close(c.Request.Context(), periodID, h.Actor(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.PeriodResponse{Period: p, Event: event})
}

// Reopen handles POST /periods/:id/reopen.
func (h *PeriodsHandler) Reopen(c *gin.Context) {
	periodID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	var req dto.ReopenPeriodRequest
	if !h.BindJSON(c, &req) {
		return
	}

	p, event, err := h.service.Reopen(c.Request.Context(), periodID, h.Actor(c), req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.PeriodResponse{Period: p, Event: event})
}

// Events handles GET /periods/:id/events.
func (h *PeriodsHandler) Events(c *gin.Context) {
	periodID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	events, err := h.service.ListEvents(c.Request.Context(), periodID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse[period.Event]{Items: events})
}

// Snapshots handles GET /periods/:id/snapshots?revision=N (0 = latest).
func (h *PeriodsHandler) Snapshots(c *gin.Context) {
	periodID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	revision, ok := h.resolveRevision(c, periodID)
	if !ok {
		return
	}

	snapshots, err := h.valuations.ListSnapshots(c.Request.Context(), periodID, revision)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse[valuation.Snapshot]{Items: snapshots})
}

// Summaries handles GET /periods/:id/summaries?revision=N (0 = latest).
func (h *PeriodsHandler) Summaries(c *gin.Context) {
	periodID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	revision, ok := h.resolveRevision(c, periodID)
	if !ok {
		return
	}

	summaries, err := h.valuations.ListSummaries(c.Request.Context(), periodID, revision)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse[valuation.MovementSummary]{Items: summaries})
}

// Export handles GET /periods/:id/export, serving a gzip JSON document.
func (h *PeriodsHandler) Export(c *gin.Context) {
	periodID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	revision := h.ParseIntQuery(c, "revision", 0)

	// Build the document before touching the response, so a missing period
	// or revision still renders as a regular JSON error.
	var buf bytes.Buffer
	if err := h.service.Export(c.Request.Context(), periodID, revision, h.Actor(c), &buf); err != nil {
		h.Error(c, err)
		return
	}

	c.Header("Content-Disposition",
		fmt.Sprintf(`attachment; filename="period-%s-export.json.gz"`, periodID))
	c.Data(http.StatusOK, "application/gzip", buf.Bytes())
}

// PostGL handles POST /periods/:id/gl-entries: computes COGS via
// reconciliation, folds summaries into figures, and posts the journal entry.
func (h *PeriodsHandler) PostGL(c *gin.Context) {
	periodID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	var req dto.PostGLRequest
	if c.Request.ContentLength > 0 && !h.BindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	p, err := h.service.GetByID(ctx, periodID)
	if err != nil {
		h.Error(c, err)
		return
	}

	revision := req.Revision
	if revision <= 0 {
		revision, err = h.valuations.LatestRevision(ctx, periodID)
		if err != nil {
			h.Error(c, err)
			return
		}
	}
	if revision == 0 {
		h.Error(c, apperror.NewConflict("period has no closed revision to post"))
		return
	}

	report, err := h.recon.Reconcile(ctx, p.OrgID, p.BranchID, p.StartsAt, p.EndsAt)
	if err != nil {
		h.Error(c, err)
		return
	}

	summaries, err := h.valuations.ListSummaries(ctx, periodID, revision)
	if err != nil {
		h.Error(c, err)
		return
	}

	figures := glposting.FiguresFromSummaries(periodID, revision, report.COGS, summaries)
	entryID, err := h.gl.PostPeriod(ctx, figures)
	if err != nil {
		h.Error(c, err)
		return
	}

	resp := dto.PostGLResponse{Revision: revision, Posted: !id.IsNil(entryID)}
	if resp.Posted {
		resp.EntryID = entryID.String()
	}
	h.OK(c, resp)
}

// resolveRevision reads the revision query parameter, resolving 0 to the
// period's latest revision with rows.
func (h *PeriodsHandler) resolveRevision(c *gin.Context, periodID id.ID) (int, bool) {
	revision := h.ParseIntQuery(c, "revision", 0)
	if revision > 0 {
		return revision, true
	}

	latest, err := h.valuations.LatestRevision(c.Request.Context(), periodID)
	if err != nil {
		h.Error(c, err)
		return 0, false
	}
	if latest == 0 {
		h.Error(c, apperror.NewNotFound("snapshot revision", periodID.String()))
		return 0, false
	}
	return latest, true
}
