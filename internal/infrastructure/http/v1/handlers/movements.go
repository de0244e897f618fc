package handlers

import (
	"github.com/gin-gonic/gin"

	"brigata/internal/core/apperror"
	"brigata/internal/core/id"
	"brigata/internal/core/types"
	"brigata/internal/domain/ledger"
	"brigata/internal/infrastructure/http/v1/dto"
)

// MovementsHandler exposes the stock ledger.
type MovementsHandler struct {
	*BaseHandler
	service *ledger.Service
}

// NewMovementsHandler creates a movements handler.
func NewMovementsHandler(base *BaseHandler, service *ledger.Service) *MovementsHandler {
	return &MovementsHandler{BaseHandler: base, service: service}
}

// RegisterRoutes registers movement endpoints on the group.
func (h *MovementsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Record)
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.GET("/on-hand", h.OnHand)
}

// Record handles POST /movements.
func (h *MovementsHandler) Record(c *gin.Context) {
	var req dto.RecordMovementRequest
	if !h.BindJSON(c, &req) {
		return
	}

	in, err := h.toInput(c, req)
	if err != nil {
		h.Error(c, err)
		return
	}

	m, err := h.service.RecordMovement(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, m.ID.String())
}

// Get handles GET /movements/:id, returning the movement with its
// consumption breakdown.
func (h *MovementsHandler) Get(c *gin.Context) {
	movementID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	m, breakdown, err := h.service.GetMovement(c.Request.Context(), movementID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.MovementResponse{Movement: m, Breakdown: breakdown})
}

// List handles GET /movements.
func (h *MovementsHandler) List(c *gin.Context) {
	orgID, ok := h.ParseIDQuery(c, "orgId")
	if !ok {
		return
	}

	filter := ledger.MovementFilter{
		OrgID:  orgID,
		Limit:  h.ParseIntQuery(c, "limit", 100),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}
	if v := c.Query("branchId"); v != "" {
		parsed, err := id.Parse(v)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid branchId"))
			return
		}
		filter.BranchID = &parsed
	}
	if v := c.Query("itemId"); v != "" {
		parsed, err := id.Parse(v)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid itemId"))
			return
		}
		filter.ItemID = &parsed
	}
	if v := c.Query("locationId"); v != "" {
		parsed, err := id.Parse(v)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid locationId"))
			return
		}
		filter.LocationID = &parsed
	}
	if v := c.Query("type"); v != "" {
		t := ledger.MovementType(v)
		if !t.Valid() {
			h.Error(c, apperror.NewValidation("invalid movement type"))
			return
		}
		filter.Type = &t
	}

	movements, err := h.service.ListMovements(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse[ledger.StockMovement]{
		Items:  movements,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// OnHand handles GET /movements/on-hand.
func (h *MovementsHandler) OnHand(c *gin.Context) {
	branchID, ok := h.ParseIDQuery(c, "branchId")
	if !ok {
		return
	}
	itemID, ok := h.ParseIDQuery(c, "itemId")
	if !ok {
		return
	}
	locationID, ok := h.ParseIDQuery(c, "locationId")
	if !ok {
		return
	}
	at, ok := h.ParseTimeQuery(c, "at")
	if !ok {
		return
	}

	onHand, err := h.service.OnHandAt(c.Request.Context(), branchID, itemID, locationID, at)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.OnHandResponse{
		BranchID:   branchID.String(),
		ItemID:     itemID.String(),
		LocationID: locationID.String(),
		At:         at,
		OnHand:     onHand,
	})
}

// toInput converts the request into service input.
func (h *MovementsHandler) toInput(c *gin.Context, req dto.RecordMovementRequest) (ledger.RecordMovementInput, error) {
	orgID, err := id.Parse(req.OrgID)
	if err != nil {
		return ledger.RecordMovementInput{}, apperror.NewValidation("invalid orgId")
	}
	branchID, err := id.Parse(req.BranchID)
	if err != nil {
		return ledger.RecordMovementInput{}, apperror.NewValidation("invalid branchId")
	}
	itemID, err := id.Parse(req.ItemID)
	if err != nil {
		return ledger.RecordMovementInput{}, apperror.NewValidation("invalid itemId")
	}
	locationID, err := id.Parse(req.LocationID)
	if err != nil {
		return ledger.RecordMovementInput{}, apperror.NewValidation("invalid locationId")
	}

	unitCost := types.ZeroMoney()
	if req.UnitCost != "" {
		unitCost, err = types.NewMoneyFromString(req.UnitCost)
		if err != nil {
			return ledger.RecordMovementInput{}, apperror.NewValidation("invalid unitCost").
				WithDetail("field", "unitCost")
		}
	}

	return ledger.RecordMovementInput{
		OrgID:       orgID,
		BranchID:    branchID,
		ItemID:      itemID,
		LocationID:  locationID,
		Type:        ledger.MovementType(req.Type),
		Quantity:    req.Quantity,
		UnitCost:    unitCost,
		EffectiveAt: req.EffectiveAt,
		SourceRef:   req.SourceRef,
		Reason:      req.Reason,
		Override:    req.Override,
		Actor:       h.Actor(c),
	}, nil
}
