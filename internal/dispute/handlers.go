package dispute

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/chorebay/chorebay/internal/auth"
	"github.com/chorebay/chorebay/internal/chore"
	"github.com/chorebay/chorebay/internal/escrow"
	"github.com/chorebay/chorebay/internal/validation"
)

// Handler provides HTTP endpoints for dispute operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new dispute handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up dispute routes on an auth-required group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/chores/:id/disputes", h.OpenDispute)
	r.GET("/chores/:id/disputes", h.ListByChore)
	r.GET("/disputes/:id", h.GetDispute)
}

// RegisterAdminRoutes sets up admin-only dispute routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/disputes", h.ListOpen)
	r.POST("/disputes/:id/review", h.ReviewDispute)
	r.POST("/disputes/:id/resolve", h.ResolveDispute)
}

// OpenRequest contains the parameters for opening a dispute.
type OpenRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// OpenDispute handles POST /v1/chores/:id/disputes
func (h *Handler) OpenDispute(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)

	var req OpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "reason is required",
		})
		return
	}
	req.Reason = validation.SanitizeString(req.Reason, validation.MaxNotesLength)

	d, err := h.service.Open(c.Request.Context(), p.UserID, c.Param("id"), req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"dispute": d})
}

// GetDispute handles GET /v1/disputes/:id
func (h *Handler) GetDispute(c *gin.Context) {
	d, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute": d})
}

// ListByChore handles GET /v1/chores/:id/disputes
func (h *Handler) ListByChore(c *gin.Context) {
	disputes, err := h.service.ListByChore(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disputes": disputes, "count": len(disputes)})
}

// ListOpen handles GET /v1/disputes
func (h *Handler) ListOpen(c *gin.Context) {
	disputes, err := h.service.ListOpen(c.Request.Context(), 50)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disputes": disputes, "count": len(disputes)})
}

// ReviewDispute handles POST /v1/disputes/:id/review
func (h *Handler) ReviewDispute(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)

	d, err := h.service.Review(c.Request.Context(), p.UserID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute": d})
}

// ResolveRequest contains an admin's resolution verdict. AmountRefunded
// caps a REFUND_CLIENT refund below the captured amount; omitted or zero
// means a full refund.
type ResolveRequest struct {
	Action                 Action `json:"action" binding:"required"`
	Resolution             string `json:"resolution"`
	AmountRefunded         int64  `json:"amountRefunded"`
	WorkerPayoutAdjustment int64  `json:"workerPayoutAdjustment"`
}

// ResolveDispute handles POST /v1/admin/disputes/:id/resolve
func (h *Handler) ResolveDispute(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)

	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "action is required",
		})
		return
	}
	if req.AmountRefunded < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "amountRefunded must not be negative",
		})
		return
	}

	d, err := h.service.Resolve(c.Request.Context(), p.UserID, c.Param("id"), Resolution{
		Action:                 req.Action,
		Notes:                  validation.SanitizeString(req.Resolution, validation.MaxNotesLength),
		AmountRefunded:         req.AmountRefunded,
		WorkerPayoutAdjustment: req.WorkerPayoutAdjustment,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute": d})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, ErrDisputeNotFound), errors.Is(err, chore.ErrChoreNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, ErrNotParty):
		status = http.StatusForbidden
		code = "forbidden"
	case errors.Is(err, ErrDisputeExists):
		status = http.StatusConflict
		code = "dispute_exists"
	case errors.Is(err, ErrAlreadyResolved):
		status = http.StatusConflict
		code = "already_resolved"
	case errors.Is(err, ErrInvalidAction), errors.Is(err, ErrChoreClosed),
		errors.Is(err, escrow.ErrInvalidRefundAmount):
		status = http.StatusBadRequest
		code = "invalid_request"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
