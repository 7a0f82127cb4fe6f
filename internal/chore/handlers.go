package chore

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/chorebay/chorebay/internal/auth"
	"github.com/chorebay/chorebay/internal/validation"
)

// Handler provides HTTP endpoints for chore lifecycle operations.
type Handler struct {
	service       *Service
	processorMode string // surfaced in the approval response
}

// NewHandler creates a new chore handler.
func NewHandler(service *Service, processorMode string) *Handler {
	return &Handler{service: service, processorMode: processorMode}
}

// RegisterRoutes sets up chore routes on an auth-required group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/chores", h.CreateChore)
	r.GET("/chores/:id", h.GetChore)
	r.GET("/chores", h.ListChores)
	r.POST("/chores/:id/assign", h.AssignChore)
	r.POST("/chores/:id/start", h.StartChore)
	r.POST("/chores/:id/complete", h.CompleteChore)
	r.POST("/chores/:id/approve", h.ApproveChore)
	r.POST("/chores/:id/cancel", h.CancelChore)
	r.POST("/chores/:id/request-cancellation", h.RequestCancellation)
}

// CreateChore handles POST /v1/chores
func (h *Handler) CreateChore(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "title and budget are required",
		})
		return
	}
	if !validation.IsValidAmount(req.Budget) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "budget must be a positive amount in minor units",
		})
		return
	}
	req.Title = validation.SanitizeString(req.Title, 200)
	req.Description = validation.SanitizeString(req.Description, validation.MaxNotesLength)

	ch, err := h.service.Create(c.Request.Context(), p.UserID, req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"chore": ch})
}

// GetChore handles GET /v1/chores/:id
func (h *Handler) GetChore(c *gin.Context) {
	ch, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"chore":         ch,
		"paymentStatus": ch.EffectivePaymentStatus(),
	})
}

// ListChores handles GET /v1/chores
func (h *Handler) ListChores(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 200 {
				limit = 200
			}
		}
	}

	chores, next, err := h.service.ListByUser(c.Request.Context(), p.UserID, limit, c.Query("cursor"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := gin.H{"chores": chores, "count": len(chores)}
	if next != "" {
		resp["nextCursor"] = next
	}
	c.JSON(http.StatusOK, resp)
}

// AssignRequest contains the parameters for assigning a worker.
type AssignRequest struct {
	WorkerID    string `json:"workerId" binding:"required"`
	AgreedPrice int64  `json:"agreedPrice" binding:"required"`
}

// AssignChore handles POST /v1/chores/:id/assign
func (h *Handler) AssignChore(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)

	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "workerId and agreedPrice are required",
		})
		return
	}
	if !validation.IsValidAmount(req.AgreedPrice) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "agreedPrice must be a positive amount in minor units",
		})
		return
	}

	ch, err := h.service.Assign(c.Request.Context(), p.UserID, c.Param("id"), req.WorkerID, req.AgreedPrice)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chore": ch})
}

// StartChore handles POST /v1/chores/:id/start
func (h *Handler) StartChore(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)

	ch, err := h.service.Start(c.Request.Context(), p.UserID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chore": ch})
}

// CompleteChore handles POST /v1/chores/:id/complete
func (h *Handler) CompleteChore(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)

	ch, err := h.service.Complete(c.Request.Context(), p.UserID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chore": ch})
}

// ApproveChore handles POST /v1/chores/:id/approve
func (h *Handler) ApproveChore(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)

	ch, err := h.service.Approve(c.Request.Context(), p.UserID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"chore": ch,
		"mode":  h.processorMode,
	})
}

// CancelChore handles POST /v1/chores/:id/cancel
func (h *Handler) CancelChore(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)

	ch, err := h.service.Cancel(c.Request.Context(), p.UserID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chore": ch})
}

// RequestCancellation handles POST /v1/chores/:id/request-cancellation
func (h *Handler) RequestCancellation(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)

	ch, err := h.service.RequestCancellation(c.Request.Context(), p.UserID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chore": ch})
}

// writeError maps service errors onto the API error taxonomy. Callers
// always receive a reason string identifying which invariant blocked the
// operation.
func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, ErrChoreNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, ErrNotOwner), errors.Is(err, ErrNotWorker):
		status = http.StatusForbidden
		code = "forbidden"
	case errors.Is(err, ErrDisputeOpen):
		status = http.StatusConflict
		code = "dispute_open"
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrIllegalMove),
		errors.Is(err, ErrTerminal), errors.Is(err, ErrNotReservable):
		status = http.StatusBadRequest
		code = "invalid_state"
	case errors.Is(err, ErrInvalidPrice), errors.Is(err, ErrWorkerSameAsOwner),
		errors.Is(err, ErrNoWorker), errors.Is(err, ErrInvalidCursor):
		status = http.StatusBadRequest
		code = "invalid_request"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
