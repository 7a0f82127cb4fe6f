package ledger

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/chorebay/chorebay/internal/auth"
	"github.com/chorebay/chorebay/internal/chore"
	"github.com/chorebay/chorebay/internal/validation"
)

// Handler provides HTTP endpoints for the manual payment ledger.
type Handler struct {
	service *Service
}

// NewHandler creates a new ledger handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up ledger routes on an auth-required group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/chores/:id/payments/manual", h.RecordPayment)
	r.GET("/chores/:id/payments/manual", h.ListPayments)
}

// RecordPayment handles POST /v1/chores/:id/payments/manual
func (h *Handler) RecordPayment(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)

	var req RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "direction, method and amount are required",
		})
		return
	}
	if !validation.IsValidAmount(req.Amount) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "amount must be a positive amount in minor units",
		})
		return
	}
	req.Notes = validation.SanitizeString(req.Notes, validation.MaxNotesLength)

	entry, err := h.service.Record(c.Request.Context(), p.UserID, c.Param("id"), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"entry": entry})
}

// ListPayments handles GET /v1/chores/:id/payments/manual
func (h *Handler) ListPayments(c *gin.Context) {
	entries, err := h.service.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, chore.ErrChoreNotFound), errors.Is(err, ErrEntryNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, ErrNotOwner):
		status = http.StatusForbidden
		code = "forbidden"
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidMethod),
		errors.Is(err, ErrInvalidFlow), errors.Is(err, ErrNotRecordable):
		status = http.StatusBadRequest
		code = "invalid_request"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
