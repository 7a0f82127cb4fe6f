package escrow

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/chorebay/chorebay/internal/auth"
	"github.com/chorebay/chorebay/internal/chore"
	"github.com/chorebay/chorebay/internal/validation"
)

// Handler provides HTTP endpoints for escrow order and payout operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new escrow handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up escrow routes on an auth-required group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/chores/:id/orders", h.CreateOrder)
	r.GET("/chores/:id/payments", h.ListPayments)
}

// RegisterAdminRoutes sets up admin-only escrow routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/chores/:id/release/retry", h.RetryRelease)
}

// OrderRequest optionally overrides the amount to collect, in minor units.
// Omitted or zero falls back to the chore's agreed price.
type OrderRequest struct {
	Amount int64 `json:"amount"`
}

// CreateOrder handles POST /v1/chores/:id/orders
func (h *Handler) CreateOrder(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)

	var req OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "malformed request body",
		})
		return
	}
	if req.Amount != 0 && !validation.IsValidAmount(req.Amount) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "amount is out of range",
		})
		return
	}

	payment, order, err := h.service.CreateOrder(c.Request.Context(), p.UserID, c.Param("id"), req.Amount)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"orderId":   order.ID,
		"amount":    payment.Amount,
		"currency":  payment.Currency,
		"paymentId": payment.ID,
		"mode":      h.service.gateway.Mode(),
	})
}

// ListPayments handles GET /v1/chores/:id/payments
func (h *Handler) ListPayments(c *gin.Context) {
	payments, err := h.service.ListPayments(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments, "count": len(payments)})
}

// RetryRelease handles POST /v1/chores/:id/release/retry
func (h *Handler) RetryRelease(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)

	if err := h.service.RetryRelease(c.Request.Context(), c.Param("id"), p.UserID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"released": true})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, chore.ErrChoreNotFound), errors.Is(err, ErrPaymentNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, ErrNotOwner):
		status = http.StatusForbidden
		code = "forbidden"
	case errors.Is(err, ErrOrderExists):
		status = http.StatusConflict
		code = "order_exists"
	case errors.Is(err, ErrAlreadyReleased):
		status = http.StatusConflict
		code = "already_released"
	case errors.Is(err, ErrNoPayoutAccount):
		status = http.StatusBadRequest
		code = "no_payout_account"
	case errors.Is(err, ErrNotOrderable), errors.Is(err, ErrReleaseNotNeeded),
		errors.Is(err, ErrNoCapturedPayment):
		status = http.StatusBadRequest
		code = "invalid_state"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
