package webhook

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/chorebay/chorebay/internal/validation"
)

// SignatureHeader carries the processor's HMAC over the raw body.
const SignatureHeader = "X-Razorpay-Signature"

// Handler exposes the webhook endpoint. It is unauthenticated: the
// signature is the authentication.
type Handler struct {
	ingestor *Ingestor
}

// NewHandler creates a new webhook handler.
func NewHandler(ingestor *Ingestor) *Handler {
	return &Handler{ingestor: ingestor}
}

// RegisterRoutes sets up the webhook route on the public group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/processor", h.Receive)
}

// Receive handles POST /v1/webhooks/processor. The body must be read raw:
// the signature covers the exact bytes the processor sent.
func (h *Handler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, validation.MaxRequestSize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
		return
	}

	// Only an unverifiable or undecodable request is the sender's fault.
	// Downstream trouble is acknowledged with 200 so the processor does not
	// redeliver forever; idempotent application makes that safe.
	res, err := h.ingestor.Ingest(c.Request.Context(), body, c.GetHeader(SignatureHeader))
	if errors.Is(err, ErrBadSignature) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_signature"})
		return
	}
	if errors.Is(err, ErrBadPayload) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "result": string(res)})
}
