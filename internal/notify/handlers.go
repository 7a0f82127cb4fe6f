package notify

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/chorebay/chorebay/internal/auth"
	"github.com/chorebay/chorebay/internal/idgen"
)

// Handler provides HTTP endpoints for managing notification subscriptions.
type Handler struct {
	store Store
}

// NewHandler creates a new subscription handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up subscription routes on an auth-required group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/notifications/subscriptions", h.Subscribe)
	r.GET("/notifications/subscriptions", h.ListSubscriptions)
	r.DELETE("/notifications/subscriptions/:id", h.Unsubscribe)
}

// SubscribeRequest contains the parameters for a new subscription.
type SubscribeRequest struct {
	URL    string   `json:"url" binding:"required"`
	Secret string   `json:"secret"`
	Events []string `json:"events" binding:"required"`
}

// Subscribe handles POST /v1/notifications/subscriptions
func (h *Handler) Subscribe(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)

	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "url and events are required",
		})
		return
	}
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_url",
			"message": "url must be http or https",
		})
		return
	}

	sub := &Subscription{
		ID:        idgen.WithPrefix("sub_"),
		UserID:    p.UserID,
		URL:       req.URL,
		Secret:    req.Secret,
		Active:    true,
		CreatedAt: time.Now(),
	}
	for _, e := range req.Events {
		sub.Events = append(sub.Events, EventType(e))
	}

	if err := h.store.Create(c.Request.Context(), sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"subscription": sub})
}

// ListSubscriptions handles GET /v1/notifications/subscriptions
func (h *Handler) ListSubscriptions(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)

	subs, err := h.store.GetByUser(c.Request.Context(), p.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs, "count": len(subs)})
}

// Unsubscribe handles DELETE /v1/notifications/subscriptions/:id
func (h *Handler) Unsubscribe(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)

	sub, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if sub.UserID != p.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	if err := h.store.Delete(c.Request.Context(), sub.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
