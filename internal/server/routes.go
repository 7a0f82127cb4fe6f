package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chorebay/chorebay/internal/auth"
	"github.com/chorebay/chorebay/internal/chore"
	"github.com/chorebay/chorebay/internal/dispute"
	"github.com/chorebay/chorebay/internal/escrow"
	"github.com/chorebay/chorebay/internal/health"
	"github.com/chorebay/chorebay/internal/ledger"
	"github.com/chorebay/chorebay/internal/logging"
	"github.com/chorebay/chorebay/internal/metrics"
	"github.com/chorebay/chorebay/internal/notify"
	"github.com/chorebay/chorebay/internal/validation"
	"github.com/chorebay/chorebay/internal/webhook"
)

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for real-time payment activity
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")

	// PUBLIC ROUTES (no auth required)
	// Processor webhooks authenticate with their own HMAC signature.
	webhook.NewHandler(s.ingestor).RegisterRoutes(v1)

	// REGISTRATION (public but returns API key)
	v1.POST("/auth/register", s.registerUser)

	// PROTECTED ROUTES (require API key)
	protected := v1.Group("")
	protected.Use(auth.Middleware(s.authMgr), auth.RequireAuth())
	{
		protected.GET("/auth/me", s.currentUser)
		protected.PUT("/auth/me/payout-account", s.setPayoutAccount)

		chore.NewHandler(s.choreSvc, s.gateway.Mode()).RegisterRoutes(protected)
		escrow.NewHandler(s.escrowSvc).RegisterRoutes(protected)
		dispute.NewHandler(s.disputeSvc).RegisterRoutes(protected)
		ledger.NewHandler(s.ledgerSvc).RegisterRoutes(protected)
		notify.NewHandler(s.notifier.Store()).RegisterRoutes(protected)
	}

	// ADMIN ROUTES (require admin role)
	admin := v1.Group("/admin")
	admin.Use(auth.Middleware(s.authMgr), auth.RequireAdmin())
	{
		escrow.NewHandler(s.escrowSvc).RegisterAdminRoutes(admin)
		dispute.NewHandler(s.disputeSvc).RegisterAdminRoutes(admin)
		admin.GET("/realtime/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, s.realtimeHub.Stats())
		})
	}
}

// -----------------------------------------------------------------------------
// Auth handlers
// -----------------------------------------------------------------------------

// RegisterRequest contains the parameters for creating an account.
type RegisterRequest struct {
	Name string `json:"name" binding:"required"`
	Role string `json:"role" binding:"required"`
}

// registerUser handles POST /v1/auth/register. It creates a user and
// returns the API key exactly once; only the hash is stored.
func (s *Server) registerUser(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "name and role are required",
		})
		return
	}

	role := auth.Role(req.Role)
	switch role {
	case auth.RoleCustomer, auth.RoleWorker:
	case auth.RoleAdmin:
		// Admin accounts are provisioned out of band in production.
		if s.cfg.IsProduction() {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "admin accounts cannot be self-registered",
			})
			return
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_role",
			"message": "role must be customer, worker or admin",
		})
		return
	}

	name := validation.SanitizeString(req.Name, 128)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "name must not be empty",
		})
		return
	}

	rawKey, user, err := s.authMgr.RegisterUser(c.Request.Context(), name, role)
	if err != nil {
		logging.L(c.Request.Context()).Error("registration failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user":    user,
		"apiKey":  rawKey,
		"warning": "Store this API key securely. It will not be shown again.",
	})
}

// currentUser handles GET /v1/auth/me
func (s *Server) currentUser(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)

	user, err := s.authMgr.GetUser(c.Request.Context(), p.UserID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// PayoutAccountRequest sets the processor account payouts route to.
type PayoutAccountRequest struct {
	AccountID string `json:"accountId" binding:"required"`
}

// setPayoutAccount handles PUT /v1/auth/me/payout-account. Workers must
// link a processor account before an order can route their share.
func (s *Server) setPayoutAccount(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)

	var req PayoutAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "accountId is required",
		})
		return
	}

	if err := s.authMgr.SetPayoutAccount(c.Request.Context(), p.UserID, req.AccountID); err != nil {
		logging.L(c.Request.Context()).Error("failed to set payout account", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

// -----------------------------------------------------------------------------
// Health & info handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.healthReg.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    statuses,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Chorebay",
		"description": "Escrow payments and dispute resolution for chore marketplaces",
		"version":     "0.1.0",
		"currency":    s.cfg.Currency,
		"mode":        s.gateway.Mode(),
	})
}
