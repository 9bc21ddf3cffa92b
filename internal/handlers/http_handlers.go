package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"tombola/internal/admin"
	"tombola/internal/draw"
	"tombola/internal/metrics"
	"tombola/internal/models"
	"tombola/internal/services"
)

// HTTPHandler holds the dependencies for the HTTP handlers.
type HTTPHandler struct {
	tickets *services.TicketService
	prizes  *services.PrizeService
	draws   *services.DrawService
	admin   *admin.Service
	watcher *draw.Watcher
}

// NewHTTPHandler creates a new HTTPHandler.
func NewHTTPHandler(tickets *services.TicketService, prizes *services.PrizeService, draws *services.DrawService, adminSvc *admin.Service, watcher *draw.Watcher) *HTTPHandler {
	return &HTTPHandler{
		tickets: tickets,
		prizes:  prizes,
		draws:   draws,
		admin:   adminSvc,
		watcher: watcher,
	}
}

// RegisterRoutes registers all the application routes.
func (h *HTTPHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api")
	api.GET("/status", h.GetStatus)
	api.GET("/stats", h.GetStats)
	api.GET("/tickets", h.GetPublicTickets)
	api.POST("/tickets", h.AddTicket)
	api.GET("/prizes", h.GetPrizes)
	api.POST("/admin/login", h.Login)

	adm := api.Group("/admin")
	adm.Use(h.AdminMiddleware())
	h.registerAdminRoutes(adm)
}

// errorJSON answers with {"error": msg}.
func errorJSON(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

// statusFor maps service errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrPrizeNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidTicketNumber),
		errors.Is(err, services.ErrInvalidPrice),
		errors.Is(err, services.ErrInvalidCount),
		errors.Is(err, services.ErrPrizeFieldsRequired),
		errors.Is(err, services.ErrInvalidPrizeOrder),
		errors.Is(err, services.ErrMigrationUnsupported),
		errors.Is(err, admin.ErrSecurityCodeTooShort):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrPrizeLimitReached),
		errors.Is(err, services.ErrPrizeInactive),
		errors.Is(err, services.ErrPrizeAlreadyWon),
		errors.Is(err, services.ErrNoEligibleTickets):
		return http.StatusConflict
	case errors.Is(err, admin.ErrForbidden):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	errorJSON(c, status, err)
}

// Health reports liveness.
func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetStatus returns the countdown: threshold, tier progress and draw time.
func (h *HTTPHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"countdown": h.watcher.Countdown(),
		"maxLots":   h.prizes.MaxLots(),
	})
}

// GetStats returns the live statistics.
func (h *HTTPHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.tickets.GetLiveStats())
}

// GetPublicTickets lists the public projection of every ticket.
func (h *HTTPHandler) GetPublicTickets(c *gin.Context) {
	c.JSON(http.StatusOK, h.tickets.GetPublicTickets())
}

// AddTicket records a purchase.
func (h *HTTPHandler) AddTicket(c *gin.Context) {
	var in models.TicketInput
	if err := c.ShouldBindJSON(&in); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	if in.Source == models.SourceTestGeneration {
		errorJSON(c, http.StatusBadRequest, errors.New("source is reserved"))
		return
	}

	view, err := h.tickets.AddTicket(in)
	if err != nil {
		fail(c, err)
		return
	}
	metrics.RecordTicketAdded(view.Source, 1)
	c.JSON(http.StatusCreated, view)
}

// GetPrizes lists the catalog with the number of unlocked lots.
func (h *HTTPHandler) GetPrizes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"prizes":  h.prizes.List(),
		"maxLots": h.prizes.MaxLots(),
	})
}

type loginRequest struct {
	Email        string `json:"email" binding:"required"`
	Password     string `json:"password" binding:"required"`
	SecurityCode string `json:"securityCode"`
}

// Login opens the admin session and returns its bearer token.
func (h *HTTPHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}

	user, token, err := h.admin.Login(strings.TrimSpace(req.Email), req.Password, req.SecurityCode)
	if err != nil {
		if errors.Is(err, admin.ErrInvalidCredentials) {
			errorJSON(c, http.StatusUnauthorized, err)
			return
		}
		fail(c, err)
		return
	}
	h.admin.LogActivity("login", nil)
	c.JSON(http.StatusOK, gin.H{"user": user, "token": token})
}

// AdminMiddleware requires the current session's bearer token and binds it
// to the request context for the ledger's access check.
func (h *HTTPHandler) AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			token = strings.TrimSpace(parts[1])
		}
		if token == "" {
			errorJSON(c, http.StatusUnauthorized, admin.ErrNotAuthenticated)
			c.Abort()
			return
		}

		user, err := h.admin.ValidateToken(token)
		if err != nil || !h.admin.ValidateSession() {
			errorJSON(c, http.StatusUnauthorized, admin.ErrInvalidToken)
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(admin.WithToken(c.Request.Context(), token))
		c.Set("adminUser", user)
		c.Next()
	}
}
