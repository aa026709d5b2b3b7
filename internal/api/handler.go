package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"marketplace/internal/auth"
	"marketplace/internal/models"
	"marketplace/internal/service"
	"marketplace/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// CheckoutAPI is the slice of CheckoutService the handlers use
type CheckoutAPI interface {
	Checkout(ctx context.Context, buyerID int64, req *service.CheckoutRequest) (*service.CheckoutResponse, error)
}

// OrderAPI is the slice of OrderService the handlers use
type OrderAPI interface {
	GetOrder(ctx context.Context, principalID, orderID int64) (*service.OrderWithEscrow, error)
	ListOrders(ctx context.Context, principalID int64) ([]service.OrderWithEscrow, error)
	SubmitFulfillment(ctx context.Context, principalID, orderID int64) (*models.Order, error)
	ConfirmDelivery(ctx context.Context, principalID, orderID int64) (*service.OrderWithEscrow, error)
	Refund(ctx context.Context, principalID, orderID int64) (*service.OrderWithEscrow, error)
	OpenDispute(ctx context.Context, principalID, orderID int64) (*models.Order, error)
}

// Handler contains HTTP handlers
type Handler struct {
	checkout CheckoutAPI
	orders   OrderAPI
	demoMode bool
}

// NewHandler creates a new HTTP handler
func NewHandler(checkout CheckoutAPI, orders OrderAPI, demoMode bool) *Handler {
	return &Handler{
		checkout: checkout,
		orders:   orders,
		demoMode: demoMode,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(authMiddleware)
	{
		v1.POST("/checkout", h.requireDemoMode, h.createCheckout)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/fulfillment", h.submitFulfillment)
		v1.POST("/orders/:id/confirm", h.confirmDelivery)
		v1.POST("/orders/:id/refund", h.refund)
		v1.POST("/orders/:id/dispute", h.openDispute)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// requireDemoMode gates checkout: without real payment capture wired,
// checkout only runs when demo mode is enabled.
func (h *Handler) requireDemoMode(c *gin.Context) {
	if !h.demoMode {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "demo checkout is disabled"})
		return
	}
	c.Next()
}

// createCheckout handles cart checkout
func (h *Handler) createCheckout(c *gin.Context) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	resp, err := h.checkout.Checkout(c.Request.Context(), principal.ID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// listOrders returns orders the principal participates in
func (h *Handler) listOrders(c *gin.Context) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	orders, err := h.orders.ListOrders(c.Request.Context(), principal.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// getOrder returns a single order with its escrow
func (h *Handler) getOrder(c *gin.Context) {
	principal, orderID, ok := h.principalAndOrderID(c)
	if !ok {
		return
	}

	result, err := h.orders.GetOrder(c.Request.Context(), principal.ID, orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// submitFulfillment handles the seller fulfillment transition
func (h *Handler) submitFulfillment(c *gin.Context) {
	principal, orderID, ok := h.principalAndOrderID(c)
	if !ok {
		return
	}

	order, err := h.orders.SubmitFulfillment(c.Request.Context(), principal.ID, orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}

// confirmDelivery handles the buyer release transition
func (h *Handler) confirmDelivery(c *gin.Context) {
	principal, orderID, ok := h.principalAndOrderID(c)
	if !ok {
		return
	}

	result, err := h.orders.ConfirmDelivery(c.Request.Context(), principal.ID, orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// refund handles the buyer refund transition
func (h *Handler) refund(c *gin.Context) {
	principal, orderID, ok := h.principalAndOrderID(c)
	if !ok {
		return
	}

	result, err := h.orders.Refund(c.Request.Context(), principal.ID, orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// openDispute handles dispute opening by either party
func (h *Handler) openDispute(c *gin.Context) {
	principal, orderID, ok := h.principalAndOrderID(c)
	if !ok {
		return
	}

	order, err := h.orders.OpenDispute(c.Request.Context(), principal.ID, orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (h *Handler) principalAndOrderID(c *gin.Context) (auth.Principal, int64, bool) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return auth.Principal{}, 0, false
	}

	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || orderID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return auth.Principal{}, 0, false
	}

	return principal, orderID, true
}

// respondError maps the service error taxonomy onto HTTP statuses.
// Anything outside the taxonomy is an internal failure and is not echoed
// to the caller.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		util.GetLogger().Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
