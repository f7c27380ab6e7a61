package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ashupal86/GraminStore/internal/channel"
	"github.com/ashupal86/GraminStore/internal/models"
	"github.com/ashupal86/GraminStore/internal/store"
	syncpkg "github.com/ashupal86/GraminStore/internal/sync"
	"github.com/ashupal86/GraminStore/internal/util"
)

// Handler exposes the ledger's observable state over HTTP for the on-device UI
type Handler struct {
	store       *store.Store
	coordinator *syncpkg.Coordinator
	channel     *channel.Client
	merchantID  int64
}

// NewHandler creates a new HTTP handler
func NewHandler(s *store.Store, coordinator *syncpkg.Coordinator, ch *channel.Client, merchantID int64) *Handler {
	return &Handler{
		store:       s,
		coordinator: coordinator,
		channel:     ch,
		merchantID:  merchantID,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", h.getStatus)
		v1.POST("/sync", h.forceSync)
		v1.GET("/transactions", h.listTransactions)
		v1.GET("/customers", h.listCustomers)
		v1.GET("/customers/:name", h.getCustomerSnapshot)
		v1.GET("/analytics", h.getAnalytics)
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

// getStatus reports sync and channel state for the UI to render
func (h *Handler) getStatus(c *gin.Context) {
	status := h.coordinator.Status(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"sync":    status,
		"channel": h.channel.State(),
	})
}

// forceSync triggers an immediate sync run
func (h *Handler) forceSync(c *gin.Context) {
	result := h.coordinator.Run(c.Request.Context())

	code := http.StatusOK
	if result.Skipped {
		code = http.StatusConflict
	}
	c.JSON(code, result)
}

// listTransactions returns the merchant's local transactions newest-first
func (h *Handler) listTransactions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	days, _ := strconv.Atoi(c.DefaultQuery("days", "0"))

	txns, err := h.store.QueryTransactions(c.Request.Context(), h.merchantID, store.TransactionFilter{
		CustomerPhone: c.Query("phone"),
		Days:          days,
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to query transactions",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

// listCustomers returns the merchant's customer aggregates
func (h *Handler) listCustomers(c *gin.Context) {
	aggs, err := h.store.ListAggregates(c.Request.Context(), h.merchantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to list customers",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"customers": aggs})
}

// getCustomerSnapshot returns one customer's totals with a paid/outstanding split
func (h *Handler) getCustomerSnapshot(c *gin.Context) {
	snap, err := h.store.AggregateSnapshot(c.Request.Context(), h.merchantID, c.Param("name"))
	if errors.Is(err, models.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Customer not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load customer",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, snap)
}

// getAnalytics summarizes the merchant's transactions over a trailing window
func (h *Handler) getAnalytics(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))

	analytics, err := h.store.Analytics(c.Request.Context(), h.merchantID, days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to compute analytics",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, analytics)
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
