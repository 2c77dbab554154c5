package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"reservation-service/internal/models"
	"reservation-service/internal/service"
	"reservation-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// OrderService is the reservation side the handler serves
type OrderService interface {
	PlaceOrder(ctx context.Context, actor models.Actor, req service.PlaceOrderRequest) (*models.Order, error)
	CancelOrder(ctx context.Context, actor models.Actor, orderID int64) (*models.Order, error)
	AdvanceStatus(ctx context.Context, actor models.Actor, orderID int64, next models.OrderStatus) (*models.Order, error)
	GetOrder(ctx context.Context, actor models.Actor, orderID int64) (*models.Order, error)
	ListOrders(ctx context.Context, actor models.Actor, filter models.OrderFilter) ([]models.Order, error)
}

// ListingService is the restaurant side the handler serves
type ListingService interface {
	CreateListing(ctx context.Context, actor models.Actor, in service.ListingInput) (*models.Listing, error)
	UpdateListing(ctx context.Context, actor models.Actor, id int64, in service.ListingInput) (*models.Listing, error)
	Restock(ctx context.Context, actor models.Actor, id int64, amount int) (*models.Listing, error)
	DeleteListing(ctx context.Context, actor models.Actor, id int64) error
	GetListing(ctx context.Context, id int64) (*models.Listing, error)
	ListListings(ctx context.Context, restaurantID int64, page, limit int) (*service.ListingPage, error)
	GetAvailability(ctx context.Context, id int64) (*models.StockLevel, error)
}

// StockAuditor checks a listing's stock against its live orders
type StockAuditor interface {
	Audit(ctx context.Context, listingID int64) (*service.StockAudit, error)
}

// ReadinessCheck reports whether a dependency is reachable
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	orders   OrderService
	listings ListingService
	auditor  StockAuditor
	checks   []ReadinessCheck
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(orders OrderService, listings ListingService, auditor StockAuditor, checks ...ReadinessCheck) *Handler {
	return &Handler{
		orders:   orders,
		listings: listings,
		auditor:  auditor,
		checks:   checks,
		logger:   util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger(h.logger))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(actorMiddleware())
	{
		v1.GET("/listings", h.listListings)
		v1.GET("/listings/:id", h.getListing)
		v1.GET("/listings/:id/availability", h.getAvailability)
	}

	authed := v1.Group("")
	authed.Use(requireActor())
	{
		authed.POST("/orders", h.placeOrder)
		authed.GET("/orders", h.listOrders)
		authed.GET("/orders/:id", h.getOrder)
		authed.POST("/orders/:id/cancel", h.cancelOrder)
		authed.POST("/orders/:id/status", h.advanceStatus)

		authed.POST("/listings", h.createListing)
		authed.PUT("/listings/:id", h.updateListing)
		authed.POST("/listings/:id/restock", h.restock)
		authed.DELETE("/listings/:id", h.deleteListing)
		authed.GET("/listings/:id/audit", h.auditListing)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when every dependency answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for _, check := range h.checks {
		if err := check.Check(ctx); err != nil {
			failed[check.Name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// placeOrder handles order creation
func (h *Handler) placeOrder(c *gin.Context) {
	var req service.PlaceOrderRequest
	if !bind(c, &req) {
		return
	}

	order, err := h.orders.PlaceOrder(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// listOrders returns the caller's orders, newest first
func (h *Handler) listOrders(c *gin.Context) {
	filter := models.OrderFilter{
		Status:    models.OrderStatus(c.Query("status")),
		ListingID: queryInt64(c, "listing_id"),
		Limit:     int(queryInt64(c, "limit")),
	}

	orders, err := h.orders.ListOrders(c.Request.Context(), actorFrom(c), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), actorFrom(c), orderID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	order, err := h.orders.CancelOrder(c.Request.Context(), actorFrom(c), orderID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

type statusRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
}

func (h *Handler) advanceStatus(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}
	var req statusRequest
	if !bind(c, &req) {
		return
	}

	order, err := h.orders.AdvanceStatus(c.Request.Context(), actorFrom(c), orderID, req.Status)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *Handler) listListings(c *gin.Context) {
	page, err := h.listings.ListListings(c.Request.Context(),
		queryInt64(c, "restaurant_id"),
		int(queryInt64(c, "page")),
		int(queryInt64(c, "limit")))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

type listingResponse struct {
	*models.Listing
	DiscountPercentage int `json:"discount_percentage"`
}

func newListingResponse(l *models.Listing) listingResponse {
	return listingResponse{Listing: l, DiscountPercentage: l.DiscountPercentage()}
}

func (h *Handler) getListing(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	l, err := h.listings.GetListing(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newListingResponse(l))
}

func (h *Handler) getAvailability(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	level, err := h.listings.GetAvailability(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, level)
}

func (h *Handler) createListing(c *gin.Context) {
	var in service.ListingInput
	if !bind(c, &in) {
		return
	}

	l, err := h.listings.CreateListing(c.Request.Context(), actorFrom(c), in)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newListingResponse(l))
}

func (h *Handler) updateListing(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var in service.ListingInput
	if !bind(c, &in) {
		return
	}

	l, err := h.listings.UpdateListing(c.Request.Context(), actorFrom(c), id, in)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newListingResponse(l))
}

type restockRequest struct {
	Amount int `json:"amount"`
}

func (h *Handler) restock(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req restockRequest
	if !bind(c, &req) {
		return
	}

	l, err := h.listings.Restock(c.Request.Context(), actorFrom(c), id, req.Amount)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newListingResponse(l))
}

func (h *Handler) deleteListing(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.listings.DeleteListing(c.Request.Context(), actorFrom(c), id); err != nil {
		h.writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// auditListing is an operator view of a listing's stock balance
func (h *Handler) auditListing(c *gin.Context) {
	if actorFrom(c).Role != models.RoleSystem {
		h.writeError(c, models.ErrForbidden)
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	audit, err := h.auditor.Audit(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, audit)
}

func bind(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"code":    "invalid_request",
			"details": err.Error(),
		})
		return false
	}
	return true
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid ID",
			"code":  "invalid_request",
		})
		return 0, false
	}
	return id, true
}

// queryInt64 returns 0 for an absent or malformed parameter
func queryInt64(c *gin.Context, key string) int64 {
	n, _ := strconv.ParseInt(c.Query(key), 10, 64)
	return n
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

// requestLogger writes one structured line per request
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("actor", c.GetHeader(headerActorID)))
	}
}
