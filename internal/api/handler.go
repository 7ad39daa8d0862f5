package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	orderService   *service.OrderService
	paymentService *service.PaymentService
	jwtSecret      string
}

// NewHandler creates a new HTTP handler
func NewHandler(orderService *service.OrderService, paymentService *service.PaymentService, jwtSecret string) *Handler {
	return &Handler{
		orderService:   orderService,
		paymentService: paymentService,
		jwtSecret:      jwtSecret,
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
		v1.GET("/products", h.listProducts)
		v1.POST("/orders", h.placeOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/discounts/validate", h.validateDiscount)
	}

	// The webhook is called by the third-party gateway, so it gets a
	// permissive CORS policy and answers OPTIONS pre-flights with 204.
	webhook := router.Group("/api/v1/payments")
	webhook.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Content-Type"},
		MaxAge:          12 * time.Hour,
	}))
	webhook.Any("/webhook", h.paymentWebhook)

	admin := router.Group("/api/v1/admin")
	admin.Use(AuthRequired(h.jwtSecret))
	{
		admin.GET("/orders", h.listOrders)
		admin.PATCH("/orders/:id/status", h.updateOrderStatus)
		admin.PUT("/products/:id/stock", h.setProductStock)
		admin.POST("/discounts", h.upsertDiscountCode)
		admin.DELETE("/discounts/:code", h.deleteDiscountCode)
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

// listProducts returns the catalog
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.orderService.ListProducts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load products"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// placeOrder handles order placement
func (h *Handler) placeOrder(c *gin.Context) {
	var req service.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.orderService.PlaceOrder(c.Request.Context(), &req)
	if err != nil {
		status, msg := placementError(err)
		c.JSON(status, gin.H{"error": msg, "details": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// placementError maps placement failures to status codes and actionable
// messages.
func placementError(err error) (int, string) {
	var stockErr *models.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		return http.StatusConflict, stockErr.Error()
	case errors.Is(err, models.ErrContentionExceeded):
		return http.StatusServiceUnavailable, "Store is busy, please retry"
	case errors.Is(err, models.ErrDiscountNotFound):
		return http.StatusBadRequest, "Unknown discount code"
	case errors.Is(err, models.ErrProductNotFound):
		return http.StatusBadRequest, "Unknown product in cart"
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest, "Invalid order request"
	default:
		return http.StatusInternalServerError, "Failed to place order"
	}
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.orderService.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, models.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load order"})
		return
	}
	c.JSON(http.StatusOK, order)
}

// validateDiscount checks a discount code and returns its effect
func (h *Handler) validateDiscount(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	dc, err := h.orderService.ValidateDiscount(c.Request.Context(), req.Code)
	if err != nil {
		if errors.Is(err, models.ErrDiscountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown discount code"})
			return
		}
		if errors.Is(err, models.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid discount code"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate discount"})
		return
	}
	c.JSON(http.StatusOK, dc)
}

// paymentWebhook receives gateway notifications. Contract: 200 on success
// (including idempotent no-ops), 400 on missing fields or hash mismatch,
// 404 for unknown orders, 405 for non-POST, 500 on persistence failures.
func (h *Handler) paymentWebhook(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		c.Header("Allow", http.MethodPost)
		c.String(http.StatusMethodNotAllowed, "Method %s not allowed", c.Request.Method)
		return
	}

	var n models.PaymentNotification
	if err := c.ShouldBind(&n); err != nil {
		c.String(http.StatusBadRequest, "Invalid request: missing fields.")
		return
	}

	err := h.paymentService.HandleNotification(c.Request.Context(), &n)
	switch {
	case err == nil:
		c.String(http.StatusOK, "Webhook processed successfully.")
	case errors.Is(err, models.ErrHashMismatch):
		c.String(http.StatusBadRequest, "Hash verification failed.")
	case errors.Is(err, models.ErrValidation):
		c.String(http.StatusBadRequest, "Invalid request: missing fields.")
	case errors.Is(err, models.ErrOrderNotFound):
		c.String(http.StatusNotFound, "Order not found.")
	default:
		c.String(http.StatusInternalServerError, "Error updating order status.")
	}
}

// listOrders returns all orders for the admin screen
func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orderService.ListOrders(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load orders"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// updateOrderStatus applies an operator-driven transition
func (h *Handler) updateOrderStatus(c *gin.Context) {
	var req struct {
		Status models.OrderStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	err := h.orderService.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": req.Status})
	case errors.Is(err, models.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
	case errors.Is(err, models.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "Transition not allowed", "details": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update order"})
	}
}

// setProductStock applies an administrative stock override
func (h *Handler) setProductStock(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	var req struct {
		Stock *int `json:"stock" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Stock == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	err = h.orderService.SetProductStock(c.Request.Context(), productID, *req.Stock)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"product_id": productID, "stock": *req.Stock})
	case errors.Is(err, models.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
	case errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Stock must not be negative"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update stock"})
	}
}

// upsertDiscountCode creates or replaces a discount code
func (h *Handler) upsertDiscountCode(c *gin.Context) {
	var dc models.DiscountCode
	if err := c.ShouldBindJSON(&dc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.orderService.UpsertDiscountCode(c.Request.Context(), &dc); err != nil {
		if errors.Is(err, models.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid discount code", "details": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save discount code"})
		return
	}
	c.JSON(http.StatusCreated, dc)
}

// deleteDiscountCode removes a discount code
func (h *Handler) deleteDiscountCode(c *gin.Context) {
	if err := h.orderService.DeleteDiscountCode(c.Request.Context(), c.Param("code")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete discount code"})
		return
	}
	c.Status(http.StatusNoContent)
}
