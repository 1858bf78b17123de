package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"market-service/internal/auth"
	"market-service/internal/errs"
	"market-service/internal/realtime"
	"market-service/internal/service"
	"market-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency the readiness check pings
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles the market services the handlers call
type Services struct {
	Transactions *service.TransactionService
	Chat         *service.ChatService
	Reviews      *service.ReviewService
	Items        *service.ItemService
}

// Handler contains HTTP handlers
type Handler struct {
	transactions *service.TransactionService
	chat         *service.ChatService
	reviews      *service.ReviewService
	items        *service.ItemService
	tokens       *auth.Tokens
	hub          *realtime.Hub
	checks       map[string]Pinger
	logger       *zap.Logger
}

// NewHandler creates a new HTTP handler. hub may be nil to disable the
// websocket endpoint.
func NewHandler(svc Services, tokens *auth.Tokens, hub *realtime.Hub, checks map[string]Pinger) *Handler {
	return &Handler{
		transactions: svc.Transactions,
		chat:         svc.Chat,
		reviews:      svc.Reviews,
		items:        svc.Items,
		tokens:       tokens,
		hub:          hub,
		checks:       checks,
		logger:       util.GetLogger(),
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
		v1.GET("/items", h.listItems)
		v1.GET("/items/:name/status", h.getItemStatus)
		v1.GET("/items/:name", h.optionalAuth(), h.getItem)
		v1.GET("/reviews", h.listReviews)
		v1.GET("/reviews/:item", h.getReview)
		v1.GET("/sellers/:id/stats", h.sellerStats)
	}

	authed := v1.Group("", h.requireAuth())
	{
		authed.POST("/transactions/start", h.startTransaction)
		authed.POST("/transactions/confirm", h.confirmTransaction)

		authed.POST("/items", h.createItem)
		authed.PATCH("/items/:name", h.updateItemStatus)
		authed.POST("/items/:name/complete", h.completeItem)
		authed.DELETE("/items/:name", h.deleteItem)

		authed.POST("/chat/:item/messages", h.sendMessage)
		authed.GET("/chat/:item/messages", h.chatHistory)
		authed.POST("/chat/:item/typing", h.setTyping)
		authed.GET("/chat/:item/typing", h.typingUsers)

		authed.GET("/conversations", h.listConversations)
		authed.POST("/conversations/:id/read", h.clearUnread)
		authed.DELETE("/conversations/:id", h.deleteChatLink)
		authed.POST("/conversations/:id/delete", h.deleteChatLink)

		authed.GET("/reviews/reviewable", h.listReviewable)
		authed.POST("/reviews", h.submitReview)

		authed.GET("/me/items", h.myPage)
		authed.POST("/me/active", h.touchActivity)
		authed.GET("/wishlist", h.wishlist)
		authed.POST("/wishlist/:item", h.like)
		authed.DELETE("/wishlist/:item", h.unlike)
	}

	if h.hub != nil {
		router.GET("/ws", h.serveWS)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every backing store
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
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

// statusFor maps a service error onto its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with the status it maps to. Store failures keep
// their details out of the response.
func (h *Handler) respondError(c *gin.Context, message string, err error) {
	status := statusFor(err)
	details := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error(message, zap.String("path", c.FullPath()), zap.Error(err))
		details = "internal error"
	}
	c.JSON(status, gin.H{
		"error":   message,
		"details": details,
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
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
