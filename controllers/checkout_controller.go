package controllers

import (
	"context"
	"net/http"
	"strings"

	apperrors "checkout-service/common/errors"
	"checkout-service/common/logger"
	"checkout-service/middleware"
	"checkout-service/models"
	"checkout-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// IdempotencyHeader carries the client's key for one checkout attempt.
const IdempotencyHeader = "Idempotency-Key"

// CheckoutService is the orchestrator surface the HTTP layer needs.
type CheckoutService interface {
	Quote(ctx context.Context, userID string, req models.QuoteRequest) (services.QuoteResult, error)
	ValidateCoupon(ctx context.Context, userID, code string) (*models.CouponDescriptor, error)
	Cart(ctx context.Context, userID string) (models.CartSnapshot, error)
	PlaceOrder(ctx context.Context, in models.PlaceOrderInput) (models.OrderOutcome, error)
	Attempt(ctx context.Context, key string) (*models.CheckoutAttempt, error)
	PaymentSucceeded(ctx context.Context, orderID, intentID string) error
}

// CheckoutController handles HTTP requests for checkout.
type CheckoutController struct {
	checkout CheckoutService
	log      *zap.Logger
}

// NewCheckoutController creates a new CheckoutController.
func NewCheckoutController(checkout CheckoutService, log *zap.Logger) *CheckoutController {
	return &CheckoutController{checkout: checkout, log: log}
}

// Quote handles POST /checkout/quote.
func (cc *CheckoutController) Quote(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req models.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	res, err := cc.checkout.Quote(c.Request.Context(), userID, req)
	if err != nil {
		cc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ValidateCoupon handles POST /checkout/coupons/validate.
func (cc *CheckoutController) ValidateCoupon(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req models.CouponValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	coupon, err := cc.checkout.ValidateCoupon(c.Request.Context(), userID, req.Code)
	if err != nil {
		cc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "coupon": coupon})
}

// PlaceOrder handles POST /checkout/orders. The cart is read once here and
// the snapshot travels with the attempt.
func (cc *CheckoutController) PlaceOrder(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	ctx := c.Request.Context()
	cart, err := cc.checkout.Cart(ctx, userID)
	if err != nil {
		cc.respondError(c, err)
		return
	}

	out, err := cc.checkout.PlaceOrder(ctx, models.PlaceOrderInput{
		UserID:         userID,
		IdempotencyKey: strings.TrimSpace(c.GetHeader(IdempotencyHeader)),
		Cart:           cart,
		Request:        req,
	})
	if out.IdempotencyKey != "" {
		c.Header(IdempotencyHeader, out.IdempotencyKey)
	}
	if err != nil {
		appErr := apperrors.As(err)
		cc.logError(c, appErr)
		if out.AttemptID == "" {
			c.JSON(appErr.Code, gin.H{"error": appErr})
			return
		}
		c.JSON(appErr.Code, gin.H{"error": appErr, "outcome": out})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"outcome": out})
}

// GetAttempt handles GET /checkout/attempts/:key.
func (cc *CheckoutController) GetAttempt(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	key := c.Param("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Idempotency key is required"})
		return
	}

	a, err := cc.checkout.Attempt(c.Request.Context(), key)
	if err != nil {
		cc.respondError(c, err)
		return
	}
	if a.UserID != userID {
		cc.respondError(c, apperrors.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempt": a})
}

func requireUser(c *gin.Context) (string, bool) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": apperrors.ErrUnauthorized})
		return "", false
	}
	return userID, true
}

func (cc *CheckoutController) respondError(c *gin.Context, err error) {
	appErr := apperrors.As(err)
	cc.logError(c, appErr)
	c.JSON(appErr.Code, gin.H{"error": appErr})
}

func (cc *CheckoutController) logError(c *gin.Context, appErr *apperrors.Error) {
	log := logger.For(c, cc.log)
	fields := []zap.Field{
		zap.String("kind", string(appErr.Kind)),
		zap.String("field", appErr.Field),
		zap.Int("status", appErr.Code),
	}
	if appErr.Err != nil {
		fields = append(fields, zap.Error(appErr.Err))
	}
	if appErr.Code >= http.StatusInternalServerError {
		log.Error(appErr.Message, fields...)
		return
	}
	log.Warn(appErr.Message, fields...)
}
