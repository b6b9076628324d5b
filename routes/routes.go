package routes

import (
	commonmw "checkout-service/common/middleware"
	"checkout-service/controllers"
	"checkout-service/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes sets up all checkout routes. placeLimiter throttles order
// placement per user; nil disables it.
func RegisterRoutes(r *gin.Engine, cc *controllers.CheckoutController, wc *controllers.WebhookController, hc *controllers.HealthController, placeLimiter *commonmw.RateLimiter) {
	r.GET("/health", hc.Health)

	// Stripe webhook (no auth, signature verified)
	r.POST("/stripe/webhook", wc.StripeWebhook)

	checkout := r.Group("/checkout")
	checkout.Use(middleware.AuthMiddleware())
	{
		checkout.POST("/quote", cc.Quote)
		checkout.POST("/coupons/validate", cc.ValidateCoupon)
		checkout.GET("/attempts/:key", cc.GetAttempt)

		place := checkout.Group("")
		if placeLimiter != nil {
			place.Use(commonmw.RateLimit(placeLimiter))
		}
		place.POST("/orders", cc.PlaceOrder)
	}
}
