package services

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"checkout-service/clients"
	apperrors "checkout-service/common/errors"
	"checkout-service/models"
	aws_pkg "checkout-service/pkg/aws"
	"checkout-service/resilience"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CouponService is the remote coupon verdict API.
type CouponService interface {
	Validate(ctx context.Context, code, userID string, cartTotal decimal.Decimal) (clients.CouponVerdict, error)
}

var (
	invalidCodes     = map[string]bool{"not_found": true, "expired": true, "inactive": true, "invalid": true}
	notEligibleCodes = map[string]bool{"min_purchase": true, "usage_limit": true, "per_user_limit": true, "not_eligible": true}
)

// CouponValidator surfaces the coupon service verdict for one checkout attempt.
// Eligibility rules live in the coupon service; this side only normalizes the
// code, bounds the descriptor and classifies failures.
type CouponValidator struct {
	svc   CouponService
	retry resilience.Config
	log   *zap.Logger
}

func NewCouponValidator(svc CouponService, retry resilience.Config, log *zap.Logger, metrics aws_pkg.MetricsRecorder) *CouponValidator {
	rec := recorder{metrics: metrics}
	return &CouponValidator{svc: svc, retry: rec.retryPolicy(retry, log, "coupon_validate"), log: log}
}

// NormalizeCode trims and uppercases a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate returns a fresh descriptor for code. It never caches.
func (v *CouponValidator) Validate(ctx context.Context, code string, cartSubtotal decimal.Decimal, userID string) (*models.CouponDescriptor, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, apperrors.Validation("coupon_code", "Coupon code is required")
	}

	verdict, attempts, err := resilience.Execute(ctx, v.retry, func(ctx context.Context) (clients.CouponVerdict, error) {
		return v.svc.Validate(ctx, code, userID, cartSubtotal)
	})
	if err != nil {
		v.log.Warn("coupon validation failed",
			zap.String("code", code),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return nil, classifyCouponError(err)
	}

	if !verdict.Valid {
		return nil, verdictError(verdict.ErrorCode, verdict.Message)
	}
	c := verdict.Coupon
	if c == nil {
		return nil, apperrors.ErrCouponInvalid
	}
	switch c.Type {
	case models.CouponTypePercentage:
		if c.Value.GreaterThan(decimal.NewFromInt(100)) || c.Value.IsNegative() {
			return nil, apperrors.ErrCouponInvalid.WithField("coupon_code")
		}
	case models.CouponTypeFixed:
		if c.Value.IsNegative() {
			return nil, apperrors.ErrCouponInvalid.WithField("coupon_code")
		}
	case models.CouponTypeFreeShipping:
		c.FreeShipping = true
	default:
		return nil, apperrors.ErrCouponInvalid.WithField("coupon_code")
	}
	if c.Code == "" {
		c.Code = code
	}
	return c, nil
}

func verdictError(code, message string) error {
	var base *apperrors.Error
	switch {
	case notEligibleCodes[code]:
		base = apperrors.ErrCouponNotEligible
	default:
		base = apperrors.ErrCouponInvalid
	}
	e := base.WithField("coupon_code")
	if message != "" {
		e.Err = errors.New(message)
	}
	return e
}

func classifyCouponError(err error) error {
	var se *clients.StatusError
	if errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500 && se.StatusCode != http.StatusTooManyRequests {
		if se.StatusCode == http.StatusNotFound {
			return verdictError("not_found", se.Message)
		}
		return verdictError(se.Code, se.Message)
	}
	return apperrors.Transient("Coupon service is unavailable, please try again", err)
}
