package clients

import (
	"context"
	"net/http"

	"checkout-service/models"

	"github.com/shopspring/decimal"
)

// CouponVerdict is the coupon service's answer for one code.
type CouponVerdict struct {
	Valid     bool
	Coupon    *models.CouponDescriptor
	ErrorCode string
	Message   string
}

type validateCouponRequest struct {
	Code      string          `json:"code"`
	UserID    string          `json:"user_id"`
	CartTotal decimal.Decimal `json:"cart_total"`
}

type couponPayload struct {
	ID           string          `json:"id"`
	Code         string          `json:"code"`
	Type         string          `json:"type"`
	Value        decimal.Decimal `json:"value"`
	FreeShipping bool            `json:"free_shipping"`
}

type validateCouponResponse struct {
	Valid   bool           `json:"valid"`
	Coupon  *couponPayload `json:"coupon"`
	Message string         `json:"message"`
	Error   *errorDetail   `json:"error"`
}

// CouponServiceClient calls the promotion service.
type CouponServiceClient struct {
	svc *ServiceClient
}

func NewCouponServiceClient(svc *ServiceClient) *CouponServiceClient {
	return &CouponServiceClient{svc: svc}
}

// Validate sends POST /coupons/validate. A rejected coupon comes back either
// as valid=false with an error code or as a 4xx StatusError.
func (c *CouponServiceClient) Validate(ctx context.Context, code, userID string, cartTotal decimal.Decimal) (CouponVerdict, error) {
	var resp validateCouponResponse
	err := c.svc.DoJSON(ctx, http.MethodPost, "/coupons/validate", nil,
		validateCouponRequest{Code: code, UserID: userID, CartTotal: cartTotal}, &resp)
	if err != nil {
		return CouponVerdict{}, err
	}

	v := CouponVerdict{Valid: resp.Valid, Message: resp.Message}
	if resp.Error != nil {
		v.ErrorCode = resp.Error.Code
		if resp.Error.Message != "" {
			v.Message = resp.Error.Message
		}
	}
	if resp.Coupon != nil {
		typ := couponType(resp.Coupon.Type)
		v.Coupon = &models.CouponDescriptor{
			ID:           resp.Coupon.ID,
			Code:         resp.Coupon.Code,
			Type:         typ,
			Value:        resp.Coupon.Value,
			FreeShipping: resp.Coupon.FreeShipping || typ == models.CouponTypeFreeShipping,
		}
	}
	return v, nil
}

// couponType accepts the promotion service's legacy names.
func couponType(t string) models.CouponType {
	switch t {
	case "flat":
		return models.CouponTypeFixed
	case "freeshipping":
		return models.CouponTypeFreeShipping
	}
	return models.CouponType(t)
}
