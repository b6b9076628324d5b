package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"checkout-service/models"
)

// OrderStoreClient talks to the order service.
type OrderStoreClient struct {
	svc *ServiceClient
}

func NewOrderStoreClient(svc *ServiceClient) *OrderStoreClient {
	return &OrderStoreClient{svc: svc}
}

type createOrderRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	models.OrderDraft
}

type createOrderResponse struct {
	OrderID string `json:"order_id"`
	ID      string `json:"id"`
}

type cancelOrderRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	Reason         string `json:"reason"`
}

type finalizeOrderRequest struct {
	PaymentRef string `json:"payment_ref"`
}

func idempotencyHeader(key string) http.Header {
	h := http.Header{}
	h.Set("Idempotency-Key", key)
	return h
}

// CreatePendingOrder sends POST /orders. The order service returns the existing
// order when key has been seen before.
func (c *OrderStoreClient) CreatePendingOrder(ctx context.Context, draft models.OrderDraft, key string) (string, error) {
	var resp createOrderResponse
	err := c.svc.DoJSON(ctx, http.MethodPost, "/orders", idempotencyHeader(key),
		createOrderRequest{IdempotencyKey: key, OrderDraft: draft}, &resp)
	if err != nil {
		return "", err
	}
	id := resp.OrderID
	if id == "" {
		id = resp.ID
	}
	if id == "" {
		return "", fmt.Errorf("order service returned no order id")
	}
	return id, nil
}

// CancelOrder sends POST /orders/{id}/cancel.
func (c *OrderStoreClient) CancelOrder(ctx context.Context, orderID, key, reason string) error {
	return c.svc.DoJSON(ctx, http.MethodPost, "/orders/"+url.PathEscape(orderID)+"/cancel", idempotencyHeader(key),
		cancelOrderRequest{IdempotencyKey: key, Reason: reason}, nil)
}

// FinalizeOrder sends POST /orders/{id}/finalize keyed by models.FinalizeKey.
func (c *OrderStoreClient) FinalizeOrder(ctx context.Context, orderID, paymentRef string) error {
	return c.svc.DoJSON(ctx, http.MethodPost, "/orders/"+url.PathEscape(orderID)+"/finalize", idempotencyHeader(models.FinalizeKey(orderID)),
		finalizeOrderRequest{PaymentRef: paymentRef}, nil)
}
