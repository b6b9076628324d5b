// Package gateway is the boundary to the card payment provider.
package gateway

import (
	"context"
	"fmt"

	"checkout-service/models"
)

// PaymentGateway is the tokenize, create-intent, confirm contract. Raw card
// data never crosses it.
type PaymentGateway interface {
	// Tokenize resolves the hosted widget's token into a chargeable reference.
	Tokenize(ctx context.Context, input models.PaymentInput) (string, error)
	// CreateIntent registers a charge of amount minor units for orderID.
	CreateIntent(ctx context.Context, orderID string, amount int64, currency, idempotencyKey string) (models.PaymentIntent, error)
	// Confirm charges token against the intent behind clientSecret and returns
	// the gateway status.
	Confirm(ctx context.Context, clientSecret, token, idempotencyKey string) (string, error)
}

// Error is a provider rejection.
type Error struct {
	StatusCode  int
	Type        string
	Code        string
	DeclineCode string
	Message     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("payment gateway: status=%d type=%s code=%s: %s", e.StatusCode, e.Type, e.Code, e.Message)
}

func (e *Error) HTTPStatus() int      { return e.StatusCode }
func (e *Error) ProviderCode() string { return e.Code }

// Declined reports whether the provider refused the card itself.
func (e *Error) Declined() bool {
	return e.Type == "card_error"
}

// WebhookEvent is the subset of a provider event checkout reacts to.
type WebhookEvent struct {
	ID       string
	Type     string
	IntentID string
	OrderID  string
	Status   string
}
