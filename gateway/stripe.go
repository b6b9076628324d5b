package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"checkout-service/models"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/paymentintent"
	"github.com/stripe/stripe-go/v80/paymentmethod"
	"github.com/stripe/stripe-go/v80/webhook"
)

// StripeGateway implements PaymentGateway on Stripe payment intents.
type StripeGateway struct {
	intents    *paymentintent.Client
	methods    *paymentmethod.Client
	webhookKey string
}

// StripeConfig configures the Stripe backend. APIURL overrides the Stripe API
// base, used against stripe-mock and in tests.
type StripeConfig struct {
	SecretKey  string
	WebhookKey string
	APIURL     string
	HTTPClient *http.Client
}

// NewStripeGateway builds a gateway with network retries disabled; retries
// are owned by the resilience executor.
func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	bc := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
		HTTPClient:        cfg.HTTPClient,
	}
	if cfg.APIURL != "" {
		bc.URL = stripe.String(cfg.APIURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, bc)

	return &StripeGateway{
		intents:    &paymentintent.Client{B: backend, Key: cfg.SecretKey},
		methods:    &paymentmethod.Client{B: backend, Key: cfg.SecretKey},
		webhookKey: cfg.WebhookKey,
	}
}

func (g *StripeGateway) Tokenize(ctx context.Context, input models.PaymentInput) (string, error) {
	if input.WidgetToken == "" {
		return "", fmt.Errorf("empty payment token")
	}
	params := &stripe.PaymentMethodParams{}
	params.Context = ctx
	pm, err := g.methods.Get(input.WidgetToken, params)
	if err != nil {
		return "", mapStripeError(err)
	}
	if pm.Type != stripe.PaymentMethodTypeCard {
		return "", &Error{StatusCode: http.StatusBadRequest, Type: "invalid_request_error", Code: "payment_method_invalid_type", Message: "payment method is not a card"}
	}
	return pm.ID, nil
}

func (g *StripeGateway) CreateIntent(ctx context.Context, orderID string, amount int64, currency, idempotencyKey string) (models.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(amount),
		Currency:           stripe.String(strings.ToLower(currency)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx
	params.AddMetadata("order_id", orderID)
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}

	pi, err := g.intents.New(params)
	if err != nil {
		return models.PaymentIntent{}, mapStripeError(err)
	}
	return models.PaymentIntent{IntentID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (g *StripeGateway) Confirm(ctx context.Context, clientSecret, token, idempotencyKey string) (string, error) {
	intentID, err := IntentIDFromSecret(clientSecret)
	if err != nil {
		return "", &Error{StatusCode: http.StatusBadRequest, Type: "invalid_request_error", Code: "client_secret_invalid", Message: err.Error()}
	}
	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(token),
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}

	pi, err := g.intents.Confirm(intentID, params)
	if err != nil {
		return "", mapStripeError(err)
	}
	return string(pi.Status), nil
}

// ParseWebhook verifies the Stripe-Signature header and extracts the intent
// carried by payment_intent.* events.
func (g *StripeGateway) ParseWebhook(payload []byte, sigHeader string) (WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, g.webhookKey, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("invalid webhook signature: %w", err)
	}

	out := WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if !strings.HasPrefix(out.Type, "payment_intent.") || event.Data == nil {
		return out, nil
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return out, fmt.Errorf("decode payment intent: %w", err)
	}
	out.IntentID = pi.ID
	out.Status = string(pi.Status)
	out.OrderID = pi.Metadata["order_id"]
	return out, nil
}

// IntentIDFromSecret returns the intent ID embedded in a client secret of the
// form "pi_123_secret_abc".
func IntentIDFromSecret(clientSecret string) (string, error) {
	i := strings.Index(clientSecret, "_secret_")
	if i <= 0 {
		return "", fmt.Errorf("malformed client secret")
	}
	return clientSecret[:i], nil
}

func mapStripeError(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return err
	}
	return &Error{
		StatusCode:  se.HTTPStatusCode,
		Type:        string(se.Type),
		Code:        string(se.Code),
		DeclineCode: string(se.DeclineCode),
		Message:     se.Msg,
	}
}
