package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	apperrors "checkout-service/common/errors"
	"checkout-service/gateway"
	"checkout-service/models"
	aws_pkg "checkout-service/pkg/aws"
	"checkout-service/resilience"

	"go.uber.org/zap"
)

// PaymentRequest is one run of the confirmation protocol.
type PaymentRequest struct {
	OrderID        string
	Amount         int64
	Currency       string
	Input          models.PaymentInput
	IdempotencyKey string
}

// PaymentObserver is told about every protocol state change.
type PaymentObserver func(state models.PaymentState, intentID string)

// PaymentProtocol drives tokenize, create intent and confirm against the
// gateway. It never cancels orders or applies finalization; the orchestrator
// decides what a failure means.
type PaymentProtocol struct {
	gw             gateway.PaymentGateway
	retry          resilience.Config
	confirmTimeout time.Duration
	log            *zap.Logger
	rec            recorder
}

func NewPaymentProtocol(gw gateway.PaymentGateway, retry resilience.Config, confirmTimeout time.Duration, log *zap.Logger, metrics aws_pkg.MetricsRecorder) *PaymentProtocol {
	return &PaymentProtocol{gw: gw, retry: retry, confirmTimeout: confirmTimeout, log: log, rec: recorder{metrics: metrics}}
}

type paymentRun struct {
	state    models.PaymentState
	intentID string
	observe  PaymentObserver
	log      *zap.Logger
}

func (r *paymentRun) transition(next models.PaymentState) {
	if !r.state.CanTransitionTo(next) {
		r.log.Error("illegal payment transition", zap.String("from", string(r.state)), zap.String("to", string(next)))
		return
	}
	r.log.Info("payment state changed", zap.String("from", string(r.state)), zap.String("to", string(next)))
	r.state = next
	if r.observe != nil {
		r.observe(next, r.intentID)
	}
}

// Run executes the protocol. On success the returned result carries the
// intent and gateway status. Errors are already classified into the checkout
// error taxonomy.
func (p *PaymentProtocol) Run(ctx context.Context, req PaymentRequest, observe PaymentObserver) (models.PaymentResult, error) {
	log := p.log.With(zap.String("order_id", req.OrderID), zap.String("idempotency_key", req.IdempotencyKey))
	run := &paymentRun{state: models.PaymentIdle, observe: observe, log: log}

	res, err := p.run(ctx, run, req, log)
	if err != nil {
		run.transition(models.PaymentFailed)
		p.rec.count(aws_pkg.MetricPaymentFailed, map[string]string{"Kind": string(apperrors.KindOf(err))})
		return models.PaymentResult{IntentID: run.intentID}, err
	}
	run.transition(models.PaymentSucceeded)
	p.rec.count(aws_pkg.MetricPaymentSucceeded, nil)
	return res, nil
}

func (p *PaymentProtocol) run(ctx context.Context, run *paymentRun, req PaymentRequest, log *zap.Logger) (models.PaymentResult, error) {
	run.transition(models.PaymentTokenizingCard)
	if req.Input.LooksLikeCardNumber() {
		return models.PaymentResult{}, apperrors.ErrRawCardData.WithField("payment.widget_token")
	}
	token, _, err := resilience.Execute(ctx, p.rec.retryPolicy(p.retry, log, "payment_tokenize"), func(ctx context.Context) (string, error) {
		return p.gw.Tokenize(ctx, req.Input)
	})
	if err != nil {
		return models.PaymentResult{}, classifyGatewayError("Payment method could not be verified", err)
	}

	run.transition(models.PaymentCreatingIntent)
	intent, _, err := resilience.Execute(ctx, p.rec.retryPolicy(p.retry, log, "payment_create_intent"), func(ctx context.Context) (models.PaymentIntent, error) {
		return p.gw.CreateIntent(ctx, req.OrderID, req.Amount, req.Currency, req.IdempotencyKey+"-intent")
	})
	if err != nil {
		return models.PaymentResult{}, classifyGatewayError("Payment could not be started", err)
	}
	run.intentID = intent.IntentID

	run.transition(models.PaymentConfirmingPayment)
	confirmCfg := p.rec.retryPolicy(p.retry, log, "payment_confirm").
		WithPredicate(resilience.ConfirmRetryPredicate).
		WithTimeout(p.confirmTimeout)
	// A submitted confirmation is never abandoned because the caller went away.
	status, attempts, err := resilience.Execute(context.WithoutCancel(ctx), confirmCfg, func(ctx context.Context) (string, error) {
		return p.gw.Confirm(ctx, intent.ClientSecret, token, req.IdempotencyKey+"-confirm")
	})
	if err != nil {
		log.Warn("payment confirmation failed",
			zap.String("payment_intent_id", intent.IntentID),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return models.PaymentResult{}, classifyConfirmError(err)
	}

	if !models.IsConfirmedStatus(status) {
		switch status {
		case models.IntentRequiresPaymentMethod, models.IntentCanceled, models.IntentRequiresAction:
			return models.PaymentResult{}, apperrors.ErrPaymentDeclined.Wrap(fmt.Errorf("payment intent status %s", status))
		default:
			return models.PaymentResult{}, apperrors.ErrPaymentAmbiguous.Wrap(fmt.Errorf("unexpected payment intent status %q", status))
		}
	}
	return models.PaymentResult{IntentID: intent.IntentID, Status: status}, nil
}

// classifyGatewayError maps gateway failures that happened before any charge
// was submitted. Those are never ambiguous.
func classifyGatewayError(message string, err error) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	var ge *gateway.Error
	if errors.As(err, &ge) {
		switch {
		case ge.Declined():
			return apperrors.ErrPaymentDeclined.Wrap(err)
		case ge.StatusCode == http.StatusTooManyRequests || ge.StatusCode >= 500 || resilience.TransientProviderCodes[ge.Code]:
			return apperrors.Transient(message, err)
		default:
			return apperrors.Terminal(http.StatusUnprocessableEntity, message, err)
		}
	}
	if resilience.DefaultRetryPredicate(err) {
		return apperrors.Transient(message, err)
	}
	return apperrors.Terminal(http.StatusUnprocessableEntity, message, err)
}

// classifyConfirmError treats anything other than a definitive gateway reply
// as an unknown charge outcome. Only a gateway.Error that is not ambiguous
// proves the confirmation was rejected.
func classifyConfirmError(err error) error {
	var ge *gateway.Error
	if errors.As(err, &ge) && !resilience.IsAmbiguous(err) {
		return classifyGatewayError("Payment could not be confirmed", err)
	}
	return apperrors.ErrPaymentAmbiguous.Wrap(err)
}
