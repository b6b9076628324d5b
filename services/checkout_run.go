package services

import (
	"context"
	"time"

	apperrors "checkout-service/common/errors"
	"checkout-service/models"
	aws_pkg "checkout-service/pkg/aws"
	"checkout-service/pricing"

	"go.uber.org/zap"
)

// checkoutRun is the state of one PlaceOrder attempt.
type checkoutRun struct {
	o       *Orchestrator
	attempt *models.CheckoutAttempt
	in      models.PlaceOrderInput
	log     *zap.Logger
	started time.Time

	pricing models.PricingBreakdown
	orderID string
}

func (r *checkoutRun) transition(ctx context.Context, next models.CheckoutState, upd models.AttemptUpdate) {
	from := r.attempt.State
	if !from.CanTransitionTo(next) {
		r.log.Error("illegal checkout transition", zap.String("from", string(from)), zap.String("to", string(next)))
		return
	}
	r.attempt.State = next
	upd.State = next
	r.log.Info("checkout state changed",
		zap.String("from", string(from)),
		zap.String("to", string(next)),
		zap.String("order_id", r.orderID),
	)
	// The attempt log must record the outcome even if the caller went away.
	if err := r.o.deps.Attempts.Update(context.WithoutCancel(ctx), r.attempt.ID, upd); err != nil {
		r.log.Error("attempt update failed", zap.String("state", string(next)), zap.Error(err))
	}
}

func (r *checkoutRun) execute(ctx context.Context) (models.OrderOutcome, error) {
	req := r.in.Request

	r.transition(ctx, models.CheckoutValidating, models.AttemptUpdate{})
	if err := r.validate(); err != nil {
		return r.fail(ctx, err)
	}

	coupon, balance, err := r.o.pricingInputs(ctx, r.in.UserID, r.in.Cart, req.CouponCode, req.UseWallet)
	if err != nil {
		return r.fail(ctx, err)
	}
	breakdown, err := r.o.deps.Pricing.Compute(pricing.Input{
		Cart:           r.in.Cart,
		Coupon:         coupon,
		Region:         req.Shipping.Region,
		ShippingMethod: req.ShippingMethod,
		WalletBalance:  balance,
		UseWallet:      req.UseWallet,
	})
	if err != nil {
		return r.fail(ctx, apperrors.ErrBadRequest.Wrap(err))
	}
	r.pricing = breakdown
	r.attempt.Pricing = breakdown
	r.attempt.Total = breakdown.Total
	r.transition(ctx, models.CheckoutPricingComputed, models.AttemptUpdate{Pricing: &breakdown})

	draft := r.draft(coupon)
	orderID, err := r.o.deps.Ledger.CreatePendingOrder(ctx, draft, r.in.IdempotencyKey)
	if err != nil {
		return r.fail(ctx, err)
	}
	r.orderID = orderID
	r.attempt.OrderID = orderID
	deadline := r.o.now().Add(r.o.cfg.PendingOrderTTL)
	r.transition(ctx, models.CheckoutOrderCreated, models.AttemptUpdate{OrderID: &orderID, PendingDeadline: &deadline})
	r.o.rec.count(aws_pkg.MetricOrdersCreated, nil)

	if !req.PaymentMethod.RequiresConfirmation() {
		return r.complete(ctx, "")
	}
	if breakdown.Total.IsZero() {
		// Fully covered by the wallet: nothing to charge, finalize debits it.
		r.finalize(ctx, "wallet")
		return r.complete(ctx, "")
	}

	r.transition(ctx, models.CheckoutPaymentInFlight, models.AttemptUpdate{})
	result, err := r.o.deps.Payments.Run(ctx, PaymentRequest{
		OrderID:        orderID,
		Amount:         breakdown.TotalMinorUnits(),
		Currency:       breakdown.Currency,
		Input:          req.Payment,
		IdempotencyKey: r.in.IdempotencyKey,
	}, r.observePayment(ctx))
	if err != nil {
		return r.fail(ctx, err)
	}

	r.attempt.PaymentIntentID = result.IntentID
	r.finalize(ctx, result.IntentID)
	return r.complete(ctx, result.Status)
}

func (r *checkoutRun) validate() error {
	if err := checkCart(r.in.Cart); err != nil {
		return err
	}
	if err := r.o.validate.Struct(r.in.Request); err != nil {
		return validationError(err)
	}
	if r.in.Request.PaymentMethod.RequiresConfirmation() {
		if r.in.Request.Payment.WidgetToken == "" {
			return apperrors.Validation("payment.widget_token", "is required")
		}
		if r.in.Request.Payment.LooksLikeCardNumber() {
			return apperrors.ErrRawCardData.WithField("payment.widget_token")
		}
	}
	return nil
}

func (r *checkoutRun) draft(coupon *models.CouponDescriptor) models.OrderDraft {
	req := r.in.Request
	billing := req.Billing
	if billing.SameAsShipping {
		billing.FullName = req.Shipping.FullName
		billing.AddressLine1 = req.Shipping.AddressLine1
		billing.City = req.Shipping.City
		billing.PostalCode = req.Shipping.PostalCode
	}
	d := models.OrderDraft{
		UserID:        r.in.UserID,
		Items:         r.in.Cart.Items(),
		Shipping:      req.Shipping,
		Billing:       billing,
		Pricing:       r.pricing,
		PaymentMethod: req.PaymentMethod,
		UseWallet:     req.UseWallet,
	}
	if coupon != nil {
		d.CouponCode = coupon.Code
	}
	return d
}

func (r *checkoutRun) observePayment(ctx context.Context) PaymentObserver {
	return func(state models.PaymentState, intentID string) {
		if state != models.PaymentConfirmingPayment || intentID == "" {
			return
		}
		r.attempt.PaymentIntentID = intentID
		status := string(state)
		if err := r.o.deps.Attempts.Update(context.WithoutCancel(ctx), r.attempt.ID, models.AttemptUpdate{PaymentIntentID: &intentID, PaymentStatus: &status}); err != nil {
			r.log.Error("attempt update failed", zap.String("payment_state", status), zap.Error(err))
		}
	}
}

// finalize applies post-payment side effects. A failure does not undo the
// payment; the order goes to reconciliation instead.
func (r *checkoutRun) finalize(ctx context.Context, paymentRef string) {
	if err := r.o.deps.Ledger.FinalizeOrder(context.WithoutCancel(ctx), r.orderID, paymentRef); err != nil {
		r.handOff(ctx, models.ReconcileFinalizeFailed)
	}
}

func (r *checkoutRun) complete(ctx context.Context, paymentStatus string) (models.OrderOutcome, error) {
	bg := context.WithoutCancel(ctx)
	upd := models.AttemptUpdate{}
	if paymentStatus != "" {
		upd.PaymentStatus = &paymentStatus
		upd.PaymentIntentID = &r.attempt.PaymentIntentID
	}
	r.transition(ctx, models.CheckoutCompleted, upd)

	if err := r.o.deps.Carts.Clear(bg, r.in.UserID); err != nil {
		r.log.Error("cart clear failed", zap.Error(err))
	}

	out := models.OrderOutcome{
		AttemptID:      r.attempt.ID.String(),
		IdempotencyKey: r.in.IdempotencyKey,
		OrderID:        r.orderID,
		State:          models.CheckoutCompleted,
		Pricing:        r.pricing,
		PaymentStatus:  paymentStatus,
		RedirectURL:    r.o.redirectURL(r.orderID),
	}
	r.notify(bg, Notification{
		EventType:   "checkout.completed",
		Type:        NotifySuccess,
		Message:     "Your order has been placed",
		RedirectURL: out.RedirectURL,
	})
	r.o.rec.count(aws_pkg.MetricOrdersCompleted, map[string]string{"PaymentMethod": string(r.in.Request.PaymentMethod)})
	r.o.rec.latency(aws_pkg.MetricCheckoutLatency, r.o.now().Sub(r.started), nil)
	return out, nil
}

// fail ends the attempt. A pending order is cancelled unless the payment
// outcome is unknown, in which case it is left pending for reconciliation.
func (r *checkoutRun) fail(ctx context.Context, cause error) (models.OrderOutcome, error) {
	bg := context.WithoutCancel(ctx)
	appErr := apperrors.As(cause)
	risk := appErr.Kind == apperrors.KindConsistencyRisk
	pending := r.attempt.State.HasPendingOrder()

	if pending && !risk {
		if err := r.o.deps.Ledger.CancelOrder(bg, r.orderID, r.in.IdempotencyKey, appErr.Message); err != nil {
			r.handOff(ctx, models.ReconcileCancelFailed)
		}
	}

	kind, msg, field, status := string(appErr.Kind), appErr.Message, appErr.Field, appErr.Code
	upd := models.AttemptUpdate{ErrorKind: &kind, ErrorMessage: &msg, ErrorField: &field, ErrorStatus: &status}
	if risk {
		warning := msg
		upd.Warning = &warning
	}
	r.transition(ctx, models.CheckoutFailed, upd)
	if risk && pending {
		r.handOff(ctx, models.ReconcileConsistencyRisk)
		r.o.rec.count(aws_pkg.MetricConsistencyRisks, nil)
	}

	r.log.Warn("checkout attempt failed",
		zap.String("order_id", r.orderID),
		zap.String("kind", kind),
		zap.String("field", field),
		zap.Error(cause),
	)

	n := Notification{
		EventType: "checkout.failed",
		Type:      NotifyError,
		Message:   msg,
		ErrorKind: kind,
		Field:     field,
	}
	if risk {
		n.EventType = "checkout.pending_review"
		n.Type = NotifyWarning
	}
	r.notify(bg, n)
	r.o.rec.count(aws_pkg.MetricOrdersFailed, map[string]string{"Kind": kind})

	out := models.OrderOutcome{
		AttemptID:      r.attempt.ID.String(),
		IdempotencyKey: r.in.IdempotencyKey,
		OrderID:        r.orderID,
		State:          models.CheckoutFailed,
		Pricing:        r.pricing,
	}
	if risk {
		out.Warning = msg
	}
	return out, appErr
}

func (r *checkoutRun) handOff(ctx context.Context, reason string) {
	bg := context.WithoutCancel(ctx)
	flag := true
	if err := r.o.deps.Attempts.Update(bg, r.attempt.ID, models.AttemptUpdate{NeedsReconcile: &flag, ReconcileReason: &reason}); err != nil {
		r.log.Error("attempt reconcile flag failed", zap.String("reason", reason), zap.Error(err))
	}
	if r.o.deps.Reconciler == nil {
		return
	}
	if err := r.o.deps.Reconciler.Enqueue(bg, r.attempt, reason); err != nil {
		r.log.Error("reconciliation enqueue failed, left for sweep", zap.String("reason", reason), zap.Error(err))
	}
}

func (r *checkoutRun) notify(ctx context.Context, n Notification) {
	if r.o.deps.Notifier == nil {
		return
	}
	n.AttemptID = r.attempt.ID.String()
	n.IdempotencyKey = r.in.IdempotencyKey
	n.UserID = r.in.UserID
	n.OrderID = r.orderID
	n.Timestamp = r.o.now().UTC()
	if err := r.o.deps.Notifier.Notify(ctx, n); err != nil {
		r.log.Error("checkout notification failed", zap.Error(err))
	}
}
