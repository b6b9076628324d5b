package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	apperrors "checkout-service/common/errors"
	"checkout-service/models"
	aws_pkg "checkout-service/pkg/aws"
	"checkout-service/pricing"
	"checkout-service/repository"
	"checkout-service/resilience"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartStore is where the cart being checked out lives.
type CartStore interface {
	Snapshot(ctx context.Context, userID string) (models.CartSnapshot, error)
	Clear(ctx context.Context, userID string) error
}

// AttemptGuard allows one in-flight attempt per user cart.
type AttemptGuard interface {
	Acquire(ctx context.Context, userID, token string) (bool, error)
	Release(ctx context.Context, userID, token string) error
}

// WalletReader fetches the spendable wallet balance.
type WalletReader interface {
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
}

// OrchestratorConfig holds checkout policy knobs.
type OrchestratorConfig struct {
	Currency            string
	PendingOrderTTL     time.Duration
	ConfirmationBaseURL string
	Retry               resilience.Config
}

// Dependencies are the collaborators of the orchestrator.
type Dependencies struct {
	Coupons    *CouponValidator
	Wallet     WalletReader
	Pricing    *pricing.Engine
	Ledger     *OrderLedger
	Payments   *PaymentProtocol
	Attempts   repository.AttemptRepository
	Guard      AttemptGuard
	Carts      CartStore
	Notifier   Notifier
	Reconciler *Reconciler
	Metrics    aws_pkg.MetricsRecorder
	Logger     *zap.Logger
}

// QuoteResult is a priced preview of the cart.
type QuoteResult struct {
	Pricing models.PricingBreakdown  `json:"pricing"`
	Coupon  *models.CouponDescriptor `json:"coupon,omitempty"`
}

// Orchestrator turns a cart into a paid order.
type Orchestrator struct {
	deps     Dependencies
	cfg      OrchestratorConfig
	validate *validator.Validate
	rec      recorder
	log      *zap.Logger
	now      func() time.Time
}

func NewOrchestrator(deps Dependencies, cfg OrchestratorConfig) *Orchestrator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Currency == "" {
		cfg.Currency = "EUR"
	}
	return &Orchestrator{
		deps:     deps,
		cfg:      cfg,
		validate: v,
		rec:      recorder{metrics: deps.Metrics},
		log:      log,
		now:      time.Now,
	}
}

// Quote prices the user's cart without creating anything.
func (o *Orchestrator) Quote(ctx context.Context, userID string, req models.QuoteRequest) (QuoteResult, error) {
	cart, err := o.snapshot(ctx, userID)
	if err != nil {
		return QuoteResult{}, err
	}
	coupon, balance, err := o.pricingInputs(ctx, userID, cart, req.CouponCode, req.UseWallet)
	if err != nil {
		return QuoteResult{}, err
	}
	breakdown, err := o.deps.Pricing.Compute(pricing.Input{
		Cart:           cart,
		Coupon:         coupon,
		Region:         req.Region,
		ShippingMethod: req.ShippingMethod,
		WalletBalance:  balance,
		UseWallet:      req.UseWallet,
	})
	if err != nil {
		return QuoteResult{}, apperrors.ErrBadRequest.Wrap(err)
	}
	return QuoteResult{Pricing: breakdown, Coupon: withDiscount(coupon, breakdown.CouponDiscount)}, nil
}

// ValidateCoupon checks code against the user's current cart and reports the
// discount it would grant.
func (o *Orchestrator) ValidateCoupon(ctx context.Context, userID, code string) (*models.CouponDescriptor, error) {
	cart, err := o.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	subtotal := cart.Subtotal().Round(2)
	coupon, err := o.deps.Coupons.Validate(ctx, code, subtotal, userID)
	if err != nil {
		return nil, err
	}
	discount, _, err := pricing.CouponDiscount(coupon, subtotal)
	if err != nil {
		return nil, apperrors.ErrCouponInvalid.Wrap(err)
	}
	return withDiscount(coupon, discount), nil
}

// withDiscount returns a copy of c carrying the computed discount.
func withDiscount(c *models.CouponDescriptor, discount decimal.Decimal) *models.CouponDescriptor {
	if c == nil {
		return nil
	}
	cp := *c
	cp.DiscountAmount = discount
	return &cp
}

// Cart reads the user's cart once for a checkout attempt. An empty cart is
// returned as is; PlaceOrder rejects it during validation.
func (o *Orchestrator) Cart(ctx context.Context, userID string) (models.CartSnapshot, error) {
	cart, err := o.deps.Carts.Snapshot(ctx, userID)
	if err != nil {
		o.log.Error("cart read failed", zap.String("user_id", userID), zap.Error(err))
		return models.CartSnapshot{}, apperrors.ErrServiceUnavailable.Wrap(err)
	}
	return cart, nil
}

// Attempt returns the stored attempt for an idempotency key.
func (o *Orchestrator) Attempt(ctx context.Context, key string) (*models.CheckoutAttempt, error) {
	a, err := o.deps.Attempts.FindByIdempotencyKey(ctx, key)
	if errors.Is(err, repository.ErrAttemptNotFound) {
		return nil, apperrors.ErrNotFound.Wrap(err)
	}
	if err != nil {
		return nil, apperrors.ErrInternalServer.Wrap(err)
	}
	return a, nil
}

// PaymentSucceeded finalizes an order after the gateway reports an
// asynchronous success. It shares the finalize key with PlaceOrder.
func (o *Orchestrator) PaymentSucceeded(ctx context.Context, orderID, intentID string) error {
	if orderID == "" {
		return apperrors.Validation("order_id", "Payment intent carries no order id")
	}
	return o.deps.Ledger.FinalizeOrder(ctx, orderID, intentID)
}

// PlaceOrder runs one checkout attempt to a single terminal outcome. A key
// that already names a finished attempt replays its stored outcome.
func (o *Orchestrator) PlaceOrder(ctx context.Context, in models.PlaceOrderInput) (models.OrderOutcome, error) {
	if in.UserID == "" {
		return models.OrderOutcome{}, apperrors.ErrUnauthorized
	}
	if in.IdempotencyKey == "" {
		in.IdempotencyKey = uuid.NewString()
	}
	log := o.log.With(zap.String("idempotency_key", in.IdempotencyKey), zap.String("user_id", in.UserID))

	existing, err := o.deps.Attempts.FindByIdempotencyKey(ctx, in.IdempotencyKey)
	switch {
	case err == nil:
		return o.replay(existing, log)
	case !errors.Is(err, repository.ErrAttemptNotFound):
		log.Error("attempt lookup failed", zap.Error(err))
		return models.OrderOutcome{}, apperrors.ErrServiceUnavailable.Wrap(err)
	}

	token := uuid.NewString()
	acquired, err := o.deps.Guard.Acquire(ctx, in.UserID, token)
	if err != nil {
		log.Error("attempt guard unavailable", zap.Error(err))
		return models.OrderOutcome{}, apperrors.ErrServiceUnavailable.Wrap(err)
	}
	if !acquired {
		log.Warn("checkout attempt rejected, another attempt in flight")
		return models.OrderOutcome{}, apperrors.ErrAttemptInProgress
	}
	defer func() {
		if err := o.deps.Guard.Release(context.WithoutCancel(ctx), in.UserID, token); err != nil {
			log.Error("attempt guard release failed", zap.Error(err))
		}
	}()

	attempt := &models.CheckoutAttempt{
		ID:             uuid.New(),
		IdempotencyKey: in.IdempotencyKey,
		UserID:         in.UserID,
		State:          models.CheckoutDraft,
		PaymentMethod:  in.Request.PaymentMethod,
		Currency:       o.cfg.Currency,
	}
	if err := o.deps.Attempts.Create(ctx, attempt); err != nil {
		if _, lookupErr := o.deps.Attempts.FindByIdempotencyKey(ctx, in.IdempotencyKey); lookupErr == nil {
			return models.OrderOutcome{}, apperrors.ErrAttemptInProgress
		}
		log.Error("attempt create failed", zap.Error(err))
		return models.OrderOutcome{}, apperrors.ErrServiceUnavailable.Wrap(err)
	}
	o.rec.count(aws_pkg.MetricCheckoutAttempts, map[string]string{"PaymentMethod": string(in.Request.PaymentMethod)})

	run := &checkoutRun{
		o:       o,
		attempt: attempt,
		in:      in,
		log:     log.With(zap.String("attempt_id", attempt.ID.String())),
		started: o.now(),
	}
	return run.execute(ctx)
}

func (o *Orchestrator) replay(a *models.CheckoutAttempt, log *zap.Logger) (models.OrderOutcome, error) {
	if !a.State.IsTerminal() {
		log.Warn("replayed key names an unfinished attempt", zap.String("state", string(a.State)))
		return models.OrderOutcome{}, apperrors.ErrAttemptInProgress
	}
	out := a.Outcome()
	if a.State == models.CheckoutCompleted {
		out.RedirectURL = o.redirectURL(a.OrderID)
		return out, nil
	}
	status := a.ErrorStatus
	if status == 0 {
		status = apperrors.StatusFor(apperrors.Kind(a.ErrorKind))
	}
	e := apperrors.New(status, apperrors.Kind(a.ErrorKind), a.ErrorMessage, nil)
	e.Field = a.ErrorField
	return out, e
}

func (o *Orchestrator) redirectURL(orderID string) string {
	if o.cfg.ConfirmationBaseURL == "" || orderID == "" {
		return ""
	}
	return strings.TrimRight(o.cfg.ConfirmationBaseURL, "/") + "/" + orderID
}

func (o *Orchestrator) snapshot(ctx context.Context, userID string) (models.CartSnapshot, error) {
	cart, err := o.Cart(ctx, userID)
	if err != nil {
		return models.CartSnapshot{}, err
	}
	if err := checkCart(cart); err != nil {
		return models.CartSnapshot{}, err
	}
	return cart, nil
}

// checkCart rejects an empty cart and any line that would lower the subtotal.
func checkCart(cart models.CartSnapshot) error {
	if cart.IsEmpty() {
		return apperrors.ErrEmptyCart
	}
	for i, l := range cart.Lines {
		field := fmt.Sprintf("items[%d]", i)
		if l.Quantity <= 0 {
			return apperrors.Validation(field, "quantity must be positive")
		}
		if l.UnitPrice.IsNegative() {
			return apperrors.Validation(field, "unit price must not be negative")
		}
	}
	return nil
}

// pricingInputs fetches the live coupon verdict and wallet balance.
func (o *Orchestrator) pricingInputs(ctx context.Context, userID string, cart models.CartSnapshot, code string, useWallet bool) (*models.CouponDescriptor, decimal.Decimal, error) {
	var coupon *models.CouponDescriptor
	if strings.TrimSpace(code) != "" {
		c, err := o.deps.Coupons.Validate(ctx, code, cart.Subtotal().Round(2), userID)
		if err != nil {
			return nil, decimal.Zero, err
		}
		coupon = c
	}

	balance := decimal.Zero
	if useWallet {
		cfg := o.rec.retryPolicy(o.cfg.Retry, o.log, "wallet_balance")
		b, _, err := resilience.Execute(ctx, cfg, func(ctx context.Context) (decimal.Decimal, error) {
			return o.deps.Wallet.Balance(ctx, userID)
		})
		if err != nil {
			return nil, decimal.Zero, apperrors.Transient("Wallet balance is unavailable, please try again", err)
		}
		balance = b
	}
	return coupon, balance, nil
}

// validationError converts the first validator failure into a field error.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperrors.ErrBadRequest.Wrap(err)
	}
	fe := verrs[0]
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	return apperrors.Validation(field, fieldMessage(fe))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_unless":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "numeric":
		return "must contain only digits"
	case "alphanum":
		return "must contain only letters and digits"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "iso3166_1_alpha2":
		return "must be a two-letter country code"
	}
	return "is invalid"
}
