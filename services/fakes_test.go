package services

import (
	"context"
	"sync"
	"time"

	"checkout-service/clients"
	"checkout-service/models"
	"checkout-service/pricing"
	"checkout-service/repository"
	"checkout-service/resilience"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func fastRetry() resilience.Config {
	cfg := resilience.DefaultConfig()
	cfg.Sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return cfg
}

// --- attempts ---

type memAttempts struct {
	mu        sync.Mutex
	byKey     map[string]*models.CheckoutAttempt
	createErr error
	marked    []uuid.UUID
	pending   []models.CheckoutAttempt
}

func newMemAttempts() *memAttempts {
	return &memAttempts{byKey: map[string]*models.CheckoutAttempt{}}
}

func (m *memAttempts) Create(_ context.Context, a *models.CheckoutAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *a
	m.byKey[a.IdempotencyKey] = &cp
	return nil
}

func (m *memAttempts) FindByIdempotencyKey(_ context.Context, key string) (*models.CheckoutAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byKey[key]
	if !ok {
		return nil, repository.ErrAttemptNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAttempts) Update(_ context.Context, id uuid.UUID, upd models.AttemptUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byKey {
		if a.ID != id {
			continue
		}
		if upd.State != "" {
			a.State = upd.State
		}
		if upd.OrderID != nil {
			a.OrderID = *upd.OrderID
		}
		if upd.PaymentIntentID != nil {
			a.PaymentIntentID = *upd.PaymentIntentID
		}
		if upd.PaymentStatus != nil {
			a.PaymentStatus = *upd.PaymentStatus
		}
		if upd.Pricing != nil {
			a.Pricing = *upd.Pricing
			a.Total = upd.Pricing.Total
		}
		if upd.ErrorKind != nil {
			a.ErrorKind = *upd.ErrorKind
		}
		if upd.ErrorMessage != nil {
			a.ErrorMessage = *upd.ErrorMessage
		}
		if upd.ErrorField != nil {
			a.ErrorField = *upd.ErrorField
		}
		if upd.ErrorStatus != nil {
			a.ErrorStatus = *upd.ErrorStatus
		}
		if upd.Warning != nil {
			a.Warning = *upd.Warning
		}
		if upd.PendingDeadline != nil {
			a.PendingDeadline = upd.PendingDeadline
		}
		if upd.NeedsReconcile != nil {
			a.NeedsReconcile = *upd.NeedsReconcile
		}
		if upd.ReconcileReason != nil {
			a.ReconcileReason = *upd.ReconcileReason
		}
		return nil
	}
	return repository.ErrAttemptNotFound
}

func (m *memAttempts) FindReconcilable(_ context.Context, _ time.Time, limit int) ([]models.CheckoutAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) > limit {
		return m.pending[:limit], nil
	}
	return m.pending, nil
}

func (m *memAttempts) MarkReconciled(_ context.Context, id uuid.UUID, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marked = append(m.marked, id)
	return nil
}

func (m *memAttempts) get(key string) *models.CheckoutAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byKey[key]
}

// --- redis-backed collaborators ---

type memGuard struct {
	mu    sync.Mutex
	held  map[string]string
	err   error
	calls int
}

func (g *memGuard) Acquire(_ context.Context, userID, token string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return false, g.err
	}
	if g.held == nil {
		g.held = map[string]string{}
	}
	if _, ok := g.held[userID]; ok {
		return false, nil
	}
	g.held[userID] = token
	return true, nil
}

func (g *memGuard) Release(_ context.Context, userID, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[userID] == token {
		delete(g.held, userID)
	}
	return nil
}

type memCarts struct {
	mu      sync.Mutex
	carts   map[string]models.CartSnapshot
	cleared []string
}

func (c *memCarts) Snapshot(_ context.Context, userID string) (models.CartSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.carts[userID], nil
}

func (c *memCarts) Clear(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared = append(c.cleared, userID)
	delete(c.carts, userID)
	return nil
}

type stubWallet struct {
	balance decimal.Decimal
	err     error
	calls   int
}

func (w *stubWallet) Balance(_ context.Context, _ string) (decimal.Decimal, error) {
	w.calls++
	return w.balance, w.err
}

// --- remote services ---

type stubCoupons struct {
	mu      sync.Mutex
	calls   int
	verdict func(code string) (clients.CouponVerdict, error)
}

func (s *stubCoupons) Validate(_ context.Context, code, _ string, _ decimal.Decimal) (clients.CouponVerdict, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.verdict(code)
}

type cancelCall struct {
	OrderID, Key, Reason string
}

type stubOrders struct {
	mu          sync.Mutex
	createKeys  []string
	drafts      []models.OrderDraft
	cancels     []cancelCall
	finalized   []string
	paymentRefs []string
	createErr   error
	cancelErr   error
	finalizeErr error
	orderID     string
}

func (s *stubOrders) CreatePendingOrder(_ context.Context, draft models.OrderDraft, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createKeys = append(s.createKeys, key)
	s.drafts = append(s.drafts, draft)
	if s.createErr != nil {
		return "", s.createErr
	}
	if s.orderID == "" {
		return "ord-1", nil
	}
	return s.orderID, nil
}

func (s *stubOrders) CancelOrder(_ context.Context, orderID, key, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels = append(s.cancels, cancelCall{OrderID: orderID, Key: key, Reason: reason})
	return s.cancelErr
}

func (s *stubOrders) FinalizeOrder(_ context.Context, orderID, paymentRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalized = append(s.finalized, orderID)
	s.paymentRefs = append(s.paymentRefs, paymentRef)
	return s.finalizeErr
}

type stubGateway struct {
	mu           sync.Mutex
	tokenizeErr  error
	createErr    error
	confirm      func(n int) (string, error)
	onConfirm    func(ctx context.Context)
	confirmCalls int
	intentKeys   []string
	confirmKeys  []string
	amounts      []int64
}

func (g *stubGateway) Tokenize(_ context.Context, in models.PaymentInput) (string, error) {
	if g.tokenizeErr != nil {
		return "", g.tokenizeErr
	}
	return "pm_" + in.WidgetToken, nil
}

func (g *stubGateway) CreateIntent(_ context.Context, orderID string, amount int64, _ string, key string) (models.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intentKeys = append(g.intentKeys, key)
	g.amounts = append(g.amounts, amount)
	if g.createErr != nil {
		return models.PaymentIntent{}, g.createErr
	}
	return models.PaymentIntent{IntentID: "pi_" + orderID, ClientSecret: "pi_" + orderID + "_secret_x"}, nil
}

func (g *stubGateway) Confirm(ctx context.Context, _, _ string, key string) (string, error) {
	if g.onConfirm != nil {
		g.onConfirm(ctx)
	}
	g.mu.Lock()
	g.confirmCalls++
	n := g.confirmCalls
	g.confirmKeys = append(g.confirmKeys, key)
	g.mu.Unlock()
	if g.confirm == nil {
		return models.IntentSucceeded, nil
	}
	return g.confirm(n)
}

// --- outbound ---

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (n *recordingNotifier) Notify(_ context.Context, msg Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

type sentMessage struct {
	Body, DedupID string
}

type recordingQueue struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (q *recordingQueue) SendMessage(_ context.Context, body, dedupID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.sent = append(q.sent, sentMessage{Body: body, DedupID: dedupID})
	return nil
}

// --- fixture ---

type fixture struct {
	attempts *memAttempts
	guard    *memGuard
	carts    *memCarts
	wallet   *stubWallet
	coupons  *stubCoupons
	orders   *stubOrders
	gateway  *stubGateway
	notifier *recordingNotifier
	queue    *recordingQueue
	orch     *Orchestrator
}

func newFixture() *fixture {
	f := &fixture{
		attempts: newMemAttempts(),
		guard:    &memGuard{},
		carts:    &memCarts{carts: map[string]models.CartSnapshot{}},
		wallet:   &stubWallet{},
		coupons: &stubCoupons{verdict: func(code string) (clients.CouponVerdict, error) {
			return clients.CouponVerdict{Valid: true, Coupon: &models.CouponDescriptor{
				ID: "c-1", Code: code, Type: models.CouponTypePercentage, Value: decimal.NewFromInt(10),
			}}, nil
		}},
		orders:   &stubOrders{},
		gateway:  &stubGateway{},
		notifier: &recordingNotifier{},
		queue:    &recordingQueue{},
	}
	log := zap.NewNop()
	retry := fastRetry()
	f.orch = NewOrchestrator(Dependencies{
		Coupons:    NewCouponValidator(f.coupons, retry, log, nil),
		Wallet:     f.wallet,
		Pricing:    pricing.NewEngine(pricing.DefaultTables()),
		Ledger:     NewOrderLedger(f.orders, retry, log, nil),
		Payments:   NewPaymentProtocol(f.gateway, retry, 10*time.Second, log, nil),
		Attempts:   f.attempts,
		Guard:      f.guard,
		Carts:      f.carts,
		Notifier:   f.notifier,
		Reconciler: NewReconciler(f.attempts, f.queue, log),
		Logger:     log,
	}, OrchestratorConfig{
		PendingOrderTTL:     30 * time.Minute,
		ConfirmationBaseURL: "https://shop.example.com/orders/",
		Retry:               retry,
	})
	return f
}

func sampleCart(userID string) models.CartSnapshot {
	return models.CartSnapshot{
		UserID: userID,
		Lines: []models.CartLine{
			{ProductID: "p-1", Name: "Mug", UnitPrice: decimal.RequireFromString("12.50"), Quantity: 2},
			{ProductID: "p-2", Name: "Poster", UnitPrice: decimal.RequireFromString("15.00"), Quantity: 1},
		},
	}
}

func sampleRequest(method models.PaymentMethod) models.CheckoutRequest {
	return models.CheckoutRequest{
		Shipping: models.ShippingInfo{
			FullName:     "Ana Garcia",
			Email:        "ana@example.com",
			Phone:        "600123456",
			AddressLine1: "Calle Mayor 1",
			City:         "Madrid",
			Region:       "Madrid",
			PostalCode:   "28013",
			Country:      "ES",
		},
		Billing:        models.BillingInfo{SameAsShipping: true},
		ShippingMethod: models.ShippingExpress,
		PaymentMethod:  method,
		Payment:        models.PaymentInput{WidgetToken: "tok_visa"},
	}
}

func placeInput(userID, key string, method models.PaymentMethod) models.PlaceOrderInput {
	return models.PlaceOrderInput{
		UserID:         userID,
		IdempotencyKey: key,
		Cart:           sampleCart(userID),
		Request:        sampleRequest(method),
	}
}
