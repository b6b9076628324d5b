package models

type CheckoutState string

const (
	CheckoutDraft           CheckoutState = "draft"
	CheckoutValidating      CheckoutState = "validating"
	CheckoutPricingComputed CheckoutState = "pricing_computed"
	CheckoutOrderCreated    CheckoutState = "order_created"
	CheckoutPaymentInFlight CheckoutState = "payment_in_flight"
	CheckoutCompleted       CheckoutState = "completed"
	CheckoutFailed          CheckoutState = "failed"
)

var checkoutTransitions = map[CheckoutState][]CheckoutState{
	CheckoutDraft:           {CheckoutValidating, CheckoutFailed},
	CheckoutValidating:      {CheckoutPricingComputed, CheckoutFailed},
	CheckoutPricingComputed: {CheckoutOrderCreated, CheckoutFailed},
	CheckoutOrderCreated:    {CheckoutPaymentInFlight, CheckoutCompleted, CheckoutFailed},
	CheckoutPaymentInFlight: {CheckoutCompleted, CheckoutFailed},
}

func (s CheckoutState) IsTerminal() bool {
	return s == CheckoutCompleted || s == CheckoutFailed
}

// HasPendingOrder reports whether an order exists that is neither paid nor cancelled.
func (s CheckoutState) HasPendingOrder() bool {
	return s == CheckoutOrderCreated || s == CheckoutPaymentInFlight
}

func (s CheckoutState) String() string {
	return string(s)
}

// CanTransitionTo reports whether the checkout machine may move from one state to another.
func (s CheckoutState) CanTransitionTo(next CheckoutState) bool {
	for _, allowed := range checkoutTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type PaymentState string

const (
	PaymentIdle              PaymentState = "idle"
	PaymentTokenizingCard    PaymentState = "tokenizing_card"
	PaymentCreatingIntent    PaymentState = "creating_intent"
	PaymentConfirmingPayment PaymentState = "confirming_payment"
	PaymentSucceeded         PaymentState = "succeeded"
	PaymentFailed            PaymentState = "failed"
)

var paymentTransitions = map[PaymentState][]PaymentState{
	PaymentIdle:              {PaymentTokenizingCard, PaymentFailed},
	PaymentTokenizingCard:    {PaymentCreatingIntent, PaymentFailed},
	PaymentCreatingIntent:    {PaymentConfirmingPayment, PaymentFailed},
	PaymentConfirmingPayment: {PaymentSucceeded, PaymentFailed},
}

func (s PaymentState) IsTerminal() bool {
	return s == PaymentSucceeded || s == PaymentFailed
}

func (s PaymentState) CanTransitionTo(next PaymentState) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
