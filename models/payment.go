package models

// Gateway statuses returned by intent confirmation.
const (
	IntentSucceeded             = "succeeded"
	IntentProcessing            = "processing"
	IntentRequiresCapture       = "requires_capture"
	IntentRequiresPaymentMethod = "requires_payment_method"
	IntentRequiresAction        = "requires_action"
	IntentCanceled              = "canceled"
)

// IsConfirmedStatus reports whether a confirmation status completes the order.
func IsConfirmedStatus(status string) bool {
	switch status {
	case IntentSucceeded, IntentProcessing, IntentRequiresCapture:
		return true
	}
	return false
}

// PaymentIntent is the gateway's record of an intended charge.
type PaymentIntent struct {
	IntentID     string
	ClientSecret string
}

// PaymentResult is the outcome of a successful confirmation protocol run.
type PaymentResult struct {
	IntentID string `json:"intent_id"`
	Status   string `json:"status"`
}
