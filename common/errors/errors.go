package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Kind classifies an error by how checkout must react to it.
type Kind string

const (
	// KindValidation is bad input. Never retried, reported next to the offending field.
	KindValidation Kind = "validation"
	// KindTransient is a network, 5xx or 429 failure. Retried, reported after exhaustion.
	KindTransient Kind = "transient_service"
	// KindTerminal is a business rule rejection such as an invalid coupon or a declined card.
	KindTerminal Kind = "terminal_service"
	// KindConsistencyRisk is an ambiguous payment outcome. Never retried; the order stays pending.
	KindConsistencyRisk Kind = "consistency_risk"
	// KindInternal is anything this service does not recognise.
	KindInternal Kind = "internal"
)

// Error represents an application error
type Error struct {
	Code    int    `json:"-"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by kind and message so wrapped copies still compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// Retryable reports whether the resilience executor may try again.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransient
}

// Wrap returns a copy of e carrying err as its cause.
func (e *Error) Wrap(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

// WithField returns a copy of e attached to an input field.
func (e *Error) WithField(field string) *Error {
	cp := *e
	cp.Field = field
	return &cp
}

// New creates a new Error
func New(code int, kind Kind, message string, err error) *Error {
	return &Error{
		Code:    code,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Validation builds a field-level validation error.
func Validation(field, message string) *Error {
	return &Error{Code: http.StatusUnprocessableEntity, Kind: KindValidation, Field: field, Message: message}
}

// Transient builds a retryable service error.
func Transient(message string, err error) *Error {
	return New(http.StatusServiceUnavailable, KindTransient, message, err)
}

// Terminal builds a non-retryable business rejection.
func Terminal(code int, message string, err error) *Error {
	return New(code, KindTerminal, message, err)
}

// ConsistencyRisk builds an ambiguous-outcome error.
func ConsistencyRisk(message string, err error) *Error {
	return New(http.StatusAccepted, KindConsistencyRisk, message, err)
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// StatusFor returns the HTTP status conventionally used for kind.
func StatusFor(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindTransient:
		return http.StatusServiceUnavailable
	case KindTerminal:
		return http.StatusUnprocessableEntity
	case KindConsistencyRisk:
		return http.StatusAccepted
	}
	return http.StatusInternalServerError
}

// As returns the first *Error in err's chain, or an internal error wrapping err.
func As(err error) *Error {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return ErrInternalServer.Wrap(err)
}

// Common error types
var (
	ErrBadRequest         = New(http.StatusBadRequest, KindValidation, "Bad request", nil)
	ErrUnauthorized       = New(http.StatusUnauthorized, KindValidation, "Unauthorized", nil)
	ErrNotFound           = New(http.StatusNotFound, KindTerminal, "Not found", nil)
	ErrInternalServer     = New(http.StatusInternalServerError, KindInternal, "Internal server error", nil)
	ErrServiceUnavailable = New(http.StatusServiceUnavailable, KindTransient, "Service unavailable", nil)
)

// Checkout error types
var (
	ErrEmptyCart         = New(http.StatusUnprocessableEntity, KindValidation, "Cart is empty, nothing to checkout", nil)
	ErrRawCardData       = New(http.StatusUnprocessableEntity, KindValidation, "Raw card data is not accepted, tokenize through the payment widget", nil)
	ErrAttemptInProgress = New(http.StatusConflict, KindTerminal, "A checkout attempt for this cart is already in progress", nil)
	ErrCouponInvalid     = New(http.StatusUnprocessableEntity, KindTerminal, "Coupon code is invalid or expired", nil)
	ErrCouponNotEligible = New(http.StatusUnprocessableEntity, KindTerminal, "Cart is not eligible for this coupon", nil)
	ErrPaymentDeclined   = New(http.StatusPaymentRequired, KindTerminal, "Payment was declined", nil)
	ErrPaymentAmbiguous  = ConsistencyRisk("Payment outcome is unknown, please contact support before retrying", nil)
)

// ErrorMiddleware renders the last error attached to the gin context.
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			appErr := As(c.Errors.Last().Err)
			c.JSON(appErr.Code, gin.H{"error": appErr})
			c.Abort()
		}
	}
}
