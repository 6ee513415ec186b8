package payment

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest          = errors.New("invalid payment request")
	ErrPaymentInitiationFailed = errors.New("payment initiation failed")
	ErrGatewayUnavailable      = errors.New("payment gateway unavailable")
	ErrPersistenceFailure      = errors.New("payment persistence failed")
	ErrMaterializationFailure  = errors.New("order materialization failed")
	ErrPaymentNotFound         = errors.New("pending payment not found")
	ErrNotPending              = errors.New("payment is no longer pending")
	ErrNotRetryable            = errors.New("payment has no confirmed receipt to materialize")
	ErrAmountMismatch          = errors.New("paid amount does not match pending payment")
)

func initiationError(kind, err error) error {
	return fmt.Errorf("%w: %w: %w", ErrPaymentInitiationFailed, kind, err)
}

// GatewayError is a failed Daraja call. StatusCode is zero for transport errors.
type GatewayError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mpesa %s: %v", e.Op, e.Err)
	}
	if e.Code != "" {
		return fmt.Sprintf("mpesa %s: status %d: %s: %s", e.Op, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("mpesa %s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
