package order

import "errors"

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrInvalidDraft  = errors.New("invalid order data")
	ErrInvalidMethod = errors.New("unsupported payment method")
)
