package contact

import "errors"

var (
	ErrInvalidMessage = errors.New("invalid contact message")
	ErrNotConfigured  = errors.New("contact inbox is not configured")
	ErrDelivery       = errors.New("contact message could not be delivered")
)
