package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	checkoutIDKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithCheckoutID tags ctx with the M-Pesa CheckoutRequestID being handled.
func WithCheckoutID(ctx context.Context, checkoutRequestID string) context.Context {
	return context.WithValue(ctx, checkoutIDKey, checkoutRequestID)
}

func CheckoutIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(checkoutIDKey).(string)
	return v
}

// FromCtx returns the logger with request_id and checkout_request_id added when set.
func FromCtx(ctx context.Context) *zap.Logger {
	var fields []zap.Field
	if id := RequestIDFrom(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if id := CheckoutIDFrom(ctx); id != "" {
		fields = append(fields, zap.String("checkout_request_id", id))
	}
	if len(fields) == 0 {
		return L()
	}
	return L().With(fields...)
}

// Detach keeps the log tags of ctx on a context that outlives the request.
func Detach(ctx context.Context) context.Context {
	out := context.Background()
	if id := RequestIDFrom(ctx); id != "" {
		out = WithRequestID(out, id)
	}
	if id := CheckoutIDFrom(ctx); id != "" {
		out = WithCheckoutID(out, id)
	}
	return out
}
