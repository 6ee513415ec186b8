package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"plantstore-be/internal/logger"
	"plantstore-be/internal/metrics"
	"plantstore-be/internal/utils"

	"go.uber.org/zap"
)

type Service interface {
	// Initiate sends an STK push and records the pending payment. It returns the CheckoutRequestID.
	Initiate(ctx context.Context, req InitiateRequest) (string, error)
	GetPayment(ctx context.Context, checkoutRequestID string) (*PendingPayment, error)
	ListPayments(ctx context.Context, f ListFilter) ([]PendingPayment, error)
	// QueryGateway asks Daraja for the current state of an STK push.
	QueryGateway(ctx context.Context, checkoutRequestID string) (*STKQueryResponse, error)
}

type service struct {
	repo             Repository
	gateway          Gateway
	accountReference string
}

func NewService(repo Repository, gateway Gateway, accountReference string) Service {
	return &service{
		repo:             repo,
		gateway:          gateway,
		accountReference: accountReference,
	}
}

func validateInitiate(req InitiateRequest) error {
	if strings.TrimSpace(req.PhoneNumber) == "" {
		return fmt.Errorf("%w: phone number is required", ErrInvalidRequest)
	}
	if math.IsNaN(req.Amount) || req.Amount <= 0 {
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidRequest)
	}
	if _, ok := WholeShillings(req.Amount); !ok {
		return fmt.Errorf("%w: amount %.2f is not a whole number of shillings", ErrInvalidRequest, req.Amount)
	}
	if req.OrderData == nil {
		return fmt.Errorf("%w: order data is required", ErrInvalidRequest)
	}
	if err := req.OrderData.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if !req.OrderData.AmountMatches(req.Amount) {
		return fmt.Errorf("%w: amount %.2f does not match order total %.2f",
			ErrInvalidRequest, req.Amount, req.OrderData.ItemsTotal())
	}
	return nil
}

func (s *service) Initiate(ctx context.Context, req InitiateRequest) (string, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Initiate"),
		zap.Float64("amount", req.Amount),
	)

	if err := validateInitiate(req); err != nil {
		log.Warn("invalid initiate request", zap.Error(err))
		metrics.PaymentsInitiated.WithLabelValues("invalid").Inc()
		return "", err
	}

	shillings, _ := WholeShillings(req.Amount)
	phone := utils.NormalizePhoneKE(req.PhoneNumber)
	log = log.With(zap.String("phone", phone))

	draft, err := json.Marshal(req.OrderData)
	if err != nil {
		return "", fmt.Errorf("%w: encode order data: %w", ErrInvalidRequest, err)
	}

	// 1. STK push (token fetch happens inside the gateway)
	resp, err := s.gateway.STKPush(ctx, STKPushRequest{
		PhoneNumber:      phone,
		Amount:           shillings,
		AccountReference: s.accountReference,
		Description:      "Payment for plant order",
	})
	if err != nil {
		log.Error("STK push failed", zap.Error(err))
		metrics.PaymentsInitiated.WithLabelValues("gateway_error").Inc()
		return "", initiationError(ErrGatewayUnavailable, err)
	}

	log = log.With(zap.String("checkout_request_id", resp.CheckoutRequestID))

	// 2. Pending record
	p := &PendingPayment{
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		PhoneNumber:       phone,
		Amount:            float64(shillings),
		OrderDraft:        draft,
		Status:            StatusPending,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		// The push was accepted: the customer may still pay with no local record.
		log.Error("pending payment not recorded after accepted STK push",
			zap.ByteString("order_draft", draft),
			zap.Error(err),
		)
		metrics.PaymentsInitiated.WithLabelValues("persistence_error").Inc()
		return "", initiationError(ErrPersistenceFailure, err)
	}

	metrics.PaymentsInitiated.WithLabelValues("accepted").Inc()
	log.Info("payment initiated")

	return resp.CheckoutRequestID, nil
}

func (s *service) GetPayment(ctx context.Context, checkoutRequestID string) (*PendingPayment, error) {
	if strings.TrimSpace(checkoutRequestID) == "" {
		return nil, fmt.Errorf("%w: checkout request id is required", ErrInvalidRequest)
	}
	return s.repo.GetByCheckoutRequestID(ctx, checkoutRequestID)
}

func (s *service) ListPayments(ctx context.Context, f ListFilter) ([]PendingPayment, error) {
	return s.repo.List(ctx, f)
}

func (s *service) QueryGateway(ctx context.Context, checkoutRequestID string) (*STKQueryResponse, error) {
	if strings.TrimSpace(checkoutRequestID) == "" {
		return nil, fmt.Errorf("%w: checkout request id is required", ErrInvalidRequest)
	}
	return s.gateway.QueryStatus(ctx, checkoutRequestID)
}
