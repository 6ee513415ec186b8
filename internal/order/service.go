package order

import (
	"context"
	"database/sql"
	"fmt"

	"plantstore-be/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreatedHook runs after a direct order is committed. It must not block.
type CreatedHook func(ctx context.Context, o *Order)

type Service interface {
	// PlaceOrder creates an order without online payment (cash on delivery / pay on pickup).
	PlaceOrder(ctx context.Context, d *Draft, method PaymentMethod) (*Order, error)
	// MaterializeTx turns a paid draft into an order inside the caller's transaction.
	MaterializeTx(ctx context.Context, tx *sql.Tx, d *Draft, receipt string) (*Order, error)
	// GetOrder loads the order and the item rows as persisted.
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
}

type service struct {
	repo      Repository
	onCreated CreatedHook
}

func NewService(repo Repository, onCreated CreatedHook) Service {
	return &service{repo: repo, onCreated: onCreated}
}

func (s *service) PlaceOrder(ctx context.Context, d *Draft, method PaymentMethod) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "PlaceOrder"),
		zap.String("payment_method", string(method)),
	)

	if err := d.Validate(); err != nil {
		log.Warn("invalid order draft", zap.Error(err))
		return nil, err
	}

	switch method {
	case PaymentMethodCashOnDelivery:
		if d.DeliveryMethod != DeliveryMethodDelivery {
			return nil, fmt.Errorf("%w: cash on delivery needs a delivery address", ErrInvalidMethod)
		}
	case PaymentMethodPayOnPickup:
		if d.DeliveryMethod != DeliveryMethodPickup {
			return nil, fmt.Errorf("%w: pay on pickup needs a pickup location", ErrInvalidMethod)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}

	o := FromDraft(d, method, StatusPending, nil)
	log = log.With(zap.String("order_id", o.ID.String()), zap.String("order_number", o.OrderNumber))

	if err := s.repo.Create(ctx, o); err != nil {
		log.Error("failed to create order", zap.Error(err))
		return nil, err
	}

	saved, err := s.GetOrder(ctx, o.ID)
	if err != nil {
		// The order is committed; fall back to the in-memory copy for the response.
		log.Warn("failed to re-read created order", zap.Error(err))
		saved = o
	}

	log.Info("order placed", zap.Float64("total_amount", saved.TotalAmount))

	if s.onCreated != nil {
		s.onCreated(ctx, saved)
	}

	return saved, nil
}

func (s *service) MaterializeTx(ctx context.Context, tx *sql.Tx, d *Draft, receipt string) (*Order, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	o := FromDraft(d, PaymentMethodMpesa, StatusPaid, &receipt)
	if err := s.repo.CreateTx(ctx, tx, o); err != nil {
		return nil, err
	}

	logger.FromCtx(ctx).Debug("order materialized",
		zap.String("order_id", o.ID.String()),
		zap.String("mpesa_receipt", receipt),
		zap.Int("item_count", len(o.Items)),
	)
	return o, nil
}

func (s *service) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.GetItems(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load items for order %s: %w", id, err)
	}
	o.Items = items

	return o, nil
}
