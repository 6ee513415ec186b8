package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"plantstore-be/internal/events"
	"plantstore-be/internal/logger"
	"plantstore-be/internal/metrics"
	"plantstore-be/internal/notify"
	"plantstore-be/internal/order"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CallbackReconciler interface {
	HandleCallback(ctx context.Context, cb *STKCallback, raw []byte) (Outcome, error)
	// Retry re-runs materialization for a paid payment left pending for review.
	Retry(ctx context.Context, checkoutRequestID string) (Outcome, error)
}

type Reconciler struct {
	repo      Repository
	orders    order.Service
	notifier  notify.Notifier
	publisher events.Publisher
	dispatch  func(func())
}

const publishTimeout = 10 * time.Second

type ReconcilerOption func(*Reconciler)

// WithDispatch replaces the goroutine used for post-commit notification and event publishing.
func WithDispatch(dispatch func(func())) ReconcilerOption {
	return func(r *Reconciler) { r.dispatch = dispatch }
}

func NewReconciler(repo Repository, orders order.Service, notifier notify.Notifier, publisher events.Publisher, opts ...ReconcilerOption) *Reconciler {
	if publisher == nil {
		publisher = events.Noop{}
	}
	r := &Reconciler{
		repo:      repo,
		orders:    orders,
		notifier:  notifier,
		publisher: publisher,
		dispatch:  func(f func()) { go f() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reconciler) HandleCallback(ctx context.Context, cb *STKCallback, raw []byte) (Outcome, error) {
	outcome, err := r.handle(ctx, cb, raw)
	metrics.CallbacksTotal.WithLabelValues(string(outcome)).Inc()
	return outcome, err
}

func (r *Reconciler) handle(ctx context.Context, cb *STKCallback, raw []byte) (Outcome, error) {
	if cb.CheckoutRequestID == "" {
		logger.FromCtx(ctx).Warn("callback without checkout request id", zap.String("layer", "reconciler"))
		return OutcomeIgnored, nil
	}

	ctx = logger.WithCheckoutID(ctx, cb.CheckoutRequestID)
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "reconciler"),
		zap.String("method", "HandleCallback"),
		zap.Int("result_code", cb.ResultCode),
	)

	// 1. Idempotency guard: unknown or terminal means nothing to do.
	p, err := r.repo.GetByCheckoutRequestID(ctx, cb.CheckoutRequestID)
	if errors.Is(err, ErrPaymentNotFound) {
		log.Warn("callback for unknown checkout request")
		return OutcomeIgnored, nil
	}
	if err != nil {
		log.Error("failed to load pending payment", zap.Error(err))
		return OutcomeIgnored, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	if p.Status.IsTerminal() {
		log.Info("duplicate callback for settled payment", zap.String("status", string(p.Status)))
		return OutcomeIgnored, nil
	}

	// 2. Cancelled / failed payment
	if !cb.Succeeded() {
		changed, err := r.repo.MarkFailed(ctx, cb.CheckoutRequestID, cb.ResultCode, cb.ResultDesc, raw)
		if err != nil {
			log.Error("failed to mark payment failed", zap.Error(err))
			return OutcomeIgnored, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
		}
		if !changed {
			return OutcomeIgnored, nil
		}
		log.Info("payment failed", zap.String("result_desc", cb.ResultDesc))
		r.dispatch(r.publishLater(ctx, events.Event{
			Type: events.PaymentFailed,
			Key:  cb.CheckoutRequestID,
			Data: map[string]interface{}{"resultCode": cb.ResultCode, "resultDesc": cb.ResultDesc},
		}))
		return OutcomeFailed, nil
	}

	// 3. Paid, for exactly the amount that was pushed. A mismatch keeps no
	// receipt so the payment cannot be retried into an order.
	if err := checkPaidAmount(cb, p); err != nil {
		return r.review(ctx, p, ReviewParams{
			CheckoutRequestID: cb.CheckoutRequestID,
			ResultCode:        cb.ResultCode,
			ResultDesc:        cb.ResultDesc,
			Payload:           raw,
		}, err)
	}

	receipt := cb.Receipt()
	if receipt == "" {
		err := fmt.Errorf("%w: callback carried no MpesaReceiptNumber", ErrMaterializationFailure)
		return r.review(ctx, p, ReviewParams{
			CheckoutRequestID: cb.CheckoutRequestID,
			ResultCode:        cb.ResultCode,
			ResultDesc:        cb.ResultDesc,
			Payload:           raw,
		}, err)
	}

	return r.settle(ctx, p, SettleParams{
		CheckoutRequestID: cb.CheckoutRequestID,
		Receipt:           receipt,
		ResultDesc:        cb.ResultDesc,
		Payload:           raw,
	})
}

func (r *Reconciler) Retry(ctx context.Context, checkoutRequestID string) (Outcome, error) {
	ctx = logger.WithCheckoutID(ctx, checkoutRequestID)
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "reconciler"),
		zap.String("method", "Retry"),
	)

	p, err := r.repo.GetByCheckoutRequestID(ctx, checkoutRequestID)
	if err != nil {
		return OutcomeIgnored, err
	}
	if p.Status.IsTerminal() {
		return OutcomeIgnored, ErrNotPending
	}
	if p.MpesaReceipt == nil || *p.MpesaReceipt == "" {
		return OutcomeIgnored, ErrNotRetryable
	}

	log.Info("retrying materialization", zap.String("mpesa_receipt", *p.MpesaReceipt))

	var desc string
	if p.ResultDesc != nil {
		desc = *p.ResultDesc
	}
	return r.settle(ctx, p, SettleParams{
		CheckoutRequestID: checkoutRequestID,
		Receipt:           *p.MpesaReceipt,
		ResultDesc:        desc,
	})
}

func (r *Reconciler) settle(ctx context.Context, p *PendingPayment, in SettleParams) (Outcome, error) {
	log := logger.FromCtx(ctx).With(zap.String("mpesa_receipt", in.Receipt))

	var created *order.Order
	settled, err := r.repo.Settle(ctx, in, func(ctx context.Context, tx *sql.Tx, pp *PendingPayment) (uuid.UUID, error) {
		d, err := pp.Draft()
		if err != nil {
			return uuid.Nil, err
		}
		o, err := r.orders.MaterializeTx(ctx, tx, d, in.Receipt)
		if err != nil {
			return uuid.Nil, err
		}
		created = o
		return o.ID, nil
	})

	switch {
	case err == nil:
	case errors.Is(err, ErrNotPending), errors.Is(err, ErrPaymentNotFound):
		// A concurrent delivery settled it first.
		log.Info("payment already settled by another delivery")
		return OutcomeIgnored, nil
	default:
		return r.review(ctx, p, ReviewParams{
			CheckoutRequestID: in.CheckoutRequestID,
			Receipt:           in.Receipt,
			ResultDesc:        in.ResultDesc,
			Payload:           in.Payload,
		}, err)
	}

	orderID := *settled.OrderID
	log.Info("payment completed", zap.String("order_id", orderID.String()))

	evs := []events.Event{{
		Type: events.PaymentCompleted,
		Key:  in.CheckoutRequestID,
		Data: map[string]interface{}{"orderId": orderID, "receipt": in.Receipt, "amount": settled.Amount},
	}}
	if created != nil {
		evs = append(evs, events.Event{
			Type: events.OrderCreated,
			Key:  in.CheckoutRequestID,
			Data: map[string]interface{}{"orderId": orderID, "orderNumber": created.OrderNumber, "total": created.TotalAmount},
		})
	}

	bg := logger.Detach(ctx)
	publish := r.publishLater(ctx, evs...)
	r.dispatch(func() {
		r.notifyOrder(bg, orderID)
		publish()
	})

	return OutcomeCompleted, nil
}

// review leaves the payment pending and records why, for manual reconciliation.
func (r *Reconciler) review(ctx context.Context, p *PendingPayment, in ReviewParams, cause error) (Outcome, error) {
	in.Reason = cause.Error()

	logger.FromCtx(ctx).Error("paid callback left for review",
		zap.String("mpesa_receipt", in.Receipt),
		zap.Float64("amount", p.Amount),
		zap.ByteString("order_draft", p.OrderDraft),
		zap.Error(cause),
	)

	if _, err := r.repo.MarkForReview(ctx, in); err != nil {
		logger.FromCtx(ctx).Error("failed to record review reason", zap.Error(err))
	}

	r.dispatch(r.publishLater(ctx, events.Event{
		Type: events.PaymentReview,
		Key:  in.CheckoutRequestID,
		Data: map[string]interface{}{"receipt": in.Receipt, "reason": in.Reason},
	}))

	if !errors.Is(cause, ErrMaterializationFailure) {
		cause = fmt.Errorf("%w: %w", ErrMaterializationFailure, cause)
	}
	return OutcomeNeedsReview, cause
}

// publishLater returns a func that publishes evs on a context detached from
// ctx and bounded by publishTimeout. It is meant to run through r.dispatch.
func (r *Reconciler) publishLater(ctx context.Context, evs ...events.Event) func() {
	bg := logger.Detach(ctx)
	return func() {
		pctx, cancel := context.WithTimeout(bg, publishTimeout)
		defer cancel()
		for _, e := range evs {
			events.PublishLogged(pctx, r.publisher, e)
		}
	}
}

func checkPaidAmount(cb *STKCallback, p *PendingPayment) error {
	want := int64(math.Round(p.Amount))
	paid, ok := cb.PaidAmount()
	if !ok {
		return fmt.Errorf("%w: callback carried no Amount, expected %d", ErrAmountMismatch, want)
	}
	got, ok := WholeShillings(paid)
	if !ok || got != want {
		return fmt.Errorf("%w: paid %s, expected %d", ErrAmountMismatch, cb.Metadata("Amount"), want)
	}
	return nil
}

// notifyOrder re-reads the persisted order so emails reflect stored rows, not the draft.
func (r *Reconciler) notifyOrder(ctx context.Context, orderID uuid.UUID) {
	log := logger.FromCtx(ctx).With(zap.String("order_id", orderID.String()))

	if r.notifier == nil {
		return
	}

	o, err := r.orders.GetOrder(ctx, orderID)
	if err != nil {
		log.Error("failed to load order for notification", zap.Error(err))
		return
	}

	res := r.notifier.Notify(ctx, o, o.Items)
	log.Info("order notification finished",
		zap.Bool("customer_sent", res.CustomerSent),
		zap.Bool("admin_sent", res.AdminSent),
	)
}
