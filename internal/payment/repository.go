package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"plantstore-be/internal/utils"

	"github.com/google/uuid"
)

// MaterializeFunc creates the order for p inside tx and returns its id.
type MaterializeFunc func(ctx context.Context, tx *sql.Tx, p *PendingPayment) (uuid.UUID, error)

type SettleParams struct {
	CheckoutRequestID string
	Receipt           string
	ResultDesc        string
	// Payload replaces the stored callback body when non-empty.
	Payload []byte
}

type ReviewParams struct {
	CheckoutRequestID string
	Receipt           string
	ResultCode        int
	ResultDesc        string
	Reason            string
	Payload           []byte
}

type Repository interface {
	Create(ctx context.Context, p *PendingPayment) error
	GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*PendingPayment, error)
	// Settle locks the pending row, runs materialize and marks the row completed,
	// all in one transaction. ErrNotPending means another delivery won.
	Settle(ctx context.Context, in SettleParams, materialize MaterializeFunc) (*PendingPayment, error)
	// MarkFailed and MarkForReview only touch rows still pending and report whether one changed.
	MarkFailed(ctx context.Context, checkoutRequestID string, resultCode int, resultDesc string, payload []byte) (bool, error)
	MarkForReview(ctx context.Context, in ReviewParams) (bool, error)
	List(ctx context.Context, f ListFilter) ([]PendingPayment, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const pendingColumns = `
	id, checkout_request_id, merchant_request_id, phone_number, amount, order_draft, status,
	result_code, result_desc, mpesa_receipt, order_id, review_reason, callback_payload,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPending(row rowScanner) (*PendingPayment, error) {
	var (
		p          PendingPayment
		resultCode sql.NullInt64
		resultDesc sql.NullString
		receipt    sql.NullString
		orderID    uuid.NullUUID
		reason     sql.NullString
		draft      []byte
		payload    []byte
	)
	err := row.Scan(
		&p.ID, &p.CheckoutRequestID, &p.MerchantRequestID, &p.PhoneNumber, &p.Amount, &draft, &p.Status,
		&resultCode, &resultDesc, &receipt, &orderID, &reason, &payload,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.OrderDraft = draft
	p.CallbackPayload = payload
	if resultCode.Valid {
		c := int(resultCode.Int64)
		p.ResultCode = &c
	}
	if resultDesc.Valid {
		p.ResultDesc = &resultDesc.String
	}
	if receipt.Valid {
		p.MpesaReceipt = &receipt.String
	}
	if orderID.Valid {
		p.OrderID = &orderID.UUID
	}
	if reason.Valid {
		p.ReviewReason = &reason.String
	}
	return &p, nil
}

func jsonParam(b []byte) *string {
	return utils.NullIfEmpty(string(b))
}

func (r *repository) Create(ctx context.Context, p *PendingPayment) error {
	const q = `
	INSERT INTO pending_payments (
		checkout_request_id, merchant_request_id, phone_number, amount, order_draft, status
	)
	VALUES ($1, $2, $3, $4, $5::jsonb, $6)
	RETURNING id, created_at, updated_at
	`

	if p.Status == "" {
		p.Status = StatusPending
	}

	return r.db.QueryRowContext(ctx, q,
		p.CheckoutRequestID,
		p.MerchantRequestID,
		p.PhoneNumber,
		p.Amount,
		string(p.OrderDraft),
		p.Status,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *repository) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*PendingPayment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+pendingColumns+` FROM pending_payments WHERE checkout_request_id = $1`,
		checkoutRequestID,
	)

	p, err := scanPending(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	return p, err
}

func (r *repository) Settle(ctx context.Context, in SettleParams, materialize MaterializeFunc) (*PendingPayment, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin settle: %w", err)
	}
	defer tx.Rollback()

	// 1. Lock the row; concurrent deliveries of the same callback queue here.
	p, err := scanPending(tx.QueryRowContext(ctx,
		`SELECT `+pendingColumns+` FROM pending_payments WHERE checkout_request_id = $1 FOR UPDATE`,
		in.CheckoutRequestID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock pending payment: %w", err)
	}
	if !p.Status.CanTransition(StatusCompleted) {
		return nil, ErrNotPending
	}

	// 2. Order + items
	orderID, err := materialize(ctx, tx, p)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMaterializationFailure, err)
	}

	// 3. Flip to completed
	res, err := tx.ExecContext(ctx, `
		UPDATE pending_payments
		SET status = $1,
		    result_code = 0,
		    result_desc = $2,
		    mpesa_receipt = $3,
		    order_id = $4,
		    review_reason = NULL,
		    callback_payload = COALESCE($5::jsonb, callback_payload),
		    updated_at = NOW()
		WHERE id = $6 AND status = $7
	`, StatusCompleted, in.ResultDesc, in.Receipt, orderID, jsonParam(in.Payload), p.ID, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("complete pending payment: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		return nil, ErrNotPending
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit settle: %w", err)
	}

	zero := 0
	p.Status = StatusCompleted
	p.ResultCode = &zero
	p.ResultDesc = &in.ResultDesc
	p.MpesaReceipt = &in.Receipt
	p.OrderID = &orderID
	p.ReviewReason = nil
	return p, nil
}

func (r *repository) MarkFailed(ctx context.Context, checkoutRequestID string, resultCode int, resultDesc string, payload []byte) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pending_payments
		SET status = $1,
		    result_code = $2,
		    result_desc = $3,
		    callback_payload = COALESCE($4::jsonb, callback_payload),
		    updated_at = NOW()
		WHERE checkout_request_id = $5 AND status = $6
	`, StatusFailed, resultCode, resultDesc, jsonParam(payload), checkoutRequestID, StatusPending)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *repository) MarkForReview(ctx context.Context, in ReviewParams) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pending_payments
		SET mpesa_receipt = COALESCE($1, mpesa_receipt),
		    result_code = $2,
		    result_desc = $3,
		    review_reason = $4,
		    callback_payload = COALESCE($5::jsonb, callback_payload),
		    updated_at = NOW()
		WHERE checkout_request_id = $6 AND status = $7
	`, utils.NullIfEmpty(in.Receipt), in.ResultCode, in.ResultDesc, in.Reason, jsonParam(in.Payload), in.CheckoutRequestID, StatusPending)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	return n == 1, err
}

const defaultListLimit = 50

func (r *repository) List(ctx context.Context, f ListFilter) ([]PendingPayment, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Status != nil {
		args = append(args, *f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.NeedsReview {
		args = append(args, StatusPending)
		where = append(where, fmt.Sprintf("status = $%d AND review_reason IS NOT NULL", len(args)))
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = defaultListLimit
	}
	args = append(args, limit)

	q := `SELECT ` + pendingColumns + ` FROM pending_payments`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingPayment
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
