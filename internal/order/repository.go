package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"plantstore-be/internal/utils"

	"github.com/google/uuid"
)

type Repository interface {
	// Create inserts the order and its items in one transaction.
	Create(ctx context.Context, o *Order) error
	// CreateTx inserts the order and its items inside a caller-owned transaction.
	CreateTx(ctx context.Context, tx *sql.Tx, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const insertOrderQuery = `
	INSERT INTO orders (
		id, order_number, customer_name, customer_email, customer_phone,
		delivery_method, shipping_address, shipping_city, shipping_state, shipping_zip,
		pickup_location, total_amount, status, payment_method, mpesa_receipt, created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
`

const insertOrderItemQuery = `
	INSERT INTO order_items (
		id, order_id, product_id, product_name, quantity, price
	) VALUES ($1,$2,$3,$4,$5,$6)
`

func (r *repository) Create(ctx context.Context, o *Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := r.CreateTx(ctx, tx, o); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *repository) CreateTx(ctx context.Context, tx *sql.Tx, o *Order) error {
	if len(o.Items) == 0 {
		return fmt.Errorf("%w: order %s has no items", ErrInvalidDraft, o.ID)
	}

	// 1. Insert order
	_, err := tx.ExecContext(ctx, insertOrderQuery,
		o.ID,
		o.OrderNumber,
		o.CustomerName,
		o.CustomerEmail,
		utils.NullIfEmpty(o.CustomerPhone),
		o.DeliveryMethod,
		utils.NullIfEmpty(o.ShippingAddress),
		utils.NullIfEmpty(o.ShippingCity),
		utils.NullIfEmpty(o.ShippingState),
		utils.NullIfEmpty(o.ShippingZip),
		utils.NullIfEmpty(o.PickupLocation),
		o.TotalAmount,
		o.Status,
		o.PaymentMethod,
		o.MpesaReceipt,
		o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	// 2. Insert order items
	for _, item := range o.Items {
		_, err = tx.ExecContext(ctx, insertOrderItemQuery,
			item.ID,
			o.ID,
			item.ProductID,
			item.ProductName,
			item.Quantity,
			item.Price,
		)
		if err != nil {
			return fmt.Errorf("insert order item %s: %w", item.ProductID, err)
		}
	}

	return nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	query := `
		SELECT id, order_number, customer_name, customer_email, customer_phone,
		       delivery_method, shipping_address, shipping_city, shipping_state, shipping_zip,
		       pickup_location, total_amount, status, payment_method, mpesa_receipt, created_at
		FROM orders
		WHERE id = $1
	`

	var (
		o                                   Order
		phone, addr, city, state, zip, pick sql.NullString
		receipt                             sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&o.ID, &o.OrderNumber, &o.CustomerName, &o.CustomerEmail, &phone,
		&o.DeliveryMethod, &addr, &city, &state, &zip,
		&pick, &o.TotalAmount, &o.Status, &o.PaymentMethod, &receipt, &o.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	o.CustomerPhone = phone.String
	o.ShippingAddress = addr.String
	o.ShippingCity = city.String
	o.ShippingState = state.String
	o.ShippingZip = zip.String
	o.PickupLocation = pick.String
	if receipt.Valid {
		o.MpesaReceipt = &receipt.String
	}

	return &o, nil
}

func (r *repository) GetItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, price
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.Price); err != nil {
			return nil, err
		}
		items = append(items, it)
	}

	return items, rows.Err()
}
