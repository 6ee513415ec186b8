package order

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPaid      OrderStatus = "paid"
	StatusCancelled OrderStatus = "cancelled"
)

type DeliveryMethod string

const (
	DeliveryMethodDelivery DeliveryMethod = "delivery"
	DeliveryMethodPickup   DeliveryMethod = "pickup"
)

type PaymentMethod string

const (
	PaymentMethodMpesa          PaymentMethod = "mpesa"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentMethodPayOnPickup    PaymentMethod = "pay_on_pickup"
)

type Order struct {
	ID             uuid.UUID      `json:"id"`
	OrderNumber    string         `json:"orderNumber"`
	CustomerName   string         `json:"customerName"`
	CustomerEmail  string         `json:"customerEmail"`
	CustomerPhone  string         `json:"customerPhone,omitempty"`
	DeliveryMethod DeliveryMethod `json:"deliveryMethod"`

	// Set only for DeliveryMethodDelivery.
	ShippingAddress string `json:"shippingAddress,omitempty"`
	ShippingCity    string `json:"shippingCity,omitempty"`
	ShippingState   string `json:"shippingState,omitempty"`
	ShippingZip     string `json:"shippingZip,omitempty"`

	// Set only for DeliveryMethodPickup.
	PickupLocation string `json:"pickupLocation,omitempty"`

	TotalAmount   float64       `json:"totalAmount"`
	Status        OrderStatus   `json:"status"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	MpesaReceipt  *string       `json:"mpesaReceipt,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`

	Items []OrderItem `json:"items,omitempty"`
}

// OrderItem is a purchase-time snapshot; name and price never follow later catalog edits.
type OrderItem struct {
	ID          uuid.UUID `json:"id"`
	OrderID     uuid.UUID `json:"orderId"`
	ProductID   string    `json:"productId"`
	ProductName string    `json:"productName"`
	Quantity    int       `json:"quantity"`
	Price       float64   `json:"price"`
}

func (i OrderItem) Subtotal() float64 {
	return roundCents(float64(i.Quantity) * i.Price)
}

// ItemsTotal sums quantity x price over items.
func ItemsTotal(items []OrderItem) float64 {
	var total float64
	for _, it := range items {
		total += it.Subtotal()
	}
	return roundCents(total)
}
