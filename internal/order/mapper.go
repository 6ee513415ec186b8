package order

import (
	"time"

	"plantstore-be/internal/utils"

	"github.com/google/uuid"
)

// FromDraft builds an unsaved Order with fresh ids. The total is recomputed from the
// items so the stored order always satisfies total == sum(quantity x price).
func FromDraft(d *Draft, method PaymentMethod, status OrderStatus, receipt *string) *Order {
	o := &Order{
		ID:             uuid.New(),
		OrderNumber:    utils.NewOrderNumber(),
		CustomerName:   d.Customer.Name,
		CustomerEmail:  d.Customer.Email,
		CustomerPhone:  d.Customer.Phone,
		DeliveryMethod: d.DeliveryMethod,
		Status:         status,
		PaymentMethod:  method,
		MpesaReceipt:   receipt,
		CreatedAt:      time.Now().UTC(),
	}

	switch d.DeliveryMethod {
	case DeliveryMethodDelivery:
		if d.Shipping != nil {
			o.ShippingAddress = d.Shipping.Address
			o.ShippingCity = d.Shipping.City
			o.ShippingState = d.Shipping.State
			o.ShippingZip = d.Shipping.Zip
		}
	case DeliveryMethodPickup:
		o.PickupLocation = d.PickupLocation
	}

	o.Items = make([]OrderItem, 0, len(d.Items))
	for _, it := range d.Items {
		o.Items = append(o.Items, OrderItem{
			ID:          uuid.New(),
			OrderID:     o.ID,
			ProductID:   it.ProductID,
			ProductName: it.Name,
			Quantity:    it.Quantity,
			Price:       it.Price,
		})
	}
	o.TotalAmount = ItemsTotal(o.Items)

	return o
}
