package order

import (
	"fmt"
	"math"
	"net/mail"
	"strings"
)

// Draft is the checkout payload captured before payment. It is stored verbatim on the
// pending payment and turned into an Order once the payment settles.
type Draft struct {
	Items          []DraftItem      `json:"items"`
	Customer       Customer         `json:"customer"`
	DeliveryMethod DeliveryMethod   `json:"deliveryMethod"`
	Shipping       *ShippingDetails `json:"shipping,omitempty"`
	PickupLocation string           `json:"pickupLocation,omitempty"`
	Total          float64          `json:"total"`
}

type DraftItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type ShippingDetails struct {
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
}

// Validate reports the first structural problem with the draft, wrapped in ErrInvalidDraft.
func (d *Draft) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: missing order data", ErrInvalidDraft)
	}
	if len(d.Items) == 0 {
		return fmt.Errorf("%w: no items", ErrInvalidDraft)
	}
	for i, it := range d.Items {
		if strings.TrimSpace(it.ProductID) == "" || strings.TrimSpace(it.Name) == "" {
			return fmt.Errorf("%w: item %d is missing product id or name", ErrInvalidDraft, i)
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: item %d quantity must be positive", ErrInvalidDraft, i)
		}
		if it.Price < 0 {
			return fmt.Errorf("%w: item %d price must not be negative", ErrInvalidDraft, i)
		}
	}

	if strings.TrimSpace(d.Customer.Name) == "" {
		return fmt.Errorf("%w: customer name is required", ErrInvalidDraft)
	}
	if _, err := mail.ParseAddress(d.Customer.Email); err != nil {
		return fmt.Errorf("%w: customer email is invalid", ErrInvalidDraft)
	}

	switch d.DeliveryMethod {
	case DeliveryMethodDelivery:
		s := d.Shipping
		if s == nil || blank(s.Address) || blank(s.City) || blank(s.State) || blank(s.Zip) {
			return fmt.Errorf("%w: delivery requires address, city, state and zip", ErrInvalidDraft)
		}
	case DeliveryMethodPickup:
		if blank(d.PickupLocation) {
			return fmt.Errorf("%w: pickup requires a pickup location", ErrInvalidDraft)
		}
	default:
		return fmt.Errorf("%w: unknown delivery method %q", ErrInvalidDraft, d.DeliveryMethod)
	}

	return nil
}

// ItemsTotal is the authoritative draft total; the client-sent Total is informational.
func (d *Draft) ItemsTotal() float64 {
	var total float64
	for _, it := range d.Items {
		total += roundCents(float64(it.Quantity) * it.Price)
	}
	return roundCents(total)
}

// AmountMatches reports whether amount equals the items total to the cent.
func (d *Draft) AmountMatches(amount float64) bool {
	return math.Abs(roundCents(amount)-d.ItemsTotal()) < 0.005
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
