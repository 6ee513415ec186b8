package payment

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"plantstore-be/internal/order"

	"github.com/google/uuid"
)

// Status is the lifecycle of one STK push attempt. pending is the only
// non-terminal state; a row leaves it exactly once.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusCompleted, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown payment status %q", ErrInvalidRequest, s)
}

func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed:
		return true
	case StatusPending:
		return false
	}
	return false
}

func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusCompleted || to == StatusFailed
	case StatusCompleted, StatusFailed:
		return false
	}
	return false
}

type PendingPayment struct {
	ID                int64
	CheckoutRequestID string
	MerchantRequestID string
	PhoneNumber       string
	Amount            float64
	OrderDraft        json.RawMessage
	Status            Status
	ResultCode        *int
	ResultDesc        *string
	MpesaReceipt      *string
	OrderID           *uuid.UUID
	ReviewReason      *string
	CallbackPayload   json.RawMessage
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Draft decodes the stored checkout payload.
func (p *PendingPayment) Draft() (*order.Draft, error) {
	if len(p.OrderDraft) == 0 {
		return nil, fmt.Errorf("%w: pending payment %s has no stored draft", order.ErrInvalidDraft, p.CheckoutRequestID)
	}
	var d order.Draft
	if err := json.Unmarshal(p.OrderDraft, &d); err != nil {
		return nil, fmt.Errorf("%w: decode stored draft: %v", order.ErrInvalidDraft, err)
	}
	return &d, nil
}

// NeedsReview is true for a payment the gateway confirmed but that has no order yet.
func (p *PendingPayment) NeedsReview() bool {
	return p.Status == StatusPending && p.ReviewReason != nil
}

// WholeShillings returns amount as the integer charged by an STK push. ok is
// false for fractional amounts and anything below one shilling.
func WholeShillings(amount float64) (shillings int64, ok bool) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, false
	}
	rounded := math.Round(amount)
	if rounded < 1 || math.Abs(amount-rounded) >= 0.005 {
		return 0, false
	}
	return int64(rounded), true
}

// ListFilter narrows admin listings. Zero value lists everything, newest first.
type ListFilter struct {
	Status      *Status
	NeedsReview bool
	Limit       int
}

type InitiateRequest struct {
	PhoneNumber string       `json:"phoneNumber"`
	Amount      float64      `json:"amount"`
	OrderData   *order.Draft `json:"orderData"`
}

// STKCallbackEnvelope is the body Daraja posts to the callback URL.
type STKCallbackEnvelope struct {
	Body struct {
		STKCallback STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

type STKCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        int               `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

type CallbackMetadata struct {
	Item []CallbackItem `json:"Item"`
}

type CallbackItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value,omitempty"`
}

// Metadata returns the named metadata value as text. Numbers are rendered without exponent.
func (c *STKCallback) Metadata(name string) string {
	if c.CallbackMetadata == nil {
		return ""
	}
	for _, it := range c.CallbackMetadata.Item {
		if it.Name != name {
			continue
		}
		switch v := it.Value.(type) {
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case nil:
			return ""
		default:
			return fmt.Sprint(v)
		}
	}
	return ""
}

func (c *STKCallback) Receipt() string {
	return c.Metadata("MpesaReceiptNumber")
}

// PaidAmount is the Amount metadata item. ok is false when it is missing or not a number.
func (c *STKCallback) PaidAmount() (float64, bool) {
	raw := c.Metadata("Amount")
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (c *STKCallback) Succeeded() bool {
	return c.ResultCode == 0
}

// Outcome is what reconciling one callback did.
type Outcome string

const (
	OutcomeCompleted   Outcome = "completed"
	OutcomeFailed      Outcome = "failed"
	OutcomeIgnored     Outcome = "ignored"
	OutcomeNeedsReview Outcome = "needs_review"
)
