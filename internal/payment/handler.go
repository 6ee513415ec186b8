package payment

import (
	"errors"
	"net/http"
	"strconv"

	"plantstore-be/internal/logger"
	"plantstore-be/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	msgInvalidRequest     = "Invalid payment request, check your details and try again"
	msgGatewayUnavailable = "Payment service unavailable, check your phone and try again"
	msgPersistenceFailure = "Could not record your payment, please contact support"
)

type Handler struct {
	svc        Service
	reconciler CallbackReconciler
}

func NewHandler(svc Service, reconciler CallbackReconciler) *Handler {
	return &Handler{svc: svc, reconciler: reconciler}
}

type initiateResponse struct {
	Success           bool   `json:"success"`
	CheckoutRequestID string `json:"checkoutRequestId"`
	Message           string `json:"message"`
}

// Initiate handles POST /payments/initiate.
func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req InitiateRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteJSONError(w, msgInvalidRequest, http.StatusBadRequest)
		return
	}

	checkoutID, err := h.svc.Initiate(r.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidRequest):
		utils.WriteJSONError(w, msgInvalidRequest, http.StatusBadRequest)
		return
	case errors.Is(err, ErrGatewayUnavailable):
		utils.WriteJSONError(w, msgGatewayUnavailable, http.StatusBadGateway)
		return
	default:
		utils.WriteJSONError(w, msgPersistenceFailure, http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, initiateResponse{
		Success:           true,
		CheckoutRequestID: checkoutID,
		Message:           "Payment request sent. Check your phone to complete the payment.",
	})
}

type statusResponse struct {
	CheckoutRequestID string     `json:"checkoutRequestId"`
	Status            Status     `json:"status"`
	OrderID           *uuid.UUID `json:"orderId,omitempty"`
	Receipt           *string    `json:"receipt,omitempty"`
	ResultDesc        *string    `json:"resultDesc,omitempty"`
}

// GetStatus handles GET /payments/{checkoutRequestId}.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetPayment(r.Context(), chi.URLParam(r, "checkoutRequestId"))
	switch {
	case err == nil:
	case errors.Is(err, ErrPaymentNotFound):
		utils.WriteJSONError(w, "payment not found", http.StatusNotFound)
		return
	case errors.Is(err, ErrInvalidRequest):
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	default:
		logger.FromCtx(r.Context()).Error("get payment failed", zap.Error(err))
		utils.WriteJSONError(w, "could not load payment", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, statusResponse{
		CheckoutRequestID: p.CheckoutRequestID,
		Status:            p.Status,
		OrderID:           p.OrderID,
		Receipt:           p.MpesaReceipt,
		ResultDesc:        p.ResultDesc,
	})
}

type adminPayment struct {
	CheckoutRequestID string     `json:"checkoutRequestId"`
	MerchantRequestID string     `json:"merchantRequestId"`
	PhoneNumber       string     `json:"phoneNumber"`
	Amount            float64    `json:"amount"`
	Status            Status     `json:"status"`
	ResultCode        *int       `json:"resultCode,omitempty"`
	ResultDesc        *string    `json:"resultDesc,omitempty"`
	Receipt           *string    `json:"receipt,omitempty"`
	OrderID           *uuid.UUID `json:"orderId,omitempty"`
	ReviewReason      *string    `json:"reviewReason,omitempty"`
	CreatedAt         string     `json:"createdAt"`
	UpdatedAt         string     `json:"updatedAt"`
}

func toAdminPayment(p PendingPayment) adminPayment {
	return adminPayment{
		CheckoutRequestID: p.CheckoutRequestID,
		MerchantRequestID: p.MerchantRequestID,
		PhoneNumber:       p.PhoneNumber,
		Amount:            p.Amount,
		Status:            p.Status,
		ResultCode:        p.ResultCode,
		ResultDesc:        p.ResultDesc,
		Receipt:           p.MpesaReceipt,
		OrderID:           p.OrderID,
		ReviewReason:      p.ReviewReason,
		CreatedAt:         p.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		UpdatedAt:         p.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// ListPayments handles GET /admin/payments?status=&review=true&limit=.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var f ListFilter
	if s := q.Get("status"); s != "" {
		st, err := ParseStatus(s)
		if err != nil {
			utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.Status = &st
	}
	f.NeedsReview = q.Get("review") == "true"
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			utils.WriteJSONError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		f.Limit = n
	}

	list, err := h.svc.ListPayments(r.Context(), f)
	if err != nil {
		logger.FromCtx(r.Context()).Error("list payments failed", zap.Error(err))
		utils.WriteJSONError(w, "could not list payments", http.StatusInternalServerError)
		return
	}

	out := make([]adminPayment, 0, len(list))
	for _, p := range list {
		out = append(out, toAdminPayment(p))
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"payments": out})
}

// RetryPayment handles POST /admin/payments/{checkoutRequestId}/retry.
func (h *Handler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "checkoutRequestId")

	outcome, err := h.reconciler.Retry(r.Context(), id)
	switch {
	case err == nil:
	case errors.Is(err, ErrPaymentNotFound):
		utils.WriteJSONError(w, "payment not found", http.StatusNotFound)
		return
	case errors.Is(err, ErrNotPending), errors.Is(err, ErrNotRetryable):
		utils.WriteJSONError(w, err.Error(), http.StatusConflict)
		return
	default:
		logger.FromCtx(r.Context()).Error("retry failed", zap.String("checkout_request_id", id), zap.Error(err))
		utils.WriteJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"outcome": outcome,
			"error":   err.Error(),
		})
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"outcome": outcome})
}
