package order

import (
	"errors"
	"net/http"

	"plantstore-be/internal/logger"
	"plantstore-be/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

type placeOrderRequest struct {
	OrderData     *Draft        `json:"orderData"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
}

type placeOrderResponse struct {
	Success     bool      `json:"success"`
	OrderID     uuid.UUID `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	Message     string    `json:"message"`
}

// PlaceOrder handles POST /orders.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	o, err := h.svc.PlaceOrder(r.Context(), req.OrderData, req.PaymentMethod)
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidDraft), errors.Is(err, ErrInvalidMethod):
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	default:
		logger.FromCtx(r.Context()).Error("place order failed", zap.Error(err))
		utils.WriteJSONError(w, "could not place order, please try again", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, placeOrderResponse{
		Success:     true,
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Message:     "Order placed successfully",
	})
}

// GetOrder handles GET /admin/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteJSONError(w, "invalid order id", http.StatusBadRequest)
		return
	}

	o, err := h.svc.GetOrder(r.Context(), id)
	if errors.Is(err, ErrOrderNotFound) {
		utils.WriteJSONError(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		logger.FromCtx(r.Context()).Error("get order failed", zap.String("order_id", id.String()), zap.Error(err))
		utils.WriteJSONError(w, "could not load order", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, o)
}
