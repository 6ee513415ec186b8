package contact

import (
	"errors"
	"net/http"

	"plantstore-be/internal/logger"
	"plantstore-be/internal/utils"

	"go.uber.org/zap"
)

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Submit handles POST /contact.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req Message
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	err := h.svc.Submit(r.Context(), req)
	switch {
	case err == nil:
		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "Thanks for reaching out, we will get back to you soon",
		})
	case errors.Is(err, ErrInvalidMessage):
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
	default:
		logger.FromCtx(r.Context()).Error("contact submit failed", zap.Error(err))
		utils.WriteJSONError(w, "could not send your message, please try again later", http.StatusServiceUnavailable)
	}
}
