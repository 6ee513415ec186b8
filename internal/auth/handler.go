package auth

import (
	"errors"
	"net/http"
	"time"

	"plantstore-be/internal/logger"
	"plantstore-be/internal/utils"

	"go.uber.org/zap"
)

type Handler struct {
	authn   *Authenticator
	session SessionCookie
}

func NewHandler(authn *Authenticator, session SessionCookie) *Handler {
	return &Handler{authn: authn, session: session}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Login handles POST /admin/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	token, expiresAt, err := h.authn.Login(req.Email, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		logger.FromCtx(r.Context()).Warn("admin login rejected", zap.String("email", req.Email))
		utils.WriteJSONError(w, err.Error(), http.StatusUnauthorized)
		return
	}
	if err != nil {
		logger.FromCtx(r.Context()).Error("admin token issue failed", zap.Error(err))
		utils.WriteJSONError(w, "could not sign in", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, h.session.Issue(token, expiresAt))
	utils.WriteJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}
