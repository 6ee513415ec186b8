package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"plantstore-be/internal/logger"
	"plantstore-be/internal/payment"
	"plantstore-be/internal/utils"

	"go.uber.org/zap"
)

const (
	maxCallbackBytes = 64 << 10
	settleTimeout    = 30 * time.Second

	// TokenParam is the callback URL query parameter carrying the shared token.
	TokenParam = "token"
)

// Ack is the only response Daraja ever gets, whatever happened internally.
var Ack = map[string]interface{}{"ResultCode": 0, "ResultDesc": "Accepted"}

type Handler struct {
	reconciler payment.CallbackReconciler
	token      string
	timeout    time.Duration
}

// NewWebhookHandler builds the callback handler. When token is set, only
// requests carrying it in the TokenParam query parameter are reconciled.
func NewWebhookHandler(reconciler payment.CallbackReconciler, token string) *Handler {
	if token == "" {
		logger.L().Warn("mpesa callback token is empty, callbacks are not authenticated")
	}
	return &Handler{reconciler: reconciler, token: token, timeout: settleTimeout}
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.token == "" {
		return true
	}
	got := r.URL.Query().Get(TokenParam)
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1
}

// Callback handles POST /payments/callback.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	defer utils.WriteJSON(w, http.StatusOK, Ack)

	log := logger.FromCtx(r.Context()).With(zap.String("layer", "webhook"))

	if !h.authorized(r) {
		log.Warn("callback rejected: bad or missing token", zap.String("remote_addr", r.RemoteAddr))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBytes))
	if err != nil {
		log.Error("failed to read callback body", zap.Error(err))
		return
	}

	var env payment.STKCallbackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		log.Error("invalid callback payload", zap.ByteString("body", body), zap.Error(err))
		return
	}
	cb := env.Body.STKCallback

	// Settlement must not be cut short by the gateway closing its connection.
	ctx, cancel := context.WithTimeout(logger.Detach(r.Context()), h.timeout)
	defer cancel()

	outcome, err := h.reconciler.HandleCallback(ctx, &cb, body)
	if err != nil {
		log.Error("callback processing failed",
			zap.String("checkout_request_id", cb.CheckoutRequestID),
			zap.String("outcome", string(outcome)),
			zap.Error(err),
		)
		return
	}

	log.Info("callback processed",
		zap.String("checkout_request_id", cb.CheckoutRequestID),
		zap.String("outcome", string(outcome)),
	)
}
