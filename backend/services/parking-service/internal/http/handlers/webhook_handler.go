package handlers

import (
	"io"
	"net/http"

	"go.uber.org/zap"

	"parkingops/backend/services/parking-service/internal/service"
)

// SignatureHeader optionally carries the gateway signature outside the body.
const SignatureHeader = "X-Signature"

// WebhookHandler receives payment gateway callbacks.
type WebhookHandler struct {
	processor *service.WebhookProcessor
	logger    *zap.Logger
}

// NewWebhookHandler builds handler.
func NewWebhookHandler(processor *service.WebhookProcessor, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{processor: processor, logger: logger}
}

// Handle handles POST /payments/webhook. Applied callbacks, duplicates included, answer
// 200 so the gateway stops retrying; store failures answer 500 so it retries.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	result, err := h.processor.Handle(r.Context(), raw, r.Header.Get(SignatureHeader))
	if err != nil {
		h.logger.Error("payment webhook failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "webhook processing failed")
		return
	}

	switch {
	case result.Outcome == service.WebhookApplied:
		writeJSON(w, http.StatusOK, result)
	case result.Reason == service.ReasonBadSignature:
		writeJSON(w, http.StatusUnauthorized, result)
	default:
		writeJSON(w, http.StatusBadRequest, result)
	}
}
