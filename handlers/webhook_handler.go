package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/aj9599/raas-platform/services"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// WebhookHandler is the push counterpart of the MQTT energy feed, for
// distributor integrations that can only call HTTP.
type WebhookHandler struct {
	energy *services.EnergyService
	secret string
	logger *zap.Logger
}

func NewWebhookHandler(energy *services.EnergyService, secret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{energy: energy, secret: secret, logger: logger}
}

// ReceiveEnergyRecord handles POST /webhook/energy/{tenant} with an
// EnergyMessage body. The shared secret travels in X-Webhook-Secret.
// A period that is already stored is acknowledged with 200 so senders can
// retry safely.
func (h *WebhookHandler) ReceiveEnergyRecord(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" {
		http.Error(w, "Webhook disabled", http.StatusNotFound)
		return
	}
	given := r.Header.Get("X-Webhook-Secret")
	if subtle.ConstantTimeCompare([]byte(given), []byte(h.secret)) != 1 {
		h.logger.Warn("[WEBHOOK] Rejected request with bad secret", zap.String("remote", getClientIP(r)))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	tenant := mux.Vars(r)["tenant"]
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	var msg services.EnergyMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if msg.InstallationCode == "" {
		http.Error(w, "installation_code is required", http.StatusBadRequest)
		return
	}
	msg.Source = "webhook"

	rec, err := h.energy.AddRecordByCode(r.Context(), tenant, msg.InstallationCode, msg.EnergyRecordInput)
	if errors.Is(err, services.ErrDuplicatePeriod) {
		h.logger.Info("[WEBHOOK] Period already stored",
			zap.String("tenant", tenant),
			zap.String("installation", msg.InstallationCode),
			zap.String("period", msg.Period))
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("[WEBHOOK] Energy record stored",
		zap.String("tenant", tenant),
		zap.String("installation", msg.InstallationCode),
		zap.String("period", rec.Period))
	writeJSON(w, http.StatusCreated, rec)
}
