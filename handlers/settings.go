package handlers

import (
	"database/sql"
	"net/http"

	"github.com/aj9599/raas-platform/models"
	"github.com/aj9599/raas-platform/services"
	"go.uber.org/zap"
)

// SettingsHandler manages the tenant's messaging settings. Secrets are
// returned masked.
type SettingsHandler struct {
	settings *services.SettingsStore
	delivery *services.DeliveryService
	logger   *zap.Logger
	audit    auditLog
}

func NewSettingsHandler(db *sql.DB, settings *services.SettingsStore, delivery *services.DeliveryService, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{settings: settings, delivery: delivery, logger: logger, audit: auditLog{db, logger}}
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.settings.Masked(r.Context(), identity(r).TenantID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req models.MessagingSettings
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	tenantID := identity(r).TenantID
	if err := h.settings.Save(r.Context(), tenantID, req); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.audit.logToDatabase(r, "Messaging Settings Updated", req.SMTPHost)

	m, err := h.settings.Masked(r.Context(), tenantID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *SettingsHandler) TestEmail(w http.ResponseWriter, r *http.Request) {
	var req SendEmailRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.To == "" {
		req.To = identity(r).Email
	}
	if err := h.delivery.SendTestEmail(r.Context(), identity(r).TenantID, req.To); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, DeliveryResponse{Status: "sent", Channel: services.ChannelEmail, MessageID: req.To})
}
