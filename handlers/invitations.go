package handlers

import (
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aj9599/raas-platform/middleware"
	"github.com/aj9599/raas-platform/models"
	"github.com/aj9599/raas-platform/services"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type InvitationHandler struct {
	invitations   *services.InvitationService
	notifications *services.NotificationService
	publicURL     string
	logger        *zap.Logger
	audit         auditLog
}

func NewInvitationHandler(db *sql.DB, invitations *services.InvitationService, notifications *services.NotificationService, publicURL string, logger *zap.Logger) *InvitationHandler {
	return &InvitationHandler{
		invitations:   invitations,
		notifications: notifications,
		publicURL:     strings.TrimRight(publicURL, "/"),
		logger:        logger,
		audit:         auditLog{db, logger},
	}
}

// InvitationResponse carries the accept link; the token itself is never
// listed.
type InvitationResponse struct {
	*models.Invitation
	AcceptURL string `json:"accept_url"`
}

type InvitationLookup struct {
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *InvitationHandler) acceptURL(inv *models.Invitation) string {
	return fmt.Sprintf("%s/invite/%s", h.publicURL, inv.Token)
}

func (h *InvitationHandler) List(w http.ResponseWriter, r *http.Request) {
	params, err := listParams(r)
	if err != nil {
		http.Error(w, "Invalid query", http.StatusBadRequest)
		return
	}
	list, err := h.invitations.List(r.Context(), identity(r).TenantID, params)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *InvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller := identity(r)

	var req services.InvitationInput
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if role, ok := middleware.NormalizeRole(req.Role); ok && !middleware.CanGrant(caller.Role, role) {
		http.Error(w, "You cannot invite with this role", http.StatusForbidden)
		return
	}

	inv, err := h.invitations.Create(r.Context(), caller.TenantID, caller.AccountID, req)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.audit.logToDatabase(r, "Invitation Created", fmt.Sprintf("%s (%s)", inv.Email, inv.Role))
	writeJSON(w, http.StatusCreated, InvitationResponse{Invitation: inv, AcceptURL: h.acceptURL(inv)})
}

func (h *InvitationHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	inv, err := h.invitations.Revoke(r.Context(), identity(r).TenantID, id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.audit.logToDatabase(r, "Invitation Revoked", inv.Email)
	writeJSON(w, http.StatusOK, inv)
}

func (h *InvitationHandler) Resend(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	inv, err := h.invitations.Resend(r.Context(), identity(r).TenantID, id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.audit.logToDatabase(r, "Invitation Resent", inv.Email)
	writeJSON(w, http.StatusOK, InvitationResponse{Invitation: inv, AcceptURL: h.acceptURL(inv)})
}

func (h *InvitationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	if err := h.invitations.Delete(r.Context(), identity(r).TenantID, id); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.audit.logToDatabase(r, "Invitation Deleted", fmt.Sprintf("ID %d", id))
	w.WriteHeader(http.StatusNoContent)
}

// Lookup is public: the accept page shows who was invited.
func (h *InvitationHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	inv, err := h.invitations.Lookup(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, InvitationLookup{Email: inv.Email, Role: inv.Role, ExpiresAt: inv.ExpiresAt})
}

// Accept is public. The inviter is told once the account exists.
func (h *InvitationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	var req services.AcceptInput
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	inv, err := h.invitations.Lookup(r.Context(), req.Token)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	account, err := h.invitations.Accept(r.Context(), req)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	if inv.InvitedBy != nil && h.notifications != nil {
		if _, err := h.notifications.Notify(r.Context(), inv.TenantID, *inv.InvitedBy, services.NotifyInvitation,
			"Invitation accepted", account.Email, "/users"); err != nil {
			h.logger.Warn("[INVITE] Could not notify inviter", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusCreated, account)
}
