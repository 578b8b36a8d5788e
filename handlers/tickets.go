package handlers

import (
	"database/sql"
	"fmt"
	"net/http"

	"github.com/aj9599/raas-platform/services"
	"go.uber.org/zap"
)

type TicketHandler struct {
	tickets *services.TicketService
	logger  *zap.Logger
	audit   auditLog
}

func NewTicketHandler(db *sql.DB, tickets *services.TicketService, logger *zap.Logger) *TicketHandler {
	return &TicketHandler{tickets: tickets, logger: logger, audit: auditLog{db, logger}}
}

type MessageRequest struct {
	Body     string `json:"body"`
	Internal bool   `json:"internal"`
}

type AssignRequest struct {
	AssignedTo *int `json:"assigned_to"`
}

func author(r *http.Request) services.Author {
	id := identity(r)
	return services.Author{AccountID: id.AccountID, CustomerID: id.CustomerID, Staff: isStaff(id)}
}

func (h *TicketHandler) List(w http.ResponseWriter, r *http.Request) {
	params, err := listParams(r)
	if err != nil {
		http.Error(w, "Invalid query", http.StatusBadRequest)
		return
	}
	page, err := h.tickets.List(r.Context(), identity(r).TenantID, author(r), params)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *TicketHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	t, err := h.tickets.Get(r.Context(), identity(r).TenantID, id, author(r))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TicketHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.TicketInput
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	t, err := h.tickets.Create(r.Context(), identity(r).TenantID, author(r), req)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.audit.logToDatabase(r, "Ticket Created", fmt.Sprintf("%s: %s", t.Number, t.Subject))
	writeJSON(w, http.StatusCreated, t)
}

// AddMessage appends a reply. Only staff can post internal notes.
func (h *TicketHandler) AddMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	var req MessageRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	a := author(r)
	if req.Internal && !a.Staff {
		http.Error(w, "Only staff can add internal notes", http.StatusForbidden)
		return
	}

	t, err := h.tickets.AddMessage(r.Context(), identity(r).TenantID, id, a, req.Body, req.Internal)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *TicketHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	var req StatusRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	t, err := h.tickets.UpdateStatus(r.Context(), identity(r).TenantID, id, author(r), req.Status)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.audit.logToDatabase(r, "Ticket Status Updated", fmt.Sprintf("%s -> %s", t.Number, t.Status))
	writeJSON(w, http.StatusOK, t)
}

func (h *TicketHandler) Assign(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	var req AssignRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	t, err := h.tickets.Assign(r.Context(), identity(r).TenantID, id, author(r), req.AssignedTo)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.audit.logToDatabase(r, "Ticket Assigned", t.Number)
	writeJSON(w, http.StatusOK, t)
}
