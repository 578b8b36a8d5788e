package handlers

import (
	"database/sql"
	"fmt"
	"net/http"
	"strconv"

	"github.com/aj9599/raas-platform/services"
	"go.uber.org/zap"
)

type AllocationHandler struct {
	allocations *services.AllocationService
	logger      *zap.Logger
	audit       auditLog
}

func NewAllocationHandler(db *sql.DB, allocations *services.AllocationService, logger *zap.Logger) *AllocationHandler {
	return &AllocationHandler{allocations: allocations, logger: logger, audit: auditLog{db, logger}}
}

type QuotaRequest struct {
	Quota float64 `json:"quota"`
}

func (h *AllocationHandler) List(w http.ResponseWriter, r *http.Request) {
	installationID := 0
	if raw := r.URL.Query().Get("installation_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "Invalid installation_id", http.StatusBadRequest)
			return
		}
		installationID = id
	}

	allocations, err := h.allocations.List(r.Context(), identity(r).TenantID, installationID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, allocations)
}

func (h *AllocationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.AllocationInput
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	a, err := h.allocations.Create(r.Context(), identity(r).TenantID, req)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.audit.logToDatabase(r, "Allocation Created",
		fmt.Sprintf("generator %d -> consumer %d (%.2f%%)", a.GeneratorID, a.ConsumerID, a.Quota))
	writeJSON(w, http.StatusCreated, a)
}

func (h *AllocationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	var req QuotaRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	a, err := h.allocations.UpdateQuota(r.Context(), identity(r).TenantID, id, req.Quota)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.audit.logToDatabase(r, "Allocation Updated", fmt.Sprintf("ID %d (%.2f%%)", a.ID, a.Quota))
	writeJSON(w, http.StatusOK, a)
}

func (h *AllocationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	if err := h.allocations.Delete(r.Context(), identity(r).TenantID, id); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.audit.logToDatabase(r, "Allocation Deleted", fmt.Sprintf("ID %d", id))
	w.WriteHeader(http.StatusNoContent)
}
