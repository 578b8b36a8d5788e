package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/aj9599/raas-platform/models"
	"go.uber.org/zap"
)

type DistributorHandler struct {
	db     *sql.DB
	logger *zap.Logger
	audit  auditLog
}

func NewDistributorHandler(db *sql.DB, logger *zap.Logger) *DistributorHandler {
	return &DistributorHandler{db: db, logger: logger, audit: auditLog{db, logger}}
}

type DistributorRequest struct {
	Name        string  `json:"name"`
	PricePerKwh float64 `json:"price_per_kwh"`
}

func (req *DistributorRequest) validate() string {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return "name is required"
	}
	if math.IsNaN(req.PricePerKwh) || math.IsInf(req.PricePerKwh, 0) || req.PricePerKwh <= 0 {
		return "price_per_kwh must be greater than 0"
	}
	return ""
}

func (h *DistributorHandler) List(w http.ResponseWriter, r *http.Request) {
	params, err := listParams(r)
	if err != nil {
		http.Error(w, "Invalid query", http.StatusBadRequest)
		return
	}

	query := `SELECT id, tenant_id, name, price_per_kwh, created_at, updated_at FROM distributors WHERE tenant_id = ?`
	args := []any{identity(r).TenantID}
	if params.Search != "" {
		query += ` AND name LIKE ?`
		args = append(args, "%"+params.Search+"%")
	}
	query += ` ORDER BY name`

	rows, err := h.db.QueryContext(r.Context(), query, args...)
	if err != nil {
		h.logger.Error("Error listing distributors", zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	distributors := []models.Distributor{}
	for rows.Next() {
		var d models.Distributor
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Name, &d.PricePerKwh, &d.CreatedAt, &d.UpdatedAt); err != nil {
			continue
		}
		distributors = append(distributors, d)
	}
	writeJSON(w, http.StatusOK, distributors)
}

func (h *DistributorHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	d, err := h.load(r, id)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "Distributor not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *DistributorHandler) load(r *http.Request, id int) (models.Distributor, error) {
	var d models.Distributor
	err := h.db.QueryRowContext(r.Context(), `
		SELECT id, tenant_id, name, price_per_kwh, created_at, updated_at
		FROM distributors WHERE id = ? AND tenant_id = ?
	`, id, identity(r).TenantID).Scan(&d.ID, &d.TenantID, &d.Name, &d.PricePerKwh, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func (h *DistributorHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req DistributorRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if msg := req.validate(); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	result, err := h.db.ExecContext(r.Context(), `
		INSERT INTO distributors (tenant_id, name, price_per_kwh) VALUES (?, ?, ?)
	`, identity(r).TenantID, req.Name, req.PricePerKwh)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	id, _ := result.LastInsertId()

	h.audit.logToDatabase(r, "Distributor Created", fmt.Sprintf("%s (%.3f/kWh)", req.Name, req.PricePerKwh))
	d, err := h.load(r, int(id))
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// Update changes the tariff for future invoices; stored invoices keep the
// tariff they were generated with.
func (h *DistributorHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	var req DistributorRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if msg := req.validate(); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	result, err := h.db.ExecContext(r.Context(), `
		UPDATE distributors SET name = ?, price_per_kwh = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND tenant_id = ?
	`, req.Name, req.PricePerKwh, id, identity(r).TenantID)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		http.Error(w, "Distributor not found", http.StatusNotFound)
		return
	}

	h.audit.logToDatabase(r, "Distributor Updated", fmt.Sprintf("%s (%.3f/kWh)", req.Name, req.PricePerKwh))
	d, err := h.load(r, id)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *DistributorHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	var inUse int
	if err := h.db.QueryRowContext(r.Context(), `SELECT COUNT(*) FROM installations WHERE distributor_id = ?`, id).Scan(&inUse); err != nil {
		h.logger.Error("Error counting distributor installations", zap.Int("distributor_id", id), zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if inUse > 0 {
		http.Error(w, fmt.Sprintf("Distributor is used by %d installations", inUse), http.StatusConflict)
		return
	}

	result, err := h.db.ExecContext(r.Context(), `DELETE FROM distributors WHERE id = ? AND tenant_id = ?`, id, identity(r).TenantID)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		http.Error(w, "Distributor not found", http.StatusNotFound)
		return
	}

	h.audit.logToDatabase(r, "Distributor Deleted", fmt.Sprintf("ID %d", id))
	w.WriteHeader(http.StatusNoContent)
}
