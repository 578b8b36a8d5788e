package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/aj9599/raas-platform/models"
	"github.com/aj9599/raas-platform/services"
	"go.uber.org/zap"
)

type InstallationHandler struct {
	db      *sql.DB
	energy  *services.EnergyService
	billing *services.BillingService
	logger  *zap.Logger
	audit   auditLog
}

func NewInstallationHandler(db *sql.DB, energy *services.EnergyService, billing *services.BillingService, logger *zap.Logger) *InstallationHandler {
	return &InstallationHandler{db: db, energy: energy, billing: billing, logger: logger, audit: auditLog{db, logger}}
}

type InstallationRequest struct {
	Code          string         `json:"code"`
	Name          string         `json:"name"`
	Type          string         `json:"type"`
	DistributorID int            `json:"distributor_id"`
	CustomerID    int            `json:"customer_id"`
	Address       models.Address `json:"address"`
	IsActive      *bool          `json:"is_active"`
}

func (req *InstallationRequest) validate() error {
	req.Code = strings.TrimSpace(req.Code)
	req.Name = strings.TrimSpace(req.Name)
	req.Type = strings.ToUpper(strings.TrimSpace(req.Type))
	if req.Code == "" {
		return fmt.Errorf("%w: code is required", services.ErrInvalidInput)
	}
	if req.Name == "" {
		req.Name = req.Code
	}
	if req.Type != models.InstallationGenerator && req.Type != models.InstallationConsumer {
		return fmt.Errorf("%w: type must be GENERATOR or CONSUMER", services.ErrInvalidInput)
	}
	if req.DistributorID <= 0 {
		return fmt.Errorf("%w: distributor_id is required", services.ErrInvalidInput)
	}
	if req.CustomerID <= 0 {
		return fmt.Errorf("%w: customer_id is required", services.ErrInvalidInput)
	}
	if req.Address.Country == "" {
		req.Address.Country = "Brasil"
	}
	return nil
}

// checkReferences makes sure the distributor and owner exist in the tenant.
func (h *InstallationHandler) checkReferences(ctx context.Context, tenantID int, req InstallationRequest) error {
	var n int
	if err := h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM distributors WHERE id = ? AND tenant_id = ?`, req.DistributorID, tenantID).Scan(&n); err != nil {
		return fmt.Errorf("failed to look up distributor: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: distributor %d does not exist", services.ErrInvalidInput, req.DistributorID)
	}
	if err := h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers WHERE id = ? AND tenant_id = ?`, req.CustomerID, tenantID).Scan(&n); err != nil {
		return fmt.Errorf("failed to look up customer: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: customer %d does not exist", services.ErrInvalidInput, req.CustomerID)
	}
	return nil
}

var installationSortColumns = map[string]string{
	"code":       "i.code",
	"name":       "i.name",
	"type":       "i.type",
	"created_at": "i.created_at",
}

func (h *InstallationHandler) List(w http.ResponseWriter, r *http.Request) {
	params, err := listParams(r)
	if err != nil {
		http.Error(w, "Invalid query", http.StatusBadRequest)
		return
	}

	conditions := []string{"i.tenant_id = ?"}
	args := []any{identity(r).TenantID}
	if params.Search != "" {
		like := "%" + params.Search + "%"
		conditions = append(conditions, "(i.code LIKE ? OR i.name LIKE ? OR o.name LIKE ?)")
		args = append(args, like, like, like)
	}
	if params.CustomerID != 0 {
		conditions = append(conditions, "i.customer_id = ?")
		args = append(args, params.CustomerID)
	}
	if t := strings.ToUpper(params.Type); t == models.InstallationGenerator || t == models.InstallationConsumer {
		conditions = append(conditions, "i.type = ?")
		args = append(args, t)
	}
	switch params.Status {
	case "active":
		conditions = append(conditions, "COALESCE(i.is_active, 1) = 1")
	case "inactive":
		conditions = append(conditions, "COALESCE(i.is_active, 1) = 0")
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	page := models.Page[models.Installation]{Items: []models.Installation{}, Page: params.Page, PageSize: params.PageSize}
	if err := h.db.QueryRowContext(r.Context(), `SELECT COUNT(*)`+services.InstallationJoins+where, args...).Scan(&page.Total); err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	rows, err := h.db.QueryContext(r.Context(), `SELECT `+services.InstallationColumns+services.InstallationJoins+where+`
		ORDER BY `+params.OrderBy(installationSortColumns, "i.code")+`, i.id
		LIMIT ? OFFSET ?`, append(args, params.PageSize, params.Offset())...)
	if err != nil {
		h.logger.Error("Error listing installations", zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	for rows.Next() {
		inst, err := services.ScanInstallation(rows)
		if err != nil {
			h.logger.Warn("Error scanning installation", zap.Error(err))
			continue
		}
		page.Items = append(page.Items, inst)
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *InstallationHandler) load(ctx context.Context, tenantID, id int) (*models.Installation, error) {
	inst, err := services.ScanInstallation(h.db.QueryRowContext(ctx,
		`SELECT `+services.InstallationColumns+services.InstallationJoins+` WHERE i.id = ? AND i.tenant_id = ?`, id, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("installation %d: %w", id, services.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

// visible loads the installation and hides it from customers who do not
// own it.
func (h *InstallationHandler) visible(r *http.Request, id int) (*models.Installation, error) {
	caller := identity(r)
	inst, err := h.load(r.Context(), caller.TenantID, id)
	if err != nil {
		return nil, err
	}
	if !canSeeCustomer(caller, inst.CustomerID) {
		return nil, fmt.Errorf("installation %d: %w", id, services.ErrNotFound)
	}
	return inst, nil
}

func (h *InstallationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	inst, err := h.visible(r, id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (h *InstallationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req InstallationRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.validate(); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	tenantID := identity(r).TenantID
	if err := h.checkReferences(r.Context(), tenantID, req); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	result, err := h.db.ExecContext(r.Context(), `
		INSERT INTO installations (
			tenant_id, code, name, type, distributor_id, customer_id,
			address_street, address_number, address_district, address_city,
			address_state, address_postal_code, address_country
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tenantID, req.Code, req.Name, req.Type, req.DistributorID, req.CustomerID,
		req.Address.Street, req.Address.Number, req.Address.District, req.Address.City,
		req.Address.State, req.Address.PostalCode, req.Address.Country)
	if services.IsUniqueViolation(err) {
		http.Error(w, fmt.Sprintf("Installation code %s already exists", req.Code), http.StatusConflict)
		return
	}
	if err != nil {
		h.logger.Error("Error creating installation", zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	id, _ := result.LastInsertId()

	h.audit.logToDatabase(r, "Installation Created", fmt.Sprintf("%s (%s)", req.Code, req.Type))
	inst, err := h.load(r.Context(), tenantID, int(id))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, inst)
}

func (h *InstallationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	var req InstallationRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.validate(); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	tenantID := identity(r).TenantID

	current, err := h.load(r.Context(), tenantID, id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if err := h.checkReferences(r.Context(), tenantID, req); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if current.Type != req.Type {
		var allocations int
		if err := h.db.QueryRowContext(r.Context(), `SELECT COUNT(*) FROM allocations WHERE generator_id = ? OR consumer_id = ?`, id, id).Scan(&allocations); err != nil {
			h.logger.Error("Error counting installation allocations", zap.Int("installation_id", id), zap.Error(err))
			http.Error(w, "Database error", http.StatusInternalServerError)
			return
		}
		if allocations > 0 {
			http.Error(w, "Installation type cannot change while it has allocations", http.StatusConflict)
			return
		}
	}
	isActive := current.IsActive
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	_, err = h.db.ExecContext(r.Context(), `
		UPDATE installations SET
			code = ?, name = ?, type = ?, distributor_id = ?, customer_id = ?,
			address_street = ?, address_number = ?, address_district = ?, address_city = ?,
			address_state = ?, address_postal_code = ?, address_country = ?,
			is_active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND tenant_id = ?
	`, req.Code, req.Name, req.Type, req.DistributorID, req.CustomerID,
		req.Address.Street, req.Address.Number, req.Address.District, req.Address.City,
		req.Address.State, req.Address.PostalCode, req.Address.Country,
		isActive, id, tenantID)
	if services.IsUniqueViolation(err) {
		http.Error(w, fmt.Sprintf("Installation code %s already exists", req.Code), http.StatusConflict)
		return
	}
	if err != nil {
		h.logger.Error("Error updating installation", zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	h.audit.logToDatabase(r, "Installation Updated", req.Code)
	inst, err := h.load(r.Context(), tenantID, id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

// Delete removes an installation with its allocations and energy history.
// Installations already billed must be deactivated instead.
func (h *InstallationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	tenantID := identity(r).TenantID

	inst, err := h.load(r.Context(), tenantID, id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	var billed int
	if err := h.db.QueryRowContext(r.Context(), `SELECT COUNT(*) FROM invoice_installations WHERE installation_id = ?`, id).Scan(&billed); err != nil {
		h.logger.Error("Error counting billed installation", zap.Int("installation_id", id), zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if billed > 0 {
		http.Error(w, "Installation appears on invoices; deactivate it instead", http.StatusConflict)
		return
	}

	tx, err := h.db.BeginTx(r.Context(), nil)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	steps := []struct {
		query string
		args  []any
	}{
		{`DELETE FROM allocations WHERE generator_id = ? OR consumer_id = ?`, []any{id, id}},
		{`DELETE FROM energy_records WHERE installation_id = ?`, []any{id}},
		{`DELETE FROM installations WHERE id = ?`, []any{id}},
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(r.Context(), step.query, step.args...); err != nil {
			h.logger.Error("Error deleting installation", zap.Int("installation_id", id), zap.Error(err))
			http.Error(w, "Database error", http.StatusInternalServerError)
			return
		}
	}
	if err := tx.Commit(); err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	h.audit.logToDatabase(r, "Installation Deleted", inst.Code)
	w.WriteHeader(http.StatusNoContent)
}

func (h *InstallationHandler) Records(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	if _, err := h.visible(r, id); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	records, err := h.energy.ListRecords(r.Context(), identity(r).TenantID, id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *InstallationHandler) AddRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	var req services.EnergyRecordInput
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Source == "" {
		req.Source = "manual"
	}

	rec, err := h.energy.AddRecord(r.Context(), identity(r).TenantID, id, req)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.audit.logToDatabase(r, "Energy Record Added", fmt.Sprintf("installation %d, %s", id, rec.Period))
	writeJSON(w, http.StatusCreated, rec)
}

// Summary is the savings history of one installation. discount_pct in the
// query replaces the owner's default discount.
func (h *InstallationHandler) Summary(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	if _, err := h.visible(r, id); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	var discount *float64
	if raw := r.URL.Query().Get("discount_pct"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			http.Error(w, "Invalid discount_pct", http.StatusBadRequest)
			return
		}
		if err := services.ValidateDiscount(v); err != nil {
			handleServiceError(w, h.logger, err)
			return
		}
		discount = &v
	}

	summary, err := h.billing.InstallationSummary(r.Context(), identity(r).TenantID, id, discount)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
