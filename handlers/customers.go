package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aj9599/raas-platform/models"
	"github.com/aj9599/raas-platform/services"
	"github.com/aj9599/raas-platform/services/calc"
	"go.uber.org/zap"
)

type CustomerHandler struct {
	db     *sql.DB
	logger *zap.Logger
	audit  auditLog
}

func NewCustomerHandler(db *sql.DB, logger *zap.Logger) *CustomerHandler {
	return &CustomerHandler{db: db, logger: logger, audit: auditLog{db, logger}}
}

type CustomerRequest struct {
	Name                   string         `json:"name"`
	Document               string         `json:"document"`
	Email                  string         `json:"email"`
	Phone                  string         `json:"phone"`
	Address                models.Address `json:"address"`
	DefaultCalculationType string         `json:"default_calculation_type"`
	DefaultDiscountPct     float64        `json:"default_discount_pct"`
	Language               string         `json:"language"`
	Notes                  string         `json:"notes"`
	IsActive               *bool          `json:"is_active"`
}

// Validate normalizes the request and rejects values the invoice
// calculation cannot work with.
func (req *CustomerRequest) Validate() error {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return fmt.Errorf("%w: name is required", services.ErrInvalidInput)
	}
	if req.Email = strings.TrimSpace(req.Email); req.Email != "" {
		email, err := services.NormalizeEmail(req.Email)
		if err != nil {
			return err
		}
		req.Email = email
	}
	if req.DefaultCalculationType == "" {
		req.DefaultCalculationType = string(calc.BasisCompensation)
	}
	if _, ok := calc.ParseBasis(req.DefaultCalculationType); !ok {
		return fmt.Errorf("%w: default_calculation_type must be compensation or receipt", services.ErrInvalidInput)
	}
	if err := services.ValidateDiscount(req.DefaultDiscountPct); err != nil {
		return err
	}
	switch req.Language {
	case "":
		req.Language = "pt"
	case "pt", "en":
	default:
		return fmt.Errorf("%w: language must be pt or en", services.ErrInvalidInput)
	}
	if req.Address.Country == "" {
		req.Address.Country = "Brasil"
	}
	return nil
}

var customerSortColumns = map[string]string{
	"name":       "c.name",
	"email":      "c.email",
	"created_at": "c.created_at",
}

func (h *CustomerHandler) List(w http.ResponseWriter, r *http.Request) {
	params, err := listParams(r)
	if err != nil {
		http.Error(w, "Invalid query", http.StatusBadRequest)
		return
	}

	conditions := []string{"c.tenant_id = ?"}
	args := []any{identity(r).TenantID}
	if params.Search != "" {
		like := "%" + params.Search + "%"
		conditions = append(conditions, "(c.name LIKE ? OR c.document LIKE ? OR c.email LIKE ?)")
		args = append(args, like, like, like)
	}
	if params.CustomerID != 0 {
		conditions = append(conditions, "c.id = ?")
		args = append(args, params.CustomerID)
	}
	switch params.Status {
	case "active":
		conditions = append(conditions, "COALESCE(c.is_active, 1) = 1")
	case "inactive":
		conditions = append(conditions, "COALESCE(c.is_active, 1) = 0")
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	page := models.Page[models.Customer]{Items: []models.Customer{}, Page: params.Page, PageSize: params.PageSize}
	if err := h.db.QueryRowContext(r.Context(), `SELECT COUNT(*) FROM customers c`+where, args...).Scan(&page.Total); err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	rows, err := h.db.QueryContext(r.Context(), `SELECT `+services.CustomerColumns+` FROM customers c`+where+`
		ORDER BY `+params.OrderBy(customerSortColumns, "c.name")+`, c.id
		LIMIT ? OFFSET ?`, append(args, params.PageSize, params.Offset())...)
	if err != nil {
		h.logger.Error("Error listing customers", zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	for rows.Next() {
		c, err := services.ScanCustomer(rows)
		if err != nil {
			h.logger.Warn("Error scanning customer", zap.Error(err))
			continue
		}
		page.Items = append(page.Items, c)
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *CustomerHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	caller := identity(r)
	if !canSeeCustomer(caller, id) {
		http.Error(w, "Customer not found", http.StatusNotFound)
		return
	}

	c, err := h.load(r.Context(), caller.TenantID, id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CustomerHandler) load(ctx context.Context, tenantID, id int) (*models.Customer, error) {
	c, err := services.ScanCustomer(h.db.QueryRowContext(ctx,
		`SELECT `+services.CustomerColumns+` FROM customers c WHERE c.id = ? AND c.tenant_id = ?`, id, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("customer %d: %w", id, services.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (h *CustomerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CustomerRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	tenantID := identity(r).TenantID

	result, err := h.db.ExecContext(r.Context(), `
		INSERT INTO customers (
			tenant_id, name, document, email, phone,
			address_street, address_number, address_district, address_city, address_state,
			address_postal_code, address_country, default_calculation_type, default_discount_pct,
			language, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tenantID, req.Name, req.Document, req.Email, req.Phone,
		req.Address.Street, req.Address.Number, req.Address.District, req.Address.City, req.Address.State,
		req.Address.PostalCode, req.Address.Country, req.DefaultCalculationType, req.DefaultDiscountPct,
		req.Language, req.Notes)
	if err != nil {
		h.logger.Error("Error creating customer", zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	id, _ := result.LastInsertId()

	h.audit.logToDatabase(r, "Customer Created", req.Name)
	c, err := h.load(r.Context(), tenantID, int(id))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *CustomerHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	var req CustomerRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	tenantID := identity(r).TenantID

	current, err := h.load(r.Context(), tenantID, id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	isActive := current.IsActive
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	_, err = h.db.ExecContext(r.Context(), `
		UPDATE customers SET
			name = ?, document = ?, email = ?, phone = ?,
			address_street = ?, address_number = ?, address_district = ?, address_city = ?,
			address_state = ?, address_postal_code = ?, address_country = ?,
			default_calculation_type = ?, default_discount_pct = ?, language = ?, notes = ?,
			is_active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND tenant_id = ?
	`, req.Name, req.Document, req.Email, req.Phone,
		req.Address.Street, req.Address.Number, req.Address.District, req.Address.City,
		req.Address.State, req.Address.PostalCode, req.Address.Country,
		req.DefaultCalculationType, req.DefaultDiscountPct, req.Language, req.Notes,
		isActive, id, tenantID)
	if err != nil {
		h.logger.Error("Error updating customer", zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	h.audit.logToDatabase(r, "Customer Updated", req.Name)
	c, err := h.load(r.Context(), tenantID, id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Delete refuses customers that still own installations or invoices; those
// are deactivated instead.
func (h *CustomerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	tenantID := identity(r).TenantID

	c, err := h.load(r.Context(), tenantID, id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	var installations, invoices int
	if err := h.db.QueryRowContext(r.Context(), `SELECT COUNT(*) FROM installations WHERE customer_id = ?`, id).Scan(&installations); err != nil {
		h.logger.Error("Error counting customer installations", zap.Int("customer_id", id), zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if err := h.db.QueryRowContext(r.Context(), `SELECT COUNT(*) FROM invoices WHERE customer_id = ?`, id).Scan(&invoices); err != nil {
		h.logger.Error("Error counting customer invoices", zap.Int("customer_id", id), zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if installations > 0 || invoices > 0 {
		http.Error(w, fmt.Sprintf("Customer has %d installations and %d invoices; deactivate it instead", installations, invoices), http.StatusConflict)
		return
	}

	tx, err := h.db.BeginTx(r.Context(), nil)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	// open invitations for this customer could otherwise be accepted later
	revoked, err := tx.ExecContext(r.Context(), `
		UPDATE invitations SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE customer_id = ? AND tenant_id = ? AND status IN (?, ?)
	`, models.InvitationRevoked, id, tenantID, models.InvitationPending, models.InvitationExpired)
	if err != nil {
		h.logger.Error("Error revoking customer invitations", zap.Int("customer_id", id), zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if _, err := tx.ExecContext(r.Context(), `UPDATE accounts SET customer_id = NULL, is_active = 0 WHERE customer_id = ?`, id); err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if _, err := tx.ExecContext(r.Context(), `DELETE FROM customers WHERE id = ? AND tenant_id = ?`, id, tenantID); err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(); err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if n, _ := revoked.RowsAffected(); n > 0 {
		h.logger.Info("Revoked invitations of deleted customer", zap.Int("customer_id", id), zap.Int64("count", n))
	}

	h.audit.logToDatabase(r, "Customer Deleted", c.Name)
	w.WriteHeader(http.StatusNoContent)
}
