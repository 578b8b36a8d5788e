package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"

	"github.com/aj9599/raas-platform/middleware"
	"github.com/aj9599/raas-platform/models"
	"github.com/aj9599/raas-platform/services"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// UserHandler manages platform accounts: staff and customer logins.
type UserHandler struct {
	db     *sql.DB
	logger *zap.Logger
	audit  auditLog
}

func NewUserHandler(db *sql.DB, logger *zap.Logger) *UserHandler {
	return &UserHandler{db: db, logger: logger, audit: auditLog{db, logger}}
}

type AccountRequest struct {
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Phone      string `json:"phone"`
	Role       string `json:"role"`
	CustomerID *int   `json:"customer_id"`
	Language   string `json:"language"`
	Password   string `json:"password"`
	IsActive   *bool  `json:"is_active"`
}

type RoleRequest struct {
	Role       string `json:"role"`
	CustomerID *int   `json:"customer_id"`
}

var accountSortColumns = map[string]string{
	"email":      "a.email",
	"name":       "a.first_name",
	"role":       "a.role",
	"created_at": "a.created_at",
	"last_login": "a.last_login_at",
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	params, err := listParams(r)
	if err != nil {
		http.Error(w, "Invalid query", http.StatusBadRequest)
		return
	}
	id := identity(r)

	conditions := []string{"a.tenant_id = ?"}
	args := []any{id.TenantID}
	if params.Search != "" {
		like := "%" + params.Search + "%"
		conditions = append(conditions, "(a.email LIKE ? OR a.first_name LIKE ? OR a.last_name LIKE ?)")
		args = append(args, like, like, like)
	}
	if params.Type != "" {
		conditions = append(conditions, "a.role = ?")
		args = append(args, params.Type)
	}
	if params.CustomerID > 0 {
		conditions = append(conditions, "a.customer_id = ?")
		args = append(args, params.CustomerID)
	}
	switch params.Status {
	case "active":
		conditions = append(conditions, "COALESCE(a.is_active, 1) = 1")
	case "inactive":
		conditions = append(conditions, "COALESCE(a.is_active, 1) = 0")
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	page := models.Page[models.Account]{Items: []models.Account{}, Page: params.Page, PageSize: params.PageSize}
	if err := h.db.QueryRowContext(r.Context(), `SELECT COUNT(*) FROM accounts a`+where, args...).Scan(&page.Total); err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	rows, err := h.db.QueryContext(r.Context(), `SELECT `+services.AccountColumns+` FROM accounts a`+where+`
		ORDER BY `+params.OrderBy(accountSortColumns, "a.created_at")+`, a.id
		LIMIT ? OFFSET ?`, append(args, params.PageSize, params.Offset())...)
	if err != nil {
		h.logger.Error("Error listing accounts", zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	for rows.Next() {
		a, err := services.ScanAccount(rows)
		if err != nil {
			h.logger.Warn("Error scanning account", zap.Error(err))
			continue
		}
		page.Items = append(page.Items, a)
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	account, err := services.GetAccount(r.Context(), h.db, identity(r).TenantID, accountID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// Create adds an account directly with a password. Invitations are the
// usual way in; this is for operators setting up logins by hand.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller := identity(r)

	var req AccountRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	email, err := services.NormalizeEmail(req.Email)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	req.FirstName = strings.TrimSpace(req.FirstName)
	if req.FirstName == "" {
		http.Error(w, "first_name is required", http.StatusBadRequest)
		return
	}
	if len(req.Password) < services.MinPasswordLength {
		http.Error(w, fmt.Sprintf("password must have at least %d characters", services.MinPasswordLength), http.StatusBadRequest)
		return
	}
	role, ok := middleware.NormalizeRole(req.Role)
	if !ok {
		http.Error(w, "Invalid role", http.StatusBadRequest)
		return
	}
	if !middleware.CanGrant(caller.Role, role) {
		http.Error(w, "You cannot grant this role", http.StatusForbidden)
		return
	}
	customerID, err := h.customerForRole(r.Context(), caller.TenantID, role, req.CustomerID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if req.Language == "" {
		req.Language = "pt"
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Failed to hash password", http.StatusInternalServerError)
		return
	}

	result, err := h.db.ExecContext(r.Context(), `
		INSERT INTO accounts (tenant_id, email, first_name, last_name, phone, role, customer_id, language, password_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, caller.TenantID, email, req.FirstName, strings.TrimSpace(req.LastName), strings.TrimSpace(req.Phone),
		string(role), customerID, req.Language, string(hash))
	if services.IsUniqueViolation(err) {
		http.Error(w, "An account with this email already exists", http.StatusConflict)
		return
	}
	if err != nil {
		h.logger.Error("Error creating account", zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	id, _ := result.LastInsertId()

	h.audit.logToDatabase(r, "Account Created", fmt.Sprintf("%s (%s)", email, role))
	account, err := services.GetAccount(r.Context(), h.db, caller.TenantID, int(id))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller := identity(r)
	accountID, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	var req AccountRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	current, err := services.GetAccount(r.Context(), h.db, caller.TenantID, accountID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if !middleware.CanGrant(caller.Role, middleware.Role(current.Role)) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	if name := strings.TrimSpace(req.FirstName); name != "" {
		current.FirstName = name
	}
	current.LastName = strings.TrimSpace(req.LastName)
	current.Phone = strings.TrimSpace(req.Phone)
	if req.Language != "" {
		current.Language = req.Language
	}
	if req.IsActive != nil {
		if !*req.IsActive && accountID == caller.AccountID {
			http.Error(w, "You cannot deactivate your own account", http.StatusBadRequest)
			return
		}
		current.IsActive = *req.IsActive
	}

	_, err = h.db.ExecContext(r.Context(), `
		UPDATE accounts SET
			first_name = ?, last_name = ?, phone = ?, language = ?, is_active = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND tenant_id = ?
	`, current.FirstName, current.LastName, current.Phone, current.Language, current.IsActive,
		accountID, caller.TenantID)
	if err != nil {
		h.logger.Error("Error updating account", zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	h.audit.logToDatabase(r, "Account Updated", current.Email)
	writeJSON(w, http.StatusOK, current)
}

// UpdateRole changes another account's role. Both the old and the new role
// must be grantable by the caller.
func (h *UserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	caller := identity(r)
	accountID, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	if accountID == caller.AccountID {
		http.Error(w, "You cannot change your own role", http.StatusBadRequest)
		return
	}

	var req RoleRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	role, ok := middleware.NormalizeRole(req.Role)
	if !ok {
		http.Error(w, "Invalid role", http.StatusBadRequest)
		return
	}

	current, err := services.GetAccount(r.Context(), h.db, caller.TenantID, accountID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if !middleware.CanGrant(caller.Role, middleware.Role(current.Role)) || !middleware.CanGrant(caller.Role, role) {
		http.Error(w, "You cannot grant this role", http.StatusForbidden)
		return
	}

	wanted := req.CustomerID
	if wanted == nil {
		wanted = current.CustomerID
	}
	customerID, err := h.customerForRole(r.Context(), caller.TenantID, role, wanted)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	if _, err := h.db.ExecContext(r.Context(), `
		UPDATE accounts SET role = ?, customer_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND tenant_id = ?
	`, string(role), customerID, accountID, caller.TenantID); err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	h.audit.logToDatabase(r, "Role Changed", fmt.Sprintf("%s: %s -> %s", current.Email, current.Role, role))
	account, err := services.GetAccount(r.Context(), h.db, caller.TenantID, accountID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller := identity(r)
	accountID, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	if accountID == caller.AccountID {
		http.Error(w, "You cannot delete your own account", http.StatusBadRequest)
		return
	}

	current, err := services.GetAccount(r.Context(), h.db, caller.TenantID, accountID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if !middleware.CanGrant(caller.Role, middleware.Role(current.Role)) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var tickets int
	if err := h.db.QueryRowContext(r.Context(), `SELECT COUNT(*) FROM tickets WHERE opened_by = ?`, accountID).Scan(&tickets); err != nil {
		h.logger.Error("Error counting account tickets", zap.Int("account_id", accountID), zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if tickets > 0 {
		http.Error(w, "Account has opened tickets; deactivate it instead", http.StatusConflict)
		return
	}

	if _, err := h.db.ExecContext(r.Context(), `UPDATE tickets SET assigned_to = NULL WHERE assigned_to = ?`, accountID); err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if _, err := h.db.ExecContext(r.Context(), `DELETE FROM accounts WHERE id = ? AND tenant_id = ?`, accountID, caller.TenantID); err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	h.audit.logToDatabase(r, "Account Deleted", current.Email)
	w.WriteHeader(http.StatusNoContent)
}

// customerForRole returns the customer link to store for role: required and
// checked for customer accounts, dropped for staff.
func (h *UserHandler) customerForRole(ctx context.Context, tenantID int, role middleware.Role, customerID *int) (*int, error) {
	if role != middleware.RoleCustomer {
		return nil, nil
	}
	if customerID == nil {
		return nil, fmt.Errorf("%w: customer accounts need a customer_id", services.ErrInvalidInput)
	}
	var n int
	if err := h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers WHERE id = ? AND tenant_id = ?`,
		*customerID, tenantID).Scan(&n); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: customer %d not found", services.ErrInvalidInput, *customerID)
	}
	return customerID, nil
}
