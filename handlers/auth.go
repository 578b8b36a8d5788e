package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aj9599/raas-platform/middleware"
	"github.com/aj9599/raas-platform/models"
	"github.com/aj9599/raas-platform/services"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type AuthHandler struct {
	db        *sql.DB
	jwtSecret string
	tokenTTL  time.Duration
	logger    *zap.Logger
	audit     auditLog
}

func NewAuthHandler(db *sql.DB, jwtSecret string, tokenTTL time.Duration, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{db: db, jwtSecret: jwtSecret, tokenTTL: tokenTTL, logger: logger, audit: auditLog{db, logger}}
}

// LookupAccount feeds AuthMiddleware the stored role, customer and active
// flag of a token's account. A deactivated tenant deactivates its accounts.
func (h *AuthHandler) LookupAccount(ctx context.Context, tenantID, accountID int) (middleware.AccountState, error) {
	var (
		state      middleware.AccountState
		role       string
		customerID sql.NullInt64
	)
	err := h.db.QueryRowContext(ctx, `
		SELECT a.role, a.customer_id, COALESCE(a.is_active, 1) = 1 AND COALESCE(t.is_active, 1) = 1
		FROM accounts a
		JOIN tenants t ON t.id = a.tenant_id
		WHERE a.id = ? AND a.tenant_id = ?
	`, accountID, tenantID).Scan(&role, &customerID, &state.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return state, middleware.ErrAccountNotFound
	}
	if err != nil {
		h.logger.Error("Error loading account for token", zap.Int("account_id", accountID), zap.Error(err))
		return state, err
	}
	state.Role = middleware.Role(role)
	if customerID.Valid {
		id := int(customerID.Int64)
		state.CustomerID = &id
	}
	return state, nil
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	User      models.Account `json:"user"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	account, err := services.ScanAccount(h.db.QueryRowContext(r.Context(), `
		SELECT `+services.AccountColumns+` FROM accounts a
		JOIN tenants t ON t.id = a.tenant_id
		WHERE a.email = ? AND COALESCE(t.is_active, 1) = 1
	`, strings.ToLower(strings.TrimSpace(req.Email))))
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.logger.Error("[AUTH] Login lookup failed", zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if !account.IsActive {
		http.Error(w, "Account is disabled", http.StatusForbidden)
		return
	}
	role, ok := middleware.NormalizeRole(account.Role)
	if !ok {
		http.Error(w, "Account has no valid role", http.StatusForbidden)
		return
	}

	token, expiresAt, err := middleware.IssueToken(middleware.Identity{
		AccountID:  account.ID,
		TenantID:   account.TenantID,
		Role:       role,
		Email:      account.Email,
		CustomerID: account.CustomerID,
	}, h.jwtSecret, h.tokenTTL)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	now := time.Now().UTC()
	if _, err := h.db.ExecContext(r.Context(), `UPDATE accounts SET last_login_at = ? WHERE id = ?`, now, account.ID); err != nil {
		h.logger.Warn("[AUTH] Could not record login time", zap.Int("account_id", account.ID), zap.Error(err))
	}
	account.LastLoginAt = &now

	h.logger.Info("[AUTH] Login", zap.String("email", account.Email), zap.String("role", account.Role))
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, ExpiresAt: expiresAt, User: account})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	account, err := services.GetAccount(r.Context(), h.db, id.TenantID, id.AccountID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id := identity(r)

	var req ChangePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if len(req.NewPassword) < services.MinPasswordLength {
		http.Error(w, "New password is too short", http.StatusBadRequest)
		return
	}

	var currentHash string
	err := h.db.QueryRowContext(r.Context(), "SELECT password_hash FROM accounts WHERE id = ?", id.AccountID).Scan(&currentHash)
	if err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(currentHash), []byte(req.OldPassword)); err != nil {
		http.Error(w, "Invalid old password", http.StatusUnauthorized)
		return
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Failed to hash password", http.StatusInternalServerError)
		return
	}

	_, err = h.db.ExecContext(r.Context(), `
		UPDATE accounts
		SET password_hash = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, string(newHash), id.AccountID)
	if err != nil {
		http.Error(w, "Failed to update password", http.StatusInternalServerError)
		return
	}

	h.audit.logToDatabase(r, "Password Changed", id.Email)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}
