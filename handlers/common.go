package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/aj9599/raas-platform/middleware"
	"github.com/aj9599/raas-platform/models"
	"github.com/aj9599/raas-platform/services"
	"github.com/go-playground/form/v4"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

var queryDecoder = form.NewDecoder()

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// pathID parses the {name} route variable.
func pathID(r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)[name])
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// listParams decodes filter, sort and paging from the query string. Customer
// accounts are pinned to their own customer.
func listParams(r *http.Request) (models.ListParams, error) {
	var params models.ListParams
	if err := queryDecoder.Decode(&params, r.URL.Query()); err != nil {
		return params, err
	}
	if id, ok := middleware.IdentityFromContext(r.Context()); ok && id.IsCustomer() {
		params.CustomerID = customerOf(id)
	}
	params.Normalize()
	return params, nil
}

func identity(r *http.Request) middleware.Identity {
	id, _ := middleware.IdentityFromContext(r.Context())
	return id
}

// customerOf returns the customer a customer account is linked to, or -1 so
// queries match nothing when the link is missing.
func customerOf(id middleware.Identity) int {
	if id.CustomerID == nil {
		return -1
	}
	return *id.CustomerID
}

// canSeeCustomer reports whether the caller may read data of customerID.
func canSeeCustomer(id middleware.Identity, customerID int) bool {
	return !id.IsCustomer() || customerOf(id) == customerID
}

func isStaff(id middleware.Identity) bool {
	return middleware.RoleAtLeast(id.Role, middleware.RoleOperator)
}

// handleServiceError maps service sentinel errors onto status codes. The
// message of client errors is passed through; anything else is logged and
// reported as a 500.
func handleServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound), errors.Is(err, sql.ErrNoRows):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, services.ErrNoEnergyRecords):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrConflict),
		errors.Is(err, services.ErrDuplicatePeriod),
		errors.Is(err, services.ErrQuotaExceeded),
		errors.Is(err, services.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, services.ErrExpired):
		status = http.StatusGone
	case errors.Is(err, services.ErrNotConfigured):
		status = http.StatusPreconditionFailed
	case errors.Is(err, services.ErrDownstream):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		logger.Error("Request failed", zap.Error(err))
		http.Error(w, "Internal server error", status)
		return
	}
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "Not found", status)
		return
	}
	http.Error(w, err.Error(), status)
}

// auditLog writes to admin_logs, shown on the dashboard.
type auditLog struct {
	db     *sql.DB
	logger *zap.Logger
}

func (a auditLog) logToDatabase(r *http.Request, action, details string) {
	id := identity(r)
	var accountID any
	if id.AccountID > 0 {
		accountID = id.AccountID
	}
	var tenantID any
	if id.TenantID > 0 {
		tenantID = id.TenantID
	}
	_, err := a.db.ExecContext(r.Context(), `
		INSERT INTO admin_logs (tenant_id, action, details, account_id, ip_address)
		VALUES (?, ?, ?, ?, ?)
	`, tenantID, action, details, accountID, getClientIP(r))
	if err != nil {
		a.logger.Warn("Failed to write admin log", zap.String("action", action), zap.Error(err))
	}
}

func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
