package handlers

import (
	"database/sql"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/aj9599/raas-platform/models"
	"github.com/aj9599/raas-platform/services"
	"go.uber.org/zap"
)

type DashboardHandler struct {
	db      *sql.DB
	monitor *services.SystemMonitor
	logger  *zap.Logger
}

func NewDashboardHandler(db *sql.DB, monitor *services.SystemMonitor, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{db: db, monitor: monitor, logger: logger}
}

// PeriodTotals is one point of the billing chart.
type PeriodTotals struct {
	Period       string  `json:"period"`
	Invoices     int     `json:"invoices"`
	Kwh          float64 `json:"kwh"`
	Amount       float64 `json:"amount"`
	Savings      float64 `json:"savings"`
	CO2AvoidedKg float64 `json:"co2_avoided_kg"`
}

func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	var stats models.DashboardStats
	tenantID := identity(r).TenantID

	// Get total counts
	h.db.QueryRowContext(r.Context(), "SELECT COUNT(*) FROM customers WHERE tenant_id = ?", tenantID).Scan(&stats.TotalCustomers)
	h.db.QueryRowContext(r.Context(), "SELECT COUNT(*) FROM distributors WHERE tenant_id = ?", tenantID).Scan(&stats.TotalDistributors)
	h.db.QueryRowContext(r.Context(), `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN type = 'GENERATOR' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN type = 'CONSUMER' THEN 1 ELSE 0 END), 0)
		FROM installations WHERE tenant_id = ?
	`, tenantID).Scan(&stats.TotalInstallations, &stats.GeneratorCount, &stats.ConsumerCount)
	h.db.QueryRowContext(r.Context(), "SELECT COUNT(*) FROM invitations WHERE tenant_id = ? AND status = 'PENDING'", tenantID).Scan(&stats.PendingInvitations)
	h.db.QueryRowContext(r.Context(), "SELECT COUNT(*) FROM tickets WHERE tenant_id = ? AND status IN ('open', 'in_progress')", tenantID).Scan(&stats.OpenTickets)

	// Amounts by invoice status
	h.db.QueryRowContext(r.Context(), `
		SELECT COALESCE(SUM(CASE WHEN status = 'pending' THEN total_amount ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'paid' THEN total_amount ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'overdue' THEN total_amount ELSE 0 END), 0),
		       COALESCE(SUM(kwh_quantity), 0), COALESCE(SUM(savings), 0),
		       COALESCE(SUM(co2_kg), 0), COALESCE(SUM(trees_equivalent), 0)
		FROM invoices WHERE tenant_id = ?
	`, tenantID).Scan(&stats.PendingAmount, &stats.PaidAmount, &stats.OverdueAmount,
		&stats.InvoicedKwh, &stats.TotalSavings, &stats.CO2AvoidedKg, &stats.TreesEquivalent)

	writeJSON(w, http.StatusOK, stats)
}

// GetBilling returns invoiced totals per reference period, oldest first.
// ?months limits the series to the most recent periods.
func (h *DashboardHandler) GetBilling(w http.ResponseWriter, r *http.Request) {
	months, _ := strconv.Atoi(r.URL.Query().Get("months"))
	if months <= 0 {
		months = 12
	}

	rows, err := h.db.QueryContext(r.Context(), `
		SELECT reference_period, COUNT(*), SUM(kwh_quantity), SUM(total_amount), SUM(savings), SUM(co2_kg)
		FROM invoices
		WHERE tenant_id = ?
		GROUP BY reference_period
	`, identity(r).TenantID)
	if err != nil {
		h.logger.Error("Error loading billing series", zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	series := []PeriodTotals{}
	for rows.Next() {
		var p PeriodTotals
		if err := rows.Scan(&p.Period, &p.Invoices, &p.Kwh, &p.Amount, &p.Savings, &p.CO2AvoidedKg); err == nil {
			series = append(series, p)
		}
	}

	slices.SortFunc(series, func(a, b PeriodTotals) int {
		return strings.Compare(services.PeriodKey(a.Period), services.PeriodKey(b.Period))
	})
	if len(series) > months {
		series = series[len(series)-months:]
	}
	writeJSON(w, http.StatusOK, series)
}

func (h *DashboardHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > models.MaxPageSize {
		limit = 100
	}

	rows, err := h.db.QueryContext(r.Context(), `
		SELECT id, COALESCE(tenant_id, 0), action, COALESCE(details, ''), account_id, COALESCE(ip_address, ''), created_at
		FROM admin_logs
		WHERE tenant_id = ? OR tenant_id IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, identity(r).TenantID, limit)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	logs := []models.AdminLog{}
	for rows.Next() {
		var l models.AdminLog
		var accountID sql.NullInt64
		if err := rows.Scan(&l.ID, &l.TenantID, &l.Action, &l.Details, &accountID, &l.IPAddress, &l.CreatedAt); err == nil {
			if accountID.Valid {
				id := int(accountID.Int64)
				l.AccountID = &id
			}
			logs = append(logs, l)
		}
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *DashboardHandler) GetSystemHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Health())
}
