package handlers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aj9599/raas-platform/models"
	"github.com/aj9599/raas-platform/services"
	"go.uber.org/zap"
)

var recordCSVHeader = []string{
	"period", "consumption", "generation", "received", "compensation", "transferred",
	"previous_balance", "current_balance", "expiring_balance_amount", "expiring_balance_period", "quota",
}

// CSVImportResult reports what an import did with each data row.
type CSVImportResult struct {
	Processed  int      `json:"processed"`
	Imported   int      `json:"imported"`
	Duplicates int      `json:"duplicates"`
	Errors     int      `json:"errors"`
	FirstError string   `json:"first_error,omitempty"`
	Periods    []string `json:"periods"`
}

func recordCSVRow(rec models.EnergyRecord) []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return []string{
		rec.Period, f(rec.Consumption), f(rec.Generation), f(rec.Received), f(rec.Compensation), f(rec.Transferred),
		f(rec.PreviousBalance), f(rec.CurrentBalance), f(rec.ExpiringBalanceAmount), rec.ExpiringBalancePeriod, f(rec.Quota),
	}
}

// parseRecordCSVRow maps a data row onto an energy record. Columns are looked
// up by header name so files may reorder or omit the optional ones.
func parseRecordCSVRow(columns map[string]int, row []string) (services.EnergyRecordInput, error) {
	in := services.EnergyRecordInput{Source: "csv"}
	get := func(name string) string {
		if i, ok := columns[name]; ok && i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}
	num := func(name string, dst *float64) error {
		raw := strings.ReplaceAll(get(name), ",", ".")
		if raw == "" {
			return nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q", name, raw)
		}
		*dst = v
		return nil
	}

	in.Period = get("period")
	in.ExpiringBalancePeriod = get("expiring_balance_period")
	for name, dst := range map[string]*float64{
		"consumption":             &in.Consumption,
		"generation":              &in.Generation,
		"received":                &in.Received,
		"compensation":            &in.Compensation,
		"transferred":             &in.Transferred,
		"previous_balance":        &in.PreviousBalance,
		"current_balance":         &in.CurrentBalance,
		"expiring_balance_amount": &in.ExpiringBalanceAmount,
		"quota":                   &in.Quota,
	} {
		if err := num(name, dst); err != nil {
			return in, err
		}
	}
	return in, in.Validate()
}

// ExportRecords streams an installation's history as CSV, oldest first, in
// the same layout ImportRecords accepts.
func (h *InstallationHandler) ExportRecords(w http.ResponseWriter, r *http.Request) {
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
	records, err := h.energy.ListRecords(r.Context(), identity(r).TenantID, id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	filename := fmt.Sprintf("records_%s_%s.csv", inst.Code, time.Now().Format("20060102"))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(recordCSVHeader); err != nil {
		return
	}
	for i := len(records) - 1; i >= 0; i-- {
		if err := writer.Write(recordCSVRow(records[i])); err != nil {
			h.logger.Warn("Error writing records CSV", zap.Int("installation_id", id), zap.Error(err))
			return
		}
	}
}

// ImportRecords appends the rows of an uploaded CSV (form field "csv") to an
// installation's history. Periods that already exist are skipped, records
// are never overwritten.
func (h *InstallationHandler) ImportRecords(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	tenantID := identity(r).TenantID
	if _, err := h.load(r.Context(), tenantID, id); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	// 10MB max
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}
	file, _, err := r.FormFile("csv")
	if err != nil {
		http.Error(w, "No CSV file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		http.Error(w, "Failed to read CSV header", http.StatusBadRequest)
		return
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := columns["period"]; !ok {
		http.Error(w, "CSV header must contain a period column", http.StatusBadRequest)
		return
	}

	h.logger.Info("Starting records CSV import", zap.Int("installation_id", id))

	result := CSVImportResult{Periods: []string{}}
	fail := func(format string, args ...any) {
		result.Errors++
		if result.FirstError == "" {
			result.FirstError = fmt.Sprintf(format, args...)
		}
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		result.Processed++
		if err != nil {
			fail("Row %d: %v", result.Processed, err)
			continue
		}

		in, err := parseRecordCSVRow(columns, row)
		if err != nil {
			fail("Row %d: %v", result.Processed, err)
			continue
		}

		rec, err := h.energy.AddRecord(r.Context(), tenantID, id, in)
		if errors.Is(err, services.ErrDuplicatePeriod) {
			result.Duplicates++
			continue
		}
		if err != nil {
			fail("Row %d: %v", result.Processed, err)
			continue
		}
		result.Imported++
		result.Periods = append(result.Periods, rec.Period)
	}

	h.logger.Info("Records CSV import finished",
		zap.Int("installation_id", id),
		zap.Int("imported", result.Imported),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("errors", result.Errors))
	h.audit.logToDatabase(r, "Energy Records Imported",
		fmt.Sprintf("installation %d: %d imported, %d duplicates, %d errors", id, result.Imported, result.Duplicates, result.Errors))

	writeJSON(w, http.StatusOK, result)
}
