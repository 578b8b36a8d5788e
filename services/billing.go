package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/aj9599/raas-platform/metrics"
	"github.com/aj9599/raas-platform/models"
	"github.com/aj9599/raas-platform/services/calc"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const dueDateLayout = "2006-01-02"

const WarningTariffNotLoaded = "distributor tariff not loaded, using the default rate"

type BillingService struct {
	db      *sql.DB
	logger  *zap.Logger
	numbers *NumberGenerator
	dueDays int
	now     func() time.Time
}

func NewBillingService(db *sql.DB, logger *zap.Logger, numbers *NumberGenerator, dueDays int) *BillingService {
	return &BillingService{
		db:      db,
		logger:  logger,
		numbers: numbers,
		dueDays: dueDays,
		now:     time.Now,
	}
}

type ClientDataRequest struct {
	CustomerID      int    `json:"customer_id"`
	InstallationIDs []int  `json:"installation_ids"`
	Period          string `json:"period"`
}

type InstallationData struct {
	models.Installation
	Record  *models.EnergyRecord  `json:"record"`
	History []models.EnergyRecord `json:"history"`
}

// ClientData is everything the invoice form needs once a customer is picked.
type ClientData struct {
	Customer      models.Customer       `json:"customer"`
	Installations []InstallationData    `json:"installations"`
	Periods       []string              `json:"periods"`
	Tariff        calc.TariffResolution `json:"tariff"`
	Basis         calc.BasisSelection   `json:"basis"`
	DiscountPct   float64               `json:"discount_pct"`
}

type InvoiceRequest struct {
	CustomerID       int      `json:"customer_id"`
	InstallationIDs  []int    `json:"installation_ids"`
	Period           string   `json:"period"`
	DiscountPct      *float64 `json:"discount_pct"`
	CalculationBasis *string  `json:"calculation_basis"`
	DueDate          string   `json:"due_date"`
}

// Validate rejects input the calculator must never see.
func (r *InvoiceRequest) Validate() error {
	if r.CustomerID <= 0 {
		return invalidf("customer_id is required")
	}
	r.InstallationIDs = lo.Uniq(r.InstallationIDs)
	if len(r.InstallationIDs) == 0 {
		return invalidf("at least one installation is required")
	}
	if _, _, err := ParsePeriod(r.Period); err != nil {
		return err
	}
	if r.DiscountPct != nil {
		if err := ValidateDiscount(*r.DiscountPct); err != nil {
			return err
		}
	}
	if r.CalculationBasis != nil && *r.CalculationBasis != "" {
		if _, ok := calc.ParseBasis(*r.CalculationBasis); !ok {
			return invalidf("calculation_basis must be compensation or receipt")
		}
	}
	if r.DueDate != "" {
		if _, err := time.Parse(dueDateLayout, r.DueDate); err != nil {
			return invalidf("due_date must be YYYY-MM-DD")
		}
	}
	return nil
}

// ValidateDiscount accepts a percentage in [0,100].
func ValidateDiscount(pct float64) error {
	if math.IsNaN(pct) || pct < 0 || pct > 100 {
		return invalidf("discount must be between 0 and 100")
	}
	return nil
}

// ValidateQuantity accepts finite, non-negative kWh values.
func ValidateQuantity(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return invalidf("%s must be a non-negative number", name)
	}
	return nil
}

// InvoicePreview is the computed invoice before it is stored.
type InvoicePreview struct {
	CustomerID      int                          `json:"customer_id"`
	CustomerName    string                       `json:"customer_name"`
	ReferencePeriod string                       `json:"reference_period"`
	DueDate         string                       `json:"due_date"`
	DiscountPct     float64                      `json:"discount_pct"`
	Tariff          calc.TariffResolution        `json:"tariff"`
	Basis           calc.BasisSelection          `json:"basis"`
	Totals          calc.EnergyTotals            `json:"totals"`
	Calculation     calc.Calculation             `json:"calculation"`
	Impact          calc.Impact                  `json:"impact"`
	Display         calc.Display                 `json:"display"`
	Installations   []models.InvoiceInstallation `json:"installations"`
	Warnings        []string                     `json:"warnings"`
}

func (bs *BillingService) ClientData(ctx context.Context, tenantID int, req ClientDataRequest) (*ClientData, error) {
	if req.CustomerID <= 0 {
		return nil, invalidf("customer_id is required")
	}
	if req.Period != "" {
		if _, _, err := ParsePeriod(req.Period); err != nil {
			return nil, err
		}
	}

	customer, err := bs.loadCustomer(ctx, tenantID, req.CustomerID)
	if err != nil {
		return nil, err
	}

	var installations []models.Installation
	if len(req.InstallationIDs) > 0 {
		installations, err = bs.loadSelection(ctx, tenantID, customer.ID, lo.Uniq(req.InstallationIDs))
	} else {
		installations, err = bs.customerInstallations(ctx, tenantID, customer.ID)
	}
	if err != nil {
		return nil, err
	}

	ids := lo.Map(installations, func(i models.Installation, _ int) int { return i.ID })
	history, err := bs.recordsByInstallation(ctx, ids)
	if err != nil {
		return nil, err
	}

	data := &ClientData{
		Customer:      *customer,
		Installations: make([]InstallationData, 0, len(installations)),
		Tariff:        calc.ResolveTariff(tariffsOf(installations)),
		Basis:         calc.SelectBasis(calc.Basis(customer.DefaultCalculationType), nil),
		DiscountPct:   customer.DefaultDiscountPct,
	}

	periods := map[string]string{}
	for _, inst := range installations {
		records := history[inst.ID]
		item := InstallationData{Installation: inst, History: records}
		if item.History == nil {
			item.History = []models.EnergyRecord{}
		}
		for i := range records {
			periods[PeriodKey(records[i].Period)] = records[i].Period
			if req.Period != "" && records[i].Period == req.Period {
				item.Record = &records[i]
			}
		}
		// newest first, so without a period the latest record is used
		if req.Period == "" && len(records) > 0 {
			item.Record = &records[0]
		}
		data.Installations = append(data.Installations, item)
	}

	keys := lo.Keys(periods)
	slices.Sort(keys)
	slices.Reverse(keys)
	data.Periods = lo.Map(keys, func(k string, _ int) string { return periods[k] })
	return data, nil
}

// Preview computes an invoice without storing it.
func (bs *BillingService) Preview(ctx context.Context, tenantID int, req InvoiceRequest) (*InvoicePreview, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return bs.compute(ctx, tenantID, req)
}

// Generate computes and stores an invoice. Repeated submissions create
// separate invoices.
func (bs *BillingService) Generate(ctx context.Context, tenantID int, createdBy int, req InvoiceRequest) (*models.Invoice, error) {
	inv, err := bs.generate(ctx, tenantID, createdBy, req)
	if inv != nil {
		metrics.InvoiceGenerated(err, inv.TotalAmount)
	} else {
		metrics.InvoiceGenerated(err, 0)
	}
	return inv, err
}

func (bs *BillingService) generate(ctx context.Context, tenantID int, createdBy int, req InvoiceRequest) (*models.Invoice, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	preview, err := bs.compute(ctx, tenantID, req)
	if err != nil {
		return nil, err
	}

	warnings, _ := json.Marshal(preview.Warnings)
	number := bs.numbers.InvoiceNumber(preview.ReferencePeriod)
	c := preview.Calculation

	tx, err := bs.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var creator any
	if createdBy > 0 {
		creator = createdBy
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO invoices (
			tenant_id, invoice_number, customer_id, reference_period, due_date,
			tariff, discount_pct, calculation_basis, kwh_quantity, consumption_kwh,
			billed_rate, total_amount, gross_value, savings, savings_pct,
			co2_kg, trees_equivalent, status, warnings, created_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tenantID, number, preview.CustomerID, preview.ReferencePeriod, preview.DueDate,
		preview.Tariff.Tariff, preview.DiscountPct, string(preview.Basis.Basis), preview.Totals.Billable, preview.Totals.Consumption,
		c.BilledRate, c.TotalAmount, c.GrossValue, c.Savings, c.SavingsPct,
		preview.Impact.CO2Kg, preview.Impact.TreesEquivalent, models.InvoicePending, string(warnings), creator)
	if err != nil {
		return nil, fmt.Errorf("insert invoice: %w", err)
	}
	invoiceID, _ := result.LastInsertId()

	for _, item := range preview.Installations {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO invoice_installations (invoice_id, installation_id, record_id)
			VALUES (?, ?, ?)
		`, invoiceID, item.InstallationID, item.RecordID); err != nil {
			return nil, fmt.Errorf("insert invoice installation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	bs.logger.Info("[BILLING] Invoice generated",
		zap.Int("tenant_id", tenantID),
		zap.String("invoice_number", number),
		zap.Int("customer_id", preview.CustomerID),
		zap.String("period", preview.ReferencePeriod),
		zap.Float64("total_amount", c.TotalAmount),
		zap.Strings("warnings", preview.Warnings))

	return bs.GetInvoice(ctx, tenantID, int(invoiceID))
}

func (bs *BillingService) compute(ctx context.Context, tenantID int, req InvoiceRequest) (*InvoicePreview, error) {
	customer, err := bs.loadCustomer(ctx, tenantID, req.CustomerID)
	if err != nil {
		return nil, err
	}

	installations, err := bs.loadSelection(ctx, tenantID, customer.ID, req.InstallationIDs)
	if err != nil {
		return nil, err
	}

	records, err := bs.recordsForPeriod(ctx, req.InstallationIDs, req.Period)
	if err != nil {
		return nil, err
	}

	preview := &InvoicePreview{
		CustomerID:      customer.ID,
		CustomerName:    customer.Name,
		ReferencePeriod: req.Period,
		Installations:   []models.InvoiceInstallation{},
		Warnings:        []string{},
	}

	preview.Tariff = calc.ResolveTariff(tariffsOf(installations))
	preview.Warnings = append(preview.Warnings, preview.Tariff.Warnings...)
	if preview.Tariff.Placeholder {
		preview.Warnings = append(preview.Warnings, WarningTariffNotLoaded)
	}

	var override *calc.Basis
	if req.CalculationBasis != nil && *req.CalculationBasis != "" {
		b := calc.Basis(*req.CalculationBasis)
		override = &b
	}
	preview.Basis = calc.SelectBasis(calc.Basis(customer.DefaultCalculationType), override)
	if preview.Basis.Warning != "" {
		preview.Warnings = append(preview.Warnings, preview.Basis.Warning)
	}

	energy := make([]calc.Energy, 0, len(installations))
	for _, inst := range installations {
		rec, ok := records[inst.ID]
		if !ok {
			preview.Warnings = append(preview.Warnings,
				fmt.Sprintf("no energy record for installation %s in %s", inst.Code, req.Period))
			continue
		}
		energy = append(energy, calc.Energy{
			Consumption:  rec.Consumption,
			Received:     rec.Received,
			Compensation: rec.Compensation,
		})
		preview.Installations = append(preview.Installations, models.InvoiceInstallation{
			InstallationID: inst.ID,
			RecordID:       rec.ID,
			Code:           inst.Code,
			Name:           inst.Name,
			Consumption:    rec.Consumption,
			Received:       rec.Received,
			Compensation:   rec.Compensation,
		})
	}
	if len(energy) == 0 {
		return nil, ErrNoEnergyRecords
	}

	preview.DiscountPct = customer.DefaultDiscountPct
	if req.DiscountPct != nil {
		preview.DiscountPct = *req.DiscountPct
	}

	preview.Totals = calc.SumEnergy(energy, preview.Basis.Basis)
	preview.Calculation = calc.Calculate(calc.CalculationInput{
		Tariff:         preview.Tariff.Tariff,
		DiscountPct:    preview.DiscountPct,
		KwhQuantity:    preview.Totals.Billable,
		ConsumptionKwh: preview.Totals.Consumption,
	})
	preview.Impact = calc.EstimateImpact(preview.Totals.Billable)
	preview.Display = calc.NewDisplay(preview.Calculation, preview.Totals.Billable, preview.Impact)

	preview.DueDate = req.DueDate
	if preview.DueDate == "" {
		preview.DueDate = bs.now().AddDate(0, 0, bs.dueDays).Format(dueDateLayout)
	}
	return preview, nil
}

func (bs *BillingService) GetInvoice(ctx context.Context, tenantID, id int) (*models.Invoice, error) {
	inv, err := scanInvoice(bs.db.QueryRowContext(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices inv
		LEFT JOIN customers c ON c.id = inv.customer_id
		WHERE inv.id = ? AND inv.tenant_id = ?
	`, id, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := bs.db.QueryContext(ctx, `
		SELECT ii.installation_id, ii.record_id, i.code, i.name, r.consumption, r.received, r.compensation
		FROM invoice_installations ii
		JOIN installations i ON i.id = ii.installation_id
		JOIN energy_records r ON r.id = ii.record_id
		WHERE ii.invoice_id = ?
		ORDER BY i.code
	`, inv.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	inv.Installations = []models.InvoiceInstallation{}
	for rows.Next() {
		item := models.InvoiceInstallation{InvoiceID: inv.ID}
		if err := rows.Scan(&item.InstallationID, &item.RecordID, &item.Code, &item.Name,
			&item.Consumption, &item.Received, &item.Compensation); err != nil {
			return nil, err
		}
		inv.Installations = append(inv.Installations, item)
	}
	return &inv, rows.Err()
}

var invoiceSortColumns = map[string]string{
	"invoice_number":   "inv.invoice_number",
	"customer":         "c.name",
	"reference_period": "inv.reference_period",
	"due_date":         "inv.due_date",
	"total_amount":     "inv.total_amount",
	"status":           "inv.status",
	"generated_at":     "inv.generated_at",
}

// ListInvoices returns one page of invoices. A customer-scoped caller passes
// its customer id in params.CustomerID.
func (bs *BillingService) ListInvoices(ctx context.Context, tenantID int, params models.ListParams) (models.Page[models.Invoice], error) {
	params.Normalize()
	page := models.Page[models.Invoice]{Items: []models.Invoice{}, Page: params.Page, PageSize: params.PageSize}

	where, args := invoiceFilter(tenantID, params)
	if err := bs.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM invoices inv LEFT JOIN customers c ON c.id = inv.customer_id WHERE `+where,
		args...).Scan(&page.Total); err != nil {
		return page, err
	}

	query := `SELECT ` + invoiceColumns + `
		FROM invoices inv
		LEFT JOIN customers c ON c.id = inv.customer_id
		WHERE ` + where + `
		ORDER BY ` + params.OrderBy(invoiceSortColumns, "inv.generated_at") + `, inv.id DESC
		LIMIT ? OFFSET ?`
	items, err := bs.queryInvoices(ctx, query, append(args, params.PageSize, params.Offset())...)
	if err != nil {
		return page, err
	}
	page.Items = items
	return page, nil
}

// AllInvoices is ListInvoices without pagination, for exports.
func (bs *BillingService) AllInvoices(ctx context.Context, tenantID int, params models.ListParams) ([]models.Invoice, error) {
	params.Normalize()
	where, args := invoiceFilter(tenantID, params)
	return bs.queryInvoices(ctx, `SELECT `+invoiceColumns+`
		FROM invoices inv
		LEFT JOIN customers c ON c.id = inv.customer_id
		WHERE `+where+`
		ORDER BY `+params.OrderBy(invoiceSortColumns, "inv.generated_at")+`, inv.id DESC`, args...)
}

func invoiceFilter(tenantID int, params models.ListParams) (string, []any) {
	conditions := []string{"inv.tenant_id = ?"}
	args := []any{tenantID}

	if params.Status != "" {
		conditions = append(conditions, "inv.status = ?")
		args = append(args, params.Status)
	}
	if params.CustomerID > 0 {
		conditions = append(conditions, "inv.customer_id = ?")
		args = append(args, params.CustomerID)
	}
	if params.Period != "" {
		conditions = append(conditions, "inv.reference_period = ?")
		args = append(args, params.Period)
	}
	if params.Search != "" {
		like := "%" + params.Search + "%"
		conditions = append(conditions, "(inv.invoice_number LIKE ? OR c.name LIKE ?)")
		args = append(args, like, like)
	}
	return strings.Join(conditions, " AND "), args
}

func (bs *BillingService) queryInvoices(ctx context.Context, query string, args ...any) ([]models.Invoice, error) {
	rows, err := bs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := []models.Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			bs.logger.Warn("[BILLING] Error scanning invoice", zap.Error(err))
			continue
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// UpdateStatus moves an invoice between pending, paid and overdue. A paid
// invoice can be reopened but never marked overdue.
func (bs *BillingService) UpdateStatus(ctx context.Context, tenantID, id int, status string) (*models.Invoice, error) {
	switch status {
	case models.InvoicePending, models.InvoicePaid, models.InvoiceOverdue:
	default:
		return nil, invalidf("status must be pending, paid or overdue")
	}

	inv, err := bs.GetInvoice(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == status {
		return inv, nil
	}
	if inv.Status == models.InvoicePaid && status == models.InvoiceOverdue {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, inv.Status, status)
	}

	var paidAt any
	if status == models.InvoicePaid {
		paidAt = bs.now().UTC()
	}
	if _, err := bs.db.ExecContext(ctx, `
		UPDATE invoices SET status = ?, paid_at = ? WHERE id = ? AND tenant_id = ?
	`, status, paidAt, id, tenantID); err != nil {
		return nil, err
	}
	return bs.GetInvoice(ctx, tenantID, id)
}

func (bs *BillingService) DeleteInvoice(ctx context.Context, tenantID, id int) error {
	inv, err := bs.GetInvoice(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if _, err := bs.db.ExecContext(ctx, `DELETE FROM invoices WHERE id = ? AND tenant_id = ?`, id, tenantID); err != nil {
		return err
	}
	if inv.PDFPath != "" {
		if err := os.Remove(inv.PDFPath); err != nil && !os.IsNotExist(err) {
			bs.logger.Warn("[BILLING] Could not remove invoice PDF", zap.String("path", inv.PDFPath), zap.Error(err))
		}
	}
	return nil
}

func (bs *BillingService) SetPDFPath(ctx context.Context, tenantID, id int, path string) error {
	_, err := bs.db.ExecContext(ctx, `UPDATE invoices SET pdf_path = ? WHERE id = ? AND tenant_id = ?`, path, id, tenantID)
	return err
}

// MarkOverdue flags pending invoices whose due date has passed.
func (bs *BillingService) MarkOverdue(ctx context.Context, today time.Time) (int64, error) {
	result, err := bs.db.ExecContext(ctx, `
		UPDATE invoices SET status = ?
		WHERE status = ? AND due_date < ?
	`, models.InvoiceOverdue, models.InvoicePending, today.Format(dueDateLayout))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type PeriodSummary struct {
	Period      string       `json:"period"`
	Consumption float64      `json:"consumption"`
	Billable    float64      `json:"billable"`
	Summary     calc.Summary `json:"summary"`
	Impact      calc.Impact  `json:"impact"`
}

// InstallationSummary is the historical savings view of one installation.
type InstallationSummary struct {
	InstallationID   int             `json:"installation_id"`
	Code             string          `json:"code"`
	Basis            calc.Basis      `json:"basis"`
	Tariff           float64         `json:"tariff"`
	DiscountPct      float64         `json:"discount_pct"`
	Periods          []PeriodSummary `json:"periods"`
	TotalConsumption float64         `json:"total_consumption"`
	TotalBillable    float64         `json:"total_billable"`
	Totals           calc.Summary    `json:"totals"`
	Impact           calc.Impact     `json:"impact"`
}

func (bs *BillingService) InstallationSummary(ctx context.Context, tenantID, installationID int, discountPct *float64) (*InstallationSummary, error) {
	inst, err := scanOneInstallation(ctx, bs.db, tenantID, installationID)
	if err != nil {
		return nil, err
	}
	customer, err := bs.loadCustomer(ctx, tenantID, inst.CustomerID)
	if err != nil {
		return nil, err
	}

	history, err := bs.recordsByInstallation(ctx, []int{inst.ID})
	if err != nil {
		return nil, err
	}

	tariff := calc.ResolveTariff(tariffsOf([]models.Installation{*inst}))
	basis := calc.SelectBasis(calc.Basis(customer.DefaultCalculationType), nil).Basis
	discount := customer.DefaultDiscountPct
	if discountPct != nil {
		discount = *discountPct
	}

	summary := &InstallationSummary{
		InstallationID: inst.ID,
		Code:           inst.Code,
		Basis:          basis,
		Tariff:         tariff.Tariff,
		DiscountPct:    discount,
		Periods:        []PeriodSummary{},
	}

	// oldest first for the chart
	records := lo.Reverse(history[inst.ID])
	for _, rec := range records {
		e := calc.Energy{Consumption: rec.Consumption, Received: rec.Received, Compensation: rec.Compensation}
		kwh := basis.Quantity(e)
		summary.Periods = append(summary.Periods, PeriodSummary{
			Period:      rec.Period,
			Consumption: rec.Consumption,
			Billable:    kwh,
			Summary: calc.SummarySavings(calc.CalculationInput{
				Tariff: tariff.Tariff, DiscountPct: discount, KwhQuantity: kwh, ConsumptionKwh: rec.Consumption,
			}),
			Impact: calc.EstimateImpact(kwh),
		})
		summary.TotalConsumption += rec.Consumption
		summary.TotalBillable += kwh
	}

	summary.Totals = calc.SummarySavings(calc.CalculationInput{
		Tariff:         tariff.Tariff,
		DiscountPct:    discount,
		KwhQuantity:    summary.TotalBillable,
		ConsumptionKwh: summary.TotalConsumption,
	})
	summary.Impact = calc.EstimateImpact(summary.TotalBillable)
	return summary, nil
}

func (bs *BillingService) loadCustomer(ctx context.Context, tenantID, id int) (*models.Customer, error) {
	c, err := ScanCustomer(bs.db.QueryRowContext(ctx, `
		SELECT `+CustomerColumns+` FROM customers c WHERE c.id = ? AND c.tenant_id = ?
	`, id, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("customer %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// loadSelection returns the installations in the order they were selected.
// The order matters: the first one decides the tariff.
func (bs *BillingService) loadSelection(ctx context.Context, tenantID, customerID int, ids []int) ([]models.Installation, error) {
	marks, args := inClause(ids)
	rows, err := bs.db.QueryContext(ctx, `
		SELECT `+InstallationColumns+InstallationJoins+`
		WHERE i.tenant_id = ? AND i.id IN (`+marks+`)
	`, append([]any{tenantID}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := map[int]models.Installation{}
	for rows.Next() {
		inst, err := ScanInstallation(rows)
		if err != nil {
			return nil, err
		}
		byID[inst.ID] = inst
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	selected := make([]models.Installation, 0, len(ids))
	for _, id := range ids {
		inst, ok := byID[id]
		if !ok {
			return nil, invalidf("installation %d not found", id)
		}
		if inst.CustomerID != customerID {
			return nil, invalidf("installation %s does not belong to the customer", inst.Code)
		}
		selected = append(selected, inst)
	}
	return selected, nil
}

func (bs *BillingService) customerInstallations(ctx context.Context, tenantID, customerID int) ([]models.Installation, error) {
	rows, err := bs.db.QueryContext(ctx, `
		SELECT `+InstallationColumns+InstallationJoins+`
		WHERE i.tenant_id = ? AND i.customer_id = ? AND COALESCE(i.is_active, 1) = 1
		ORDER BY i.code
	`, tenantID, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	installations := []models.Installation{}
	for rows.Next() {
		inst, err := ScanInstallation(rows)
		if err != nil {
			return nil, err
		}
		installations = append(installations, inst)
	}
	return installations, rows.Err()
}

func (bs *BillingService) recordsForPeriod(ctx context.Context, installationIDs []int, period string) (map[int]models.EnergyRecord, error) {
	marks, args := inClause(installationIDs)
	rows, err := bs.db.QueryContext(ctx, `
		SELECT `+EnergyRecordColumns+` FROM energy_records
		WHERE installation_id IN (`+marks+`) AND period = ?
	`, append(args, period)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := map[int]models.EnergyRecord{}
	for rows.Next() {
		rec, err := ScanEnergyRecord(rows)
		if err != nil {
			return nil, err
		}
		records[rec.InstallationID] = rec
	}
	return records, rows.Err()
}

// recordsByInstallation returns each installation's history, newest first.
func (bs *BillingService) recordsByInstallation(ctx context.Context, installationIDs []int) (map[int][]models.EnergyRecord, error) {
	out := map[int][]models.EnergyRecord{}
	if len(installationIDs) == 0 {
		return out, nil
	}
	marks, args := inClause(installationIDs)
	rows, err := bs.db.QueryContext(ctx, `
		SELECT `+EnergyRecordColumns+` FROM energy_records
		WHERE installation_id IN (`+marks+`)
		ORDER BY period_key DESC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := ScanEnergyRecord(rows)
		if err != nil {
			return nil, err
		}
		out[rec.InstallationID] = append(out[rec.InstallationID], rec)
	}
	return out, rows.Err()
}

func scanOneInstallation(ctx context.Context, db *sql.DB, tenantID, id int) (*models.Installation, error) {
	inst, err := ScanInstallation(db.QueryRowContext(ctx, `
		SELECT `+InstallationColumns+InstallationJoins+`
		WHERE i.id = ? AND i.tenant_id = ?
	`, id, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("installation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

// tariffsOf keeps the selection order. A distributor without a positive
// price counts as not loaded.
func tariffsOf(installations []models.Installation) []calc.InstallationTariff {
	return lo.Map(installations, func(inst models.Installation, _ int) calc.InstallationTariff {
		t := calc.InstallationTariff{InstallationID: inst.ID, DistributorID: inst.DistributorID}
		if inst.Distributor != nil && inst.Distributor.PricePerKwh > 0 {
			price := inst.Distributor.PricePerKwh
			t.PricePerKwh = &price
		}
		return t
	})
}
