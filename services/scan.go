package services

import (
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/aj9599/raas-platform/models"
	"github.com/samber/lo"
)

type rowScanner interface {
	Scan(dest ...any) error
}

const CustomerColumns = `
	c.id, c.tenant_id, c.name, COALESCE(c.document, ''), COALESCE(c.email, ''), COALESCE(c.phone, ''),
	COALESCE(c.address_street, ''), COALESCE(c.address_number, ''), COALESCE(c.address_district, ''),
	COALESCE(c.address_city, ''), COALESCE(c.address_state, ''), COALESCE(c.address_postal_code, ''),
	COALESCE(c.address_country, ''), COALESCE(c.default_calculation_type, 'compensation'),
	COALESCE(c.default_discount_pct, 0), COALESCE(c.language, 'pt'), COALESCE(c.notes, ''),
	COALESCE(c.is_active, 1), c.created_at, c.updated_at`

// ScanCustomer reads a row selected with CustomerColumns.
func ScanCustomer(row rowScanner) (models.Customer, error) {
	var c models.Customer
	var isActive int
	err := row.Scan(
		&c.ID, &c.TenantID, &c.Name, &c.Document, &c.Email, &c.Phone,
		&c.Address.Street, &c.Address.Number, &c.Address.District,
		&c.Address.City, &c.Address.State, &c.Address.PostalCode,
		&c.Address.Country, &c.DefaultCalculationType,
		&c.DefaultDiscountPct, &c.Language, &c.Notes,
		&isActive, &c.CreatedAt, &c.UpdatedAt,
	)
	c.IsActive = isActive == 1
	return c, err
}

// InstallationColumns selects an installation joined with its distributor
// (alias d, LEFT JOIN) and owner (alias o, LEFT JOIN).
const InstallationColumns = `
	i.id, i.tenant_id, i.code, i.name, i.type, i.distributor_id, i.customer_id,
	COALESCE(i.address_street, ''), COALESCE(i.address_number, ''), COALESCE(i.address_district, ''),
	COALESCE(i.address_city, ''), COALESCE(i.address_state, ''), COALESCE(i.address_postal_code, ''),
	COALESCE(i.address_country, ''), COALESCE(i.is_active, 1), i.created_at, i.updated_at,
	d.id, d.name, d.price_per_kwh, o.name, o.email`

const InstallationJoins = `
	FROM installations i
	LEFT JOIN distributors d ON d.id = i.distributor_id
	LEFT JOIN customers o ON o.id = i.customer_id`

// ScanInstallation reads a row selected with InstallationColumns.
func ScanInstallation(row rowScanner) (models.Installation, error) {
	var inst models.Installation
	var isActive int
	var distID sql.NullInt64
	var distName, ownerName, ownerEmail sql.NullString
	var distPrice sql.NullFloat64

	err := row.Scan(
		&inst.ID, &inst.TenantID, &inst.Code, &inst.Name, &inst.Type, &inst.DistributorID, &inst.CustomerID,
		&inst.Address.Street, &inst.Address.Number, &inst.Address.District,
		&inst.Address.City, &inst.Address.State, &inst.Address.PostalCode,
		&inst.Address.Country, &isActive, &inst.CreatedAt, &inst.UpdatedAt,
		&distID, &distName, &distPrice, &ownerName, &ownerEmail,
	)
	if err != nil {
		return inst, err
	}

	inst.IsActive = isActive == 1
	if distID.Valid {
		inst.Distributor = &models.Distributor{
			ID:          int(distID.Int64),
			TenantID:    inst.TenantID,
			Name:        distName.String,
			PricePerKwh: distPrice.Float64,
		}
	}
	if ownerName.Valid {
		inst.Owner = &models.Customer{ID: inst.CustomerID, TenantID: inst.TenantID, Name: ownerName.String, Email: ownerEmail.String}
	}
	return inst, nil
}

const EnergyRecordColumns = `
	id, installation_id, period, consumption, generation, received, compensation, transferred,
	previous_balance, current_balance, expiring_balance_amount, COALESCE(expiring_balance_period, ''),
	quota, COALESCE(source, 'manual'), created_at`

func ScanEnergyRecord(row rowScanner) (models.EnergyRecord, error) {
	var r models.EnergyRecord
	err := row.Scan(
		&r.ID, &r.InstallationID, &r.Period, &r.Consumption, &r.Generation, &r.Received, &r.Compensation, &r.Transferred,
		&r.PreviousBalance, &r.CurrentBalance, &r.ExpiringBalanceAmount, &r.ExpiringBalancePeriod,
		&r.Quota, &r.Source, &r.CreatedAt,
	)
	return r, err
}

const invoiceColumns = `
	inv.id, inv.tenant_id, inv.invoice_number, inv.customer_id, inv.reference_period, inv.due_date,
	inv.tariff, inv.discount_pct, inv.calculation_basis, inv.kwh_quantity, inv.consumption_kwh,
	inv.billed_rate, inv.total_amount, inv.gross_value, inv.savings, inv.savings_pct,
	inv.co2_kg, inv.trees_equivalent, inv.status, COALESCE(inv.warnings, ''), COALESCE(inv.pdf_path, ''),
	inv.created_by, inv.generated_at, inv.paid_at, c.name, COALESCE(c.email, ''), COALESCE(c.phone, '')`

func scanInvoice(row rowScanner) (models.Invoice, error) {
	var inv models.Invoice
	var warnings string
	var createdBy sql.NullInt64
	var paidAt sql.NullTime
	var customerName sql.NullString
	var customerEmail, customerPhone string

	err := row.Scan(
		&inv.ID, &inv.TenantID, &inv.InvoiceNumber, &inv.CustomerID, &inv.ReferencePeriod, &inv.DueDate,
		&inv.Tariff, &inv.DiscountPct, &inv.CalculationBasis, &inv.KwhQuantity, &inv.ConsumptionKwh,
		&inv.BilledRate, &inv.TotalAmount, &inv.GrossValue, &inv.Savings, &inv.SavingsPct,
		&inv.CO2Kg, &inv.TreesEquivalent, &inv.Status, &warnings, &inv.PDFPath,
		&createdBy, &inv.GeneratedAt, &paidAt, &customerName, &customerEmail, &customerPhone,
	)
	if err != nil {
		return inv, err
	}

	inv.Warnings = []string{}
	if warnings != "" {
		_ = json.Unmarshal([]byte(warnings), &inv.Warnings)
	}
	if createdBy.Valid {
		id := int(createdBy.Int64)
		inv.CreatedBy = &id
	}
	if paidAt.Valid {
		t := paidAt.Time
		inv.PaidAt = &t
	}
	if customerName.Valid {
		inv.Customer = &models.Customer{
			ID:       inv.CustomerID,
			TenantID: inv.TenantID,
			Name:     customerName.String,
			Email:    customerEmail,
			Phone:    customerPhone,
		}
	}
	return inv, nil
}

// inClause returns "?,?,?" and the matching arguments.
func inClause(ids []int) (string, []any) {
	marks := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	return marks, lo.ToAnySlice(ids)
}
