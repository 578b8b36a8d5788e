package services

import (
	"bytes"

	"github.com/aj9599/raas-platform/models"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	invoiceSheet = "Invoices"
	summarySheet = "Summary"
)

var invoiceExportHeader = []any{
	"Number", "Customer", "Reference period", "Due date", "Status", "Basis",
	"kWh billed", "Consumption kWh", "Tariff", "Discount %", "Billed rate",
	"Total", "Gross value", "Savings", "Savings %", "CO2 kg", "Trees", "Generated at",
}

// InvoicesXLSX writes the invoice list as a workbook with a totals sheet.
// Numbers are real numeric cells rounded for display.
func InvoicesXLSX(invoices []models.Invoice) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", invoiceSheet); err != nil {
		return nil, err
	}

	sw, err := f.NewStreamWriter(invoiceSheet)
	if err != nil {
		return nil, err
	}
	if err := sw.SetColWidth(1, 1, 22); err != nil {
		return nil, err
	}
	if err := sw.SetColWidth(2, 2, 30); err != nil {
		return nil, err
	}
	if err := sw.SetColWidth(3, len(invoiceExportHeader), 14); err != nil {
		return nil, err
	}
	if err := sw.SetRow("A1", invoiceExportHeader); err != nil {
		return nil, err
	}

	var totalAmount, totalGross, totalSavings, totalKwh, totalCO2 float64
	byStatus := map[string]float64{}
	for i, inv := range invoices {
		customer := ""
		if inv.Customer != nil {
			customer = inv.Customer.Name
		}
		row := []any{
			inv.InvoiceNumber,
			customer,
			inv.ReferencePeriod,
			inv.DueDate,
			inv.Status,
			inv.CalculationBasis,
			round(inv.KwhQuantity, 0),
			round(inv.ConsumptionKwh, 0),
			round(inv.Tariff, 3),
			round(inv.DiscountPct, 2),
			round(inv.BilledRate, 3),
			round(inv.TotalAmount, 2),
			round(inv.GrossValue, 2),
			round(inv.Savings, 2),
			round(inv.SavingsPct, 2),
			round(inv.CO2Kg, 2),
			round(inv.TreesEquivalent, 0),
			inv.GeneratedAt.Format("2006-01-02 15:04"),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := sw.SetRow(cell, row); err != nil {
			return nil, err
		}

		totalAmount += inv.TotalAmount
		totalGross += inv.GrossValue
		totalSavings += inv.Savings
		totalKwh += inv.KwhQuantity
		totalCO2 += inv.CO2Kg
		byStatus[inv.Status] += inv.TotalAmount
	}
	if err := sw.Flush(); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, err
	}
	summary := [][]any{
		{"Invoices", len(invoices)},
		{"Total amount", round(totalAmount, 2)},
		{"Gross value", round(totalGross, 2)},
		{"Savings", round(totalSavings, 2)},
		{"kWh billed", round(totalKwh, 0)},
		{"CO2 avoided kg", round(totalCO2, 2)},
		{"Pending", round(byStatus[models.InvoicePending], 2)},
		{"Paid", round(byStatus[models.InvoicePaid], 2)},
		{"Overdue", round(byStatus[models.InvoiceOverdue], 2)},
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return nil, err
		}
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 20)
	_ = f.SetColWidth(summarySheet, "B", "B", 16)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
