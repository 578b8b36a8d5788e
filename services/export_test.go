package services

import (
	"bytes"
	"testing"
	"time"

	"github.com/aj9599/raas-platform/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestInvoicesXLSX(t *testing.T) {
	invoices := []models.Invoice{
		{
			InvoiceNumber:   "FAT-202403-A",
			Customer:        &models.Customer{Name: "Padaria"},
			ReferencePeriod: "03/2024",
			DueDate:         "2024-04-15",
			Status:          models.InvoicePending,
			TotalAmount:     768.004,
			GrossValue:      1200,
			Savings:         432,
			KwhQuantity:     1200,
			GeneratedAt:     time.Date(2024, 4, 5, 12, 0, 0, 0, time.UTC),
		},
		{
			InvoiceNumber: "FAT-202403-B",
			Status:        models.InvoicePaid,
			TotalAmount:   100,
		},
	}

	data, err := InvoicesXLSX(invoices)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{invoiceSheet, summarySheet}, f.GetSheetList())

	rows, err := f.GetRows(invoiceSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Number", rows[0][0])
	assert.Equal(t, "FAT-202403-A", rows[1][0])
	assert.Equal(t, "Padaria", rows[1][1])
	assert.Equal(t, "768", rows[1][11])
	assert.Equal(t, "FAT-202403-B", rows[2][0])

	count, err := f.GetCellValue(summarySheet, "B1")
	require.NoError(t, err)
	assert.Equal(t, "2", count)
	total, err := f.GetCellValue(summarySheet, "B2")
	require.NoError(t, err)
	assert.Equal(t, "868", total)
	paid, err := f.GetCellValue(summarySheet, "B8")
	require.NoError(t, err)
	assert.Equal(t, "100", paid)
}
