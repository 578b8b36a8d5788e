package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/aj9599/raas-platform/models"
	"github.com/aj9599/raas-platform/services/calc"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type billingFixture struct {
	db         *sql.DB
	svc        *BillingService
	customerID int
	unitA      int
	unitB      int
}

func newBillingFixture(t *testing.T) billingFixture {
	t.Helper()
	db := newTestDB(t)
	svc := NewBillingService(db, zap.NewNop(), newTestNumbers(t), 10)
	svc.now = func() time.Time { return time.Date(2024, 4, 5, 12, 0, 0, 0, time.UTC) }

	customerID := seedCustomer(t, db, "Padaria Boa Vista", "compensation", 20)
	distributor := seedDistributor(t, db, "Enel SP", 0.8)
	unitA := seedInstallation(t, db, "UC-001", models.InstallationConsumer, distributor, customerID)
	unitB := seedInstallation(t, db, "UC-002", models.InstallationConsumer, distributor, customerID)
	seedRecord(t, db, unitA, "03/2024", 1000, 900, 800)
	seedRecord(t, db, unitB, "03/2024", 500, 450, 400)

	return billingFixture{db: db, svc: svc, customerID: customerID, unitA: unitA, unitB: unitB}
}

func TestGenerate_SumsSelectedInstallations(t *testing.T) {
	f := newBillingFixture(t)

	inv, err := f.svc.Generate(context.Background(), testTenant, 1, InvoiceRequest{
		CustomerID:      f.customerID,
		InstallationIDs: []int{f.unitA, f.unitB},
		Period:          "03/2024",
	})
	require.NoError(t, err)

	assert.Equal(t, "pending", inv.Status)
	assert.Equal(t, "compensation", inv.CalculationBasis)
	assert.Equal(t, "2024-04-15", inv.DueDate)
	assert.Regexp(t, `^FAT-202403-[0-9a-z]+$`, inv.InvoiceNumber)
	assert.InDelta(t, 0.8, inv.Tariff, 1e-12)
	assert.InDelta(t, 20, inv.DiscountPct, 1e-12)
	assert.InDelta(t, 1200, inv.KwhQuantity, 1e-9)
	assert.InDelta(t, 1500, inv.ConsumptionKwh, 1e-9)
	assert.InDelta(t, 0.64, inv.BilledRate, 1e-12)
	assert.InDelta(t, 768, inv.TotalAmount, 1e-9)
	assert.InDelta(t, 1200, inv.GrossValue, 1e-9)
	assert.InDelta(t, 432, inv.Savings, 1e-9)
	assert.InDelta(t, 36, inv.SavingsPct, 1e-9)
	assert.InDelta(t, 108, inv.CO2Kg, 1e-9)
	assert.Empty(t, inv.Warnings)
	require.Len(t, inv.Installations, 2)
	assert.Equal(t, "UC-001", inv.Installations[0].Code)
	require.NotNil(t, inv.Customer)
	assert.Equal(t, "Padaria Boa Vista", inv.Customer.Name)
}

func TestGenerate_RepeatedSubmissionsCreateSeparateInvoices(t *testing.T) {
	f := newBillingFixture(t)
	req := InvoiceRequest{CustomerID: f.customerID, InstallationIDs: []int{f.unitA}, Period: "03/2024"}

	first, err := f.svc.Generate(context.Background(), testTenant, 1, req)
	require.NoError(t, err)
	second, err := f.svc.Generate(context.Background(), testTenant, 1, req)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.InvoiceNumber, second.InvoiceNumber)
}

func TestPreview_BasisOverrideIsNotPersisted(t *testing.T) {
	f := newBillingFixture(t)

	preview, err := f.svc.Preview(context.Background(), testTenant, InvoiceRequest{
		CustomerID:       f.customerID,
		InstallationIDs:  []int{f.unitA, f.unitB},
		Period:           "03/2024",
		CalculationBasis: lo.ToPtr("receipt"),
		DiscountPct:      lo.ToPtr(0.0),
	})
	require.NoError(t, err)

	assert.Equal(t, calc.BasisReceipt, preview.Basis.Basis)
	assert.Contains(t, preview.Warnings, calc.WarningBasisOverride)
	assert.InDelta(t, 1350, preview.Totals.Billable, 1e-9)
	assert.InDelta(t, 1080, preview.Calculation.TotalAmount, 1e-9)

	var stored string
	require.NoError(t, f.db.QueryRow(`SELECT default_calculation_type FROM customers WHERE id = ?`, f.customerID).Scan(&stored))
	assert.Equal(t, "compensation", stored)
}

func TestPreview_MixedDistributorsUseFirstSelected(t *testing.T) {
	f := newBillingFixture(t)
	other := seedDistributor(t, f.db, "CPFL", 0.9)
	unitC := seedInstallation(t, f.db, "UC-003", models.InstallationConsumer, other, f.customerID)
	seedRecord(t, f.db, unitC, "03/2024", 100, 100, 100)

	preview, err := f.svc.Preview(context.Background(), testTenant, InvoiceRequest{
		CustomerID:      f.customerID,
		InstallationIDs: []int{unitC, f.unitA},
		Period:          "03/2024",
	})
	require.NoError(t, err)

	assert.InDelta(t, 0.9, preview.Tariff.Tariff, 1e-12)
	assert.Contains(t, preview.Warnings, calc.WarningMixedDistributors)
}

func TestPreview_TariffNotLoadedUsesPlaceholder(t *testing.T) {
	f := newBillingFixture(t)
	unloaded := seedDistributor(t, f.db, "Nova", 0)
	unit := seedInstallation(t, f.db, "UC-009", models.InstallationConsumer, unloaded, f.customerID)
	seedRecord(t, f.db, unit, "03/2024", 100, 100, 100)

	preview, err := f.svc.Preview(context.Background(), testTenant, InvoiceRequest{
		CustomerID:      f.customerID,
		InstallationIDs: []int{unit},
		Period:          "03/2024",
	})
	require.NoError(t, err)

	assert.True(t, preview.Tariff.Placeholder)
	assert.InDelta(t, calc.DefaultTariff, preview.Tariff.Tariff, 1e-12)
	assert.Contains(t, preview.Warnings, WarningTariffNotLoaded)
}

func TestPreview_MissingRecords(t *testing.T) {
	f := newBillingFixture(t)
	seedRecord(t, f.db, f.unitA, "04/2024", 10, 10, 10)

	preview, err := f.svc.Preview(context.Background(), testTenant, InvoiceRequest{
		CustomerID:      f.customerID,
		InstallationIDs: []int{f.unitA, f.unitB},
		Period:          "04/2024",
	})
	require.NoError(t, err)
	assert.Len(t, preview.Installations, 1)
	assert.Len(t, preview.Warnings, 1)

	_, err = f.svc.Preview(context.Background(), testTenant, InvoiceRequest{
		CustomerID:      f.customerID,
		InstallationIDs: []int{f.unitB},
		Period:          "04/2024",
	})
	assert.ErrorIs(t, err, ErrNoEnergyRecords)
}

func TestInvoiceRequest_Validation(t *testing.T) {
	f := newBillingFixture(t)
	stranger := seedCustomer(t, f.db, "Outro Cliente", "compensation", 0)
	foreign := seedInstallation(t, f.db, "UC-777", models.InstallationConsumer, 1, stranger)

	cases := map[string]InvoiceRequest{
		"no installations":  {CustomerID: f.customerID, Period: "03/2024"},
		"bad period":        {CustomerID: f.customerID, InstallationIDs: []int{f.unitA}, Period: "2024-03"},
		"discount > 100":    {CustomerID: f.customerID, InstallationIDs: []int{f.unitA}, Period: "03/2024", DiscountPct: lo.ToPtr(120.0)},
		"negative discount": {CustomerID: f.customerID, InstallationIDs: []int{f.unitA}, Period: "03/2024", DiscountPct: lo.ToPtr(-1.0)},
		"unknown basis":     {CustomerID: f.customerID, InstallationIDs: []int{f.unitA}, Period: "03/2024", CalculationBasis: lo.ToPtr("average")},
		"bad due date":      {CustomerID: f.customerID, InstallationIDs: []int{f.unitA}, Period: "03/2024", DueDate: "15/04/2024"},
		"foreign unit":      {CustomerID: f.customerID, InstallationIDs: []int{foreign}, Period: "03/2024"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Preview(context.Background(), testTenant, req)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	_, err := f.svc.Preview(context.Background(), testTenant, InvoiceRequest{
		CustomerID: 999, InstallationIDs: []int{f.unitA}, Period: "03/2024",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatus(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	inv, err := f.svc.Generate(ctx, testTenant, 1, InvoiceRequest{
		CustomerID: f.customerID, InstallationIDs: []int{f.unitA}, Period: "03/2024",
	})
	require.NoError(t, err)

	paid, err := f.svc.UpdateStatus(ctx, testTenant, inv.ID, models.InvoicePaid)
	require.NoError(t, err)
	assert.Equal(t, models.InvoicePaid, paid.Status)
	assert.NotNil(t, paid.PaidAt)

	_, err = f.svc.UpdateStatus(ctx, testTenant, inv.ID, models.InvoiceOverdue)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.UpdateStatus(ctx, testTenant, inv.ID, "cancelled")
	assert.ErrorIs(t, err, ErrInvalidInput)

	reopened, err := f.svc.UpdateStatus(ctx, testTenant, inv.ID, models.InvoicePending)
	require.NoError(t, err)
	assert.Nil(t, reopened.PaidAt)
}

func TestMarkOverdue(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	inv, err := f.svc.Generate(ctx, testTenant, 1, InvoiceRequest{
		CustomerID: f.customerID, InstallationIDs: []int{f.unitA}, Period: "03/2024", DueDate: "2024-04-10",
	})
	require.NoError(t, err)

	n, err := f.svc.MarkOverdue(ctx, time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.svc.MarkOverdue(ctx, time.Date(2024, 4, 11, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := f.svc.GetInvoice(ctx, testTenant, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceOverdue, got.Status)
}

func TestListInvoices_FiltersAndPages(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.svc.Generate(ctx, testTenant, 1, InvoiceRequest{
			CustomerID: f.customerID, InstallationIDs: []int{f.unitA}, Period: "03/2024",
		})
		require.NoError(t, err)
	}
	other := seedCustomer(t, f.db, "Mercado Central", "receipt", 10)
	unit := seedInstallation(t, f.db, "UC-050", models.InstallationConsumer, 1, other)
	seedRecord(t, f.db, unit, "03/2024", 200, 200, 150)
	_, err := f.svc.Generate(ctx, testTenant, 1, InvoiceRequest{
		CustomerID: other, InstallationIDs: []int{unit}, Period: "03/2024",
	})
	require.NoError(t, err)

	page, err := f.svc.ListInvoices(ctx, testTenant, models.ListParams{PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Len(t, page.Items, 2)

	page, err = f.svc.ListInvoices(ctx, testTenant, models.ListParams{CustomerID: other})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = f.svc.ListInvoices(ctx, testTenant, models.ListParams{Search: "Mercado"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = f.svc.ListInvoices(ctx, testTenant, models.ListParams{Status: models.InvoicePaid})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.NotNil(t, page.Items)
}

func TestDeleteInvoice(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	inv, err := f.svc.Generate(ctx, testTenant, 1, InvoiceRequest{
		CustomerID: f.customerID, InstallationIDs: []int{f.unitA}, Period: "03/2024",
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteInvoice(ctx, testTenant, inv.ID))
	_, err = f.svc.GetInvoice(ctx, testTenant, inv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.svc.DeleteInvoice(ctx, testTenant, inv.ID), ErrNotFound)
}

func TestClientData(t *testing.T) {
	f := newBillingFixture(t)
	seedRecord(t, f.db, f.unitA, "12/2023", 900, 800, 700)
	seedRecord(t, f.db, f.unitA, "01/2024", 950, 850, 750)

	data, err := f.svc.ClientData(context.Background(), testTenant, ClientDataRequest{CustomerID: f.customerID})
	require.NoError(t, err)

	assert.Equal(t, []string{"03/2024", "01/2024", "12/2023"}, data.Periods)
	assert.InDelta(t, 20, data.DiscountPct, 1e-12)
	assert.Equal(t, calc.BasisCompensation, data.Basis.Basis)
	require.Len(t, data.Installations, 2)
	require.NotNil(t, data.Installations[0].Record)
	assert.Equal(t, "03/2024", data.Installations[0].Record.Period)
	assert.Len(t, data.Installations[0].History, 3)

	data, err = f.svc.ClientData(context.Background(), testTenant, ClientDataRequest{CustomerID: f.customerID, Period: "01/2024"})
	require.NoError(t, err)
	require.NotNil(t, data.Installations[0].Record)
	assert.Equal(t, "01/2024", data.Installations[0].Record.Period)
	assert.Nil(t, data.Installations[1].Record)
}

func TestInstallationSummary(t *testing.T) {
	f := newBillingFixture(t)
	seedRecord(t, f.db, f.unitA, "02/2024", 1000, 1000, 1000)

	summary, err := f.svc.InstallationSummary(context.Background(), testTenant, f.unitA, nil)
	require.NoError(t, err)

	require.Len(t, summary.Periods, 2)
	assert.Equal(t, "02/2024", summary.Periods[0].Period)
	assert.InDelta(t, 2000, summary.TotalConsumption, 1e-9)
	assert.InDelta(t, 1800, summary.TotalBillable, 1e-9)
	// gross 1600, uncovered 200 kWh at 0.64
	assert.InDelta(t, 1600, summary.Totals.GrossValue, 1e-9)
	assert.InDelta(t, 1472, summary.Totals.Savings, 1e-9)

	_, err = f.svc.InstallationSummary(context.Background(), testTenant, 999, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}
