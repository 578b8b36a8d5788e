package services

import (
	"context"
	"testing"

	"github.com/aj9599/raas-platform/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEnergyRecords_AppendOnly(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	svc := NewEnergyService(db, zap.NewNop())

	owner := seedCustomer(t, db, "Loja Centro", "compensation", 0)
	dist := seedDistributor(t, db, "Light", 0.9)
	unit := seedInstallation(t, db, "UC-10", models.InstallationConsumer, dist, owner)

	rec, err := svc.AddRecord(ctx, testTenant, unit, EnergyRecordInput{
		Period: "02/2024", Consumption: 300, Received: 250, Compensation: 200, Quota: 25,
	})
	require.NoError(t, err)
	assert.Equal(t, "manual", rec.Source)
	assert.InDelta(t, 200, rec.Compensation, 1e-9)

	_, err = svc.AddRecord(ctx, testTenant, unit, EnergyRecordInput{Period: "02/2024", Consumption: 1})
	assert.ErrorIs(t, err, ErrDuplicatePeriod)

	_, err = svc.AddRecord(ctx, testTenant, unit, EnergyRecordInput{Period: "11/2023", Consumption: 280})
	require.NoError(t, err)
	_, err = svc.AddRecord(ctx, testTenant, unit, EnergyRecordInput{Period: "01/2024", Consumption: 290})
	require.NoError(t, err)

	records, err := svc.ListRecords(ctx, testTenant, unit)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"02/2024", "01/2024", "11/2023"},
		[]string{records[0].Period, records[1].Period, records[2].Period})

	_, err = svc.AddRecord(ctx, testTenant, 999, EnergyRecordInput{Period: "02/2024"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnergyRecordInput_Validate(t *testing.T) {
	valid := EnergyRecordInput{Period: "05/2024", Consumption: 10}
	require.NoError(t, valid.Validate())
	atLimit := EnergyRecordInput{Period: "05/2024", Consumption: 100, Received: 50, Compensation: 50}
	require.NoError(t, atLimit.Validate())

	bad := []EnergyRecordInput{
		{Period: "5/2024"},
		{Period: "13/2024"},
		{Period: "05/2024", Consumption: -1},
		{Period: "05/2024", Compensation: -0.1},
		{Period: "05/2024", Quota: 101},
		{Period: "05/2024", ExpiringBalancePeriod: "2024"},
		{Period: "05/2024", Consumption: 100, Received: 50, Compensation: 500},
		{Period: "05/2024", Consumption: 40, Received: 90, Compensation: 80},
		{Period: "05/2024", Compensation: 1},
	}
	for _, in := range bad {
		assert.ErrorIs(t, in.Validate(), ErrInvalidInput, "%+v", in)
	}
}

func TestAddRecordByCode(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	svc := NewEnergyService(db, zap.NewNop())

	owner := seedCustomer(t, db, "Loja Centro", "compensation", 0)
	dist := seedDistributor(t, db, "Light", 0.9)
	seedInstallation(t, db, "UC-10", models.InstallationConsumer, dist, owner)

	rec, err := svc.AddRecordByCode(ctx, "default", "UC-10", EnergyRecordInput{Period: "02/2024", Source: "mqtt"})
	require.NoError(t, err)
	assert.Equal(t, "mqtt", rec.Source)

	_, err = svc.AddRecordByCode(ctx, "other-tenant", "UC-10", EnergyRecordInput{Period: "03/2024"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPeriodHelpers(t *testing.T) {
	_, key, err := ParsePeriod("03/2024")
	require.NoError(t, err)
	assert.Equal(t, "2024-03", key)
	assert.Equal(t, "", PeriodKey("March 2024"))

	numbers := newTestNumbers(t)
	assert.Regexp(t, `^FAT-202403-`, numbers.InvoiceNumber("03/2024"))
	assert.Regexp(t, `^TCK-[0-9A-Z]+$`, numbers.TicketNumber())
	assert.NotEqual(t, numbers.TicketNumber(), numbers.TicketNumber())
}
