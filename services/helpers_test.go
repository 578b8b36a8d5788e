package services

import (
	"context"
	"database/sql"
	"testing"

	"github.com/aj9599/raas-platform/database"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testTenant = 1

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	logger := zap.NewNop()
	db, err := database.InitDB(":memory:", logger)
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(db, logger))
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestNumbers(t *testing.T) *NumberGenerator {
	t.Helper()
	numbers, err := NewNumberGenerator(1)
	require.NoError(t, err)
	return numbers
}

func seedCustomer(t *testing.T, db *sql.DB, name, basis string, discount float64) int {
	t.Helper()
	res, err := db.Exec(`
		INSERT INTO customers (tenant_id, name, email, phone, default_calculation_type, default_discount_pct)
		VALUES (?, ?, ?, ?, ?, ?)
	`, testTenant, name, "cliente@example.com", "(11) 98765-4321", basis, discount)
	require.NoError(t, err)
	id, _ := res.LastInsertId()
	return int(id)
}

func seedDistributor(t *testing.T, db *sql.DB, name string, price float64) int {
	t.Helper()
	res, err := db.Exec(`INSERT INTO distributors (tenant_id, name, price_per_kwh) VALUES (?, ?, ?)`,
		testTenant, name, price)
	require.NoError(t, err)
	id, _ := res.LastInsertId()
	return int(id)
}

func seedInstallation(t *testing.T, db *sql.DB, code, typ string, distributorID, customerID int) int {
	t.Helper()
	res, err := db.Exec(`
		INSERT INTO installations (tenant_id, code, name, type, distributor_id, customer_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, testTenant, code, "UC "+code, typ, distributorID, customerID)
	require.NoError(t, err)
	id, _ := res.LastInsertId()
	return int(id)
}

func seedRecord(t *testing.T, db *sql.DB, installationID int, period string, consumption, received, compensation float64) int {
	t.Helper()
	rec, err := NewEnergyService(db, zap.NewNop()).AddRecord(context.Background(), testTenant, installationID, EnergyRecordInput{
		Period:       period,
		Consumption:  consumption,
		Received:     received,
		Compensation: compensation,
	})
	require.NoError(t, err)
	return rec.ID
}

func seedAccount(t *testing.T, db *sql.DB, email, role string, customerID *int) int {
	t.Helper()
	res, err := db.Exec(`
		INSERT INTO accounts (tenant_id, email, first_name, role, customer_id, password_hash)
		VALUES (?, ?, ?, ?, ?, 'x')
	`, testTenant, email, "Test", role, customerID)
	require.NoError(t, err)
	id, _ := res.LastInsertId()
	return int(id)
}


