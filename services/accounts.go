package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/aj9599/raas-platform/models"
)

const AccountColumns = `
	a.id, a.tenant_id, a.email, a.first_name, COALESCE(a.last_name, ''), COALESCE(a.phone, ''),
	a.role, a.customer_id, COALESCE(a.language, 'pt'), COALESCE(a.is_active, 1), a.password_hash,
	a.last_login_at, a.created_at, a.updated_at`

func ScanAccount(row rowScanner) (models.Account, error) {
	var a models.Account
	var customerID sql.NullInt64
	var isActive int
	var lastLogin sql.NullTime
	err := row.Scan(&a.ID, &a.TenantID, &a.Email, &a.FirstName, &a.LastName, &a.Phone,
		&a.Role, &customerID, &a.Language, &isActive, &a.PasswordHash,
		&lastLogin, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return a, err
	}
	a.IsActive = isActive == 1
	if customerID.Valid {
		id := int(customerID.Int64)
		a.CustomerID = &id
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		a.LastLoginAt = &t
	}
	return a, nil
}

func GetAccount(ctx context.Context, db *sql.DB, tenantID, id int) (*models.Account, error) {
	a, err := ScanAccount(db.QueryRowContext(ctx,
		`SELECT `+AccountColumns+` FROM accounts a WHERE a.id = ? AND a.tenant_id = ?`, id, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// OperatorIDs returns the active staff accounts of a tenant, the recipients
// of operational notifications.
func OperatorIDs(ctx context.Context, db *sql.DB, tenantID int) ([]int, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id FROM accounts
		WHERE tenant_id = ? AND role IN ('operator', 'admin', 'super_admin') AND COALESCE(is_active, 1) = 1
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
