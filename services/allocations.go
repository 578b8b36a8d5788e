package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/aj9599/raas-platform/models"
	"go.uber.org/zap"
)

type AllocationInput struct {
	GeneratorID int     `json:"generator_id"`
	ConsumerID  int     `json:"consumer_id"`
	Quota       float64 `json:"quota"`
}

func validateQuota(q float64) error {
	if math.IsNaN(q) || q <= 0 || q > 100 {
		return invalidf("quota must be greater than 0 and at most 100")
	}
	return nil
}

// AllocationService keeps the quotas assigned by each generator at or below
// 100% in total.
type AllocationService struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewAllocationService(db *sql.DB, logger *zap.Logger) *AllocationService {
	return &AllocationService{db: db, logger: logger}
}

const allocationColumns = `id, tenant_id, generator_id, consumer_id, quota, created_at, updated_at`

func scanAllocation(row rowScanner) (models.Allocation, error) {
	var a models.Allocation
	err := row.Scan(&a.ID, &a.TenantID, &a.GeneratorID, &a.ConsumerID, &a.Quota, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// List returns allocations, optionally limited to one installation on
// either side of the link.
func (s *AllocationService) List(ctx context.Context, tenantID, installationID int) ([]models.Allocation, error) {
	query := `SELECT ` + allocationColumns + ` FROM allocations WHERE tenant_id = ?`
	args := []any{tenantID}
	if installationID > 0 {
		query += ` AND (generator_id = ? OR consumer_id = ?)`
		args = append(args, installationID, installationID)
	}
	query += ` ORDER BY generator_id, consumer_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	allocations := []models.Allocation{}
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}

func (s *AllocationService) Create(ctx context.Context, tenantID int, in AllocationInput) (*models.Allocation, error) {
	if err := validateQuota(in.Quota); err != nil {
		return nil, err
	}
	if in.GeneratorID == in.ConsumerID {
		return nil, invalidf("generator and consumer must differ")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := checkInstallationType(ctx, tx, tenantID, in.GeneratorID, models.InstallationGenerator); err != nil {
		return nil, err
	}
	if err := checkInstallationType(ctx, tx, tenantID, in.ConsumerID, models.InstallationConsumer); err != nil {
		return nil, err
	}
	if err := checkQuotaSum(ctx, tx, in.GeneratorID, 0, in.Quota); err != nil {
		return nil, err
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO allocations (tenant_id, generator_id, consumer_id, quota) VALUES (?, ?, ?, ?)
	`, tenantID, in.GeneratorID, in.ConsumerID, in.Quota)
	if IsUniqueViolation(err) {
		return nil, fmt.Errorf("%w: allocation between these installations already exists", ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	id, _ := result.LastInsertId()

	a, err := scanAllocation(tx.QueryRowContext(ctx, `SELECT `+allocationColumns+` FROM allocations WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info("[ALLOCATION] Created",
		zap.Int("generator_id", in.GeneratorID),
		zap.Int("consumer_id", in.ConsumerID),
		zap.Float64("quota", in.Quota))
	return &a, nil
}

func (s *AllocationService) UpdateQuota(ctx context.Context, tenantID, id int, quota float64) (*models.Allocation, error) {
	if err := validateQuota(quota); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	current, err := scanAllocation(tx.QueryRowContext(ctx,
		`SELECT `+allocationColumns+` FROM allocations WHERE id = ? AND tenant_id = ?`, id, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := checkQuotaSum(ctx, tx, current.GeneratorID, current.ID, quota); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE allocations SET quota = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, quota, id); err != nil {
		return nil, err
	}
	updated, err := scanAllocation(tx.QueryRowContext(ctx, `SELECT `+allocationColumns+` FROM allocations WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	return &updated, tx.Commit()
}

func (s *AllocationService) Delete(ctx context.Context, tenantID, id int) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM allocations WHERE id = ? AND tenant_id = ?`, id, tenantID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func checkInstallationType(ctx context.Context, tx *sql.Tx, tenantID, id int, want string) error {
	var typ string
	err := tx.QueryRowContext(ctx, `SELECT type FROM installations WHERE id = ? AND tenant_id = ?`, id, tenantID).Scan(&typ)
	if errors.Is(err, sql.ErrNoRows) {
		return invalidf("installation %d not found", id)
	}
	if err != nil {
		return err
	}
	if typ != want {
		return invalidf("installation %d must be a %s installation", id, want)
	}
	return nil
}

// checkQuotaSum verifies the generator's quotas stay at or below 100 when
// the allocation identified by excludeID gets the given quota.
func checkQuotaSum(ctx context.Context, tx *sql.Tx, generatorID, excludeID int, quota float64) error {
	var sum float64
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quota), 0) FROM allocations WHERE generator_id = ? AND id != ?
	`, generatorID, excludeID).Scan(&sum)
	if err != nil {
		return err
	}
	if sum+quota > 100+1e-9 {
		return fmt.Errorf("%w: %.2f%% already allocated", ErrQuotaExceeded, sum)
	}
	return nil
}
