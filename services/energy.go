package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aj9599/raas-platform/models"
	"go.uber.org/zap"
)

// EnergyRecordInput is one distributor-reported month as submitted by an
// operator or received from the distributor feed.
type EnergyRecordInput struct {
	Period                string  `json:"period"`
	Consumption           float64 `json:"consumption"`
	Generation            float64 `json:"generation"`
	Received              float64 `json:"received"`
	Compensation          float64 `json:"compensation"`
	Transferred           float64 `json:"transferred"`
	PreviousBalance       float64 `json:"previous_balance"`
	CurrentBalance        float64 `json:"current_balance"`
	ExpiringBalanceAmount float64 `json:"expiring_balance_amount"`
	ExpiringBalancePeriod string  `json:"expiring_balance_period"`
	Quota                 float64 `json:"quota"`
	Source                string  `json:"source"`
}

func (in EnergyRecordInput) Validate() error {
	if _, _, err := ParsePeriod(in.Period); err != nil {
		return err
	}
	quantities := []struct {
		name  string
		value float64
	}{
		{"consumption", in.Consumption},
		{"generation", in.Generation},
		{"received", in.Received},
		{"compensation", in.Compensation},
		{"transferred", in.Transferred},
		{"previous_balance", in.PreviousBalance},
		{"current_balance", in.CurrentBalance},
		{"expiring_balance_amount", in.ExpiringBalanceAmount},
	}
	for _, q := range quantities {
		if err := ValidateQuantity(q.name, q.value); err != nil {
			return err
		}
	}
	// tolerance for values rounded by the distributor
	const eps = 1e-6
	if in.Compensation > in.Consumption+eps || in.Compensation > in.Received+eps {
		return invalidf("compensation must not exceed consumption or received")
	}
	if in.Quota < 0 || in.Quota > 100 {
		return invalidf("quota must be between 0 and 100")
	}
	if in.ExpiringBalancePeriod != "" {
		if _, _, err := ParsePeriod(in.ExpiringBalancePeriod); err != nil {
			return err
		}
	}
	return nil
}

// EnergyService appends energy records. Records are never updated.
type EnergyService struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewEnergyService(db *sql.DB, logger *zap.Logger) *EnergyService {
	return &EnergyService{db: db, logger: logger}
}

func (s *EnergyService) AddRecord(ctx context.Context, tenantID, installationID int, in EnergyRecordInput) (*models.EnergyRecord, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM installations WHERE id = ? AND tenant_id = ?
	`, installationID, tenantID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, fmt.Errorf("installation %d: %w", installationID, ErrNotFound)
	}
	return s.insert(ctx, installationID, in)
}

// AddRecordByCode resolves the installation by its distributor code within
// the tenant identified by slug.
func (s *EnergyService) AddRecordByCode(ctx context.Context, tenantSlug, code string, in EnergyRecordInput) (*models.EnergyRecord, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var installationID int
	err := s.db.QueryRowContext(ctx, `
		SELECT i.id FROM installations i
		JOIN tenants t ON t.id = i.tenant_id
		WHERE t.slug = ? AND i.code = ?
	`, tenantSlug, code).Scan(&installationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("installation %s/%s: %w", tenantSlug, code, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return s.insert(ctx, installationID, in)
}

func (s *EnergyService) insert(ctx context.Context, installationID int, in EnergyRecordInput) (*models.EnergyRecord, error) {
	source := in.Source
	if source == "" {
		source = "manual"
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO energy_records (
			installation_id, period, period_key, consumption, generation, received, compensation,
			transferred, previous_balance, current_balance, expiring_balance_amount,
			expiring_balance_period, quota, source
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, installationID, in.Period, PeriodKey(in.Period), in.Consumption, in.Generation, in.Received, in.Compensation,
		in.Transferred, in.PreviousBalance, in.CurrentBalance, in.ExpiringBalanceAmount,
		in.ExpiringBalancePeriod, in.Quota, source)
	if IsUniqueViolation(err) {
		return nil, fmt.Errorf("installation %d %s: %w", installationID, in.Period, ErrDuplicatePeriod)
	}
	if err != nil {
		return nil, err
	}

	id, _ := result.LastInsertId()
	rec, err := ScanEnergyRecord(s.db.QueryRowContext(ctx,
		`SELECT `+EnergyRecordColumns+` FROM energy_records WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}

	s.logger.Info("[ENERGY] Record stored",
		zap.Int("installation_id", installationID),
		zap.String("period", in.Period),
		zap.String("source", source))
	return &rec, nil
}

// ListRecords returns an installation's history, newest first.
func (s *EnergyService) ListRecords(ctx context.Context, tenantID, installationID int) ([]models.EnergyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+EnergyRecordColumns+` FROM energy_records
		WHERE installation_id IN (SELECT id FROM installations WHERE id = ? AND tenant_id = ?)
		ORDER BY period_key DESC
	`, installationID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.EnergyRecord{}
	for rows.Next() {
		rec, err := ScanEnergyRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
