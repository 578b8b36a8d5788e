package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/aj9599/raas-platform/middleware"
	"github.com/aj9599/raas-platform/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 8

type InvitationInput struct {
	Email      string `json:"email"`
	Role       string `json:"role"`
	CustomerID *int   `json:"customer_id"`
}

type AcceptInput struct {
	Token     string `json:"token"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Password  string `json:"password"`
	Language  string `json:"language"`
}

// InvitationService owns the invitation lifecycle:
//
//	PENDING -> ACCEPTED | REVOKED | EXPIRED
//	PENDING | EXPIRED -> PENDING (resend, new token)
//
// Invitations are only removed by Delete.
type InvitationService struct {
	db     *sql.DB
	logger *zap.Logger
	ttl    time.Duration
	now    func() time.Time
}

func NewInvitationService(db *sql.DB, logger *zap.Logger, ttl time.Duration) *InvitationService {
	return &InvitationService{db: db, logger: logger, ttl: ttl, now: time.Now}
}

const invitationColumns = `id, tenant_id, email, role, customer_id, status, token, expires_at,
	invited_by, accepted_at, created_at, updated_at`

func scanInvitation(row rowScanner) (models.Invitation, error) {
	var inv models.Invitation
	var customerID, invitedBy sql.NullInt64
	var acceptedAt sql.NullTime
	err := row.Scan(&inv.ID, &inv.TenantID, &inv.Email, &inv.Role, &customerID, &inv.Status, &inv.Token,
		&inv.ExpiresAt, &invitedBy, &acceptedAt, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return inv, err
	}
	if customerID.Valid {
		id := int(customerID.Int64)
		inv.CustomerID = &id
	}
	if invitedBy.Valid {
		id := int(invitedBy.Int64)
		inv.InvitedBy = &id
	}
	if acceptedAt.Valid {
		t := acceptedAt.Time
		inv.AcceptedAt = &t
	}
	return inv, nil
}

func (s *InvitationService) Create(ctx context.Context, tenantID, invitedBy int, in InvitationInput) (*models.Invitation, error) {
	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	role, ok := middleware.NormalizeRole(in.Role)
	if !ok {
		return nil, invalidf("unknown role %q", in.Role)
	}
	if role == middleware.RoleCustomer {
		if in.CustomerID == nil {
			return nil, invalidf("customer invitations need a customer_id")
		}
		var n int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers WHERE id = ? AND tenant_id = ?`,
			*in.CustomerID, tenantID).Scan(&n); err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, invalidf("customer %d not found", *in.CustomerID)
		}
	} else {
		in.CustomerID = nil
	}

	var accounts, pending int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE email = ?`, email).Scan(&accounts); err != nil {
		return nil, err
	}
	if accounts > 0 {
		return nil, fmt.Errorf("%w: an account with this email already exists", ErrConflict)
	}
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM invitations WHERE tenant_id = ? AND email = ? AND status = ?
	`, tenantID, email, models.InvitationPending).Scan(&pending); err != nil {
		return nil, err
	}
	if pending > 0 {
		return nil, fmt.Errorf("%w: a pending invitation for this email already exists", ErrConflict)
	}

	var inviter any
	if invitedBy > 0 {
		inviter = invitedBy
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO invitations (tenant_id, email, role, customer_id, status, token, expires_at, invited_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, tenantID, email, string(role), in.CustomerID, models.InvitationPending, uuid.NewString(),
		s.now().UTC().Add(s.ttl), inviter)
	if err != nil {
		return nil, err
	}
	id, _ := result.LastInsertId()

	s.logger.Info("[INVITE] Invitation created",
		zap.Int("tenant_id", tenantID), zap.String("email", email), zap.String("role", string(role)))
	return s.Get(ctx, tenantID, int(id))
}

func (s *InvitationService) Get(ctx context.Context, tenantID, id int) (*models.Invitation, error) {
	inv, err := scanInvitation(s.db.QueryRowContext(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE id = ? AND tenant_id = ?`, id, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *InvitationService) List(ctx context.Context, tenantID int, params models.ListParams) ([]models.Invitation, error) {
	params.Normalize()
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE tenant_id = ?`
	args := []any{tenantID}
	if params.Status != "" {
		query += ` AND status = ?`
		args = append(args, strings.ToUpper(params.Status))
	}
	if params.Search != "" {
		query += ` AND email LIKE ?`
		args = append(args, "%"+params.Search+"%")
	}
	query += ` ORDER BY ` + params.OrderBy(map[string]string{
		"email":      "email",
		"status":     "status",
		"expires_at": "expires_at",
		"created_at": "created_at",
	}, "created_at") + ` LIMIT ? OFFSET ?`
	args = append(args, params.PageSize, params.Offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invitations := []models.Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

func (s *InvitationService) Revoke(ctx context.Context, tenantID, id int) (*models.Invitation, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE invitations SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND tenant_id = ? AND status = ?
	`, models.InvitationRevoked, id, tenantID, models.InvitationPending)
	if err != nil {
		return nil, err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, s.transitionError(ctx, tenantID, id, models.InvitationRevoked)
	}
	s.logger.Info("[INVITE] Invitation revoked", zap.Int("invitation_id", id))
	return s.Get(ctx, tenantID, id)
}

// Resend issues a new token and expiry for a pending or expired invitation.
func (s *InvitationService) Resend(ctx context.Context, tenantID, id int) (*models.Invitation, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE invitations SET status = ?, token = ?, expires_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND tenant_id = ? AND status IN (?, ?)
	`, models.InvitationPending, uuid.NewString(), s.now().UTC().Add(s.ttl),
		id, tenantID, models.InvitationPending, models.InvitationExpired)
	if err != nil {
		return nil, err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, s.transitionError(ctx, tenantID, id, models.InvitationPending)
	}
	s.logger.Info("[INVITE] Invitation resent", zap.Int("invitation_id", id))
	return s.Get(ctx, tenantID, id)
}

func (s *InvitationService) Delete(ctx context.Context, tenantID, id int) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM invitations WHERE id = ? AND tenant_id = ?`, id, tenantID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Lookup returns a pending invitation by token. An invitation found past
// its expiry is moved to EXPIRED.
func (s *InvitationService) Lookup(ctx context.Context, token string) (*models.Invitation, error) {
	inv, err := scanInvitation(s.db.QueryRowContext(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE token = ?`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if inv.Status != models.InvitationPending {
		return nil, fmt.Errorf("%w: invitation is %s", ErrInvalidTransition, inv.Status)
	}
	if !s.now().Before(inv.ExpiresAt) {
		if _, err := s.db.ExecContext(ctx, `
			UPDATE invitations SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?
		`, models.InvitationExpired, inv.ID, models.InvitationPending); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("invitation: %w", ErrExpired)
	}
	return &inv, nil
}

// Accept creates the account for a pending invitation and marks it accepted.
func (s *InvitationService) Accept(ctx context.Context, in AcceptInput) (*models.Account, error) {
	if strings.TrimSpace(in.FirstName) == "" {
		return nil, invalidf("first_name is required")
	}
	if len(in.Password) < MinPasswordLength {
		return nil, invalidf("password must have at least %d characters", MinPasswordLength)
	}

	inv, err := s.Lookup(ctx, in.Token)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	language := in.Language
	if language == "" {
		language = "pt"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE invitations SET status = ?, accepted_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, models.InvitationAccepted, s.now().UTC(), inv.ID, models.InvitationPending)
	if err != nil {
		return nil, err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: invitation is no longer pending", ErrInvalidTransition)
	}

	if inv.CustomerID != nil {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers WHERE id = ? AND tenant_id = ?`,
			*inv.CustomerID, inv.TenantID).Scan(&n); err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, fmt.Errorf("%w: the invited customer no longer exists", ErrConflict)
		}
	}

	result, err = tx.ExecContext(ctx, `
		INSERT INTO accounts (tenant_id, email, first_name, last_name, phone, role, customer_id, language, password_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, inv.TenantID, inv.Email, strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName), in.Phone,
		inv.Role, inv.CustomerID, language, string(hash))
	if IsUniqueViolation(err) {
		return nil, fmt.Errorf("%w: an account with this email already exists", ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	accountID, _ := result.LastInsertId()

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info("[INVITE] Invitation accepted",
		zap.Int("invitation_id", inv.ID), zap.Int64("account_id", accountID))
	return GetAccount(ctx, s.db, inv.TenantID, int(accountID))
}

// ExpireDue moves pending invitations past their expiry to EXPIRED.
func (s *InvitationService) ExpireDue(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, expires_at FROM invitations WHERE status = ?`, models.InvitationPending)
	if err != nil {
		return 0, err
	}
	now := s.now()
	var due []int
	for rows.Next() {
		var id int
		var expiresAt time.Time
		if err := rows.Scan(&id, &expiresAt); err != nil {
			rows.Close()
			return 0, err
		}
		if !now.Before(expiresAt) {
			due = append(due, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range due {
		if _, err := s.db.ExecContext(ctx, `
			UPDATE invitations SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?
		`, models.InvitationExpired, id, models.InvitationPending); err != nil {
			return 0, err
		}
	}
	return len(due), nil
}

func (s *InvitationService) transitionError(ctx context.Context, tenantID, id int, target string) error {
	inv, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, inv.Status, target)
}

func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalidf("invalid email address")
	}
	return email, nil
}
