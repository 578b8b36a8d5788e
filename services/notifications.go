package services

import (
	"context"
	"database/sql"

	"github.com/aj9599/raas-platform/models"
	"go.uber.org/zap"
)

const (
	NotifyInvoiceGenerated = "invoice_generated"
	NotifyDeliveryFailed   = "delivery_failed"
	NotifyRenderFailed     = "render_failed"
	NotifyTicketCreated    = "ticket_created"
	NotifyTicketUpdated    = "ticket_updated"
	NotifyTicketAssigned   = "ticket_assigned"
	NotifyInvitation       = "invitation"
)

// NotificationService stores notifications and pushes them to the hub.
type NotificationService struct {
	db     *sql.DB
	logger *zap.Logger
	hub    *NotificationHub
}

func NewNotificationService(db *sql.DB, logger *zap.Logger, hub *NotificationHub) *NotificationService {
	return &NotificationService{db: db, logger: logger, hub: hub}
}

func (s *NotificationService) Notify(ctx context.Context, tenantID, accountID int, kind, title, body, link string) (*models.Notification, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (tenant_id, account_id, kind, title, body, link)
		VALUES (?, ?, ?, ?, ?, ?)
	`, tenantID, accountID, kind, title, body, link)
	if err != nil {
		return nil, err
	}
	id, _ := result.LastInsertId()

	n, err := scanNotification(s.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if s.hub != nil {
		s.hub.Publish(n)
	}
	return &n, nil
}

// NotifyOperators sends the notification to every active staff account of
// the tenant. Failures are only logged.
func (s *NotificationService) NotifyOperators(ctx context.Context, tenantID int, kind, title, body, link string) {
	ids, err := OperatorIDs(ctx, s.db, tenantID)
	if err != nil {
		s.logger.Error("[NOTIFY] Could not load operators", zap.Int("tenant_id", tenantID), zap.Error(err))
		return
	}
	for _, id := range ids {
		if _, err := s.Notify(ctx, tenantID, id, kind, title, body, link); err != nil {
			s.logger.Error("[NOTIFY] Could not store notification", zap.Int("account_id", id), zap.Error(err))
		}
	}
}

func (s *NotificationService) List(ctx context.Context, accountID int, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > models.MaxPageSize {
		limit = models.DefaultPageSize
	}
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE account_id = ?`
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (s *NotificationService) UnreadCount(ctx context.Context, accountID int) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE account_id = ? AND read_at IS NULL`, accountID).Scan(&n)
	return n, err
}

func (s *NotificationService) MarkRead(ctx context.Context, accountID, id int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read_at = COALESCE(read_at, CURRENT_TIMESTAMP)
		WHERE id = ? AND account_id = ?
	`, id, accountID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, accountID int) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read_at = CURRENT_TIMESTAMP WHERE account_id = ? AND read_at IS NULL
	`, accountID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const notificationColumns = `id, tenant_id, account_id, kind, title, COALESCE(body, ''), COALESCE(link, ''), read_at, created_at`

func scanNotification(row rowScanner) (models.Notification, error) {
	var n models.Notification
	var readAt sql.NullTime
	err := row.Scan(&n.ID, &n.TenantID, &n.AccountID, &n.Kind, &n.Title, &n.Body, &n.Link, &readAt, &n.CreatedAt)
	if err != nil {
		return n, err
	}
	if readAt.Valid {
		t := readAt.Time
		n.ReadAt = &t
	}
	return n, nil
}
