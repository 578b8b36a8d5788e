package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aj9599/raas-platform/models"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

var (
	ticketPriorities = []string{"low", "normal", "high", "urgent"}
	ticketCategories = []string{"general", "billing", "technical", "installation", "account"}

	// allowed moves between ticket states
	ticketTransitions = map[string][]string{
		models.TicketOpen:       {models.TicketInProgress, models.TicketResolved, models.TicketClosed},
		models.TicketInProgress: {models.TicketOpen, models.TicketResolved, models.TicketClosed},
		models.TicketResolved:   {models.TicketOpen, models.TicketClosed},
		models.TicketClosed:     {},
	}
)

type TicketInput struct {
	Subject    string `json:"subject"`
	Category   string `json:"category"`
	Priority   string `json:"priority"`
	Body       string `json:"body"`
	CustomerID *int   `json:"customer_id"`
}

// Author is the account acting on a ticket. Customer authors only see their
// own customer's tickets and never internal notes.
type Author struct {
	AccountID  int
	CustomerID *int
	Staff      bool
}

type TicketService struct {
	db            *sql.DB
	logger        *zap.Logger
	numbers       *NumberGenerator
	notifications *NotificationService
}

func NewTicketService(db *sql.DB, logger *zap.Logger, numbers *NumberGenerator, notifications *NotificationService) *TicketService {
	return &TicketService{db: db, logger: logger, numbers: numbers, notifications: notifications}
}

const ticketColumns = `
	t.id, t.tenant_id, t.number, t.subject, COALESCE(t.category, 'general'), COALESCE(t.priority, 'normal'),
	t.status, t.opened_by, t.assigned_to, t.customer_id, t.created_at, t.updated_at, t.resolved_at`

func scanTicket(row rowScanner) (models.Ticket, error) {
	var t models.Ticket
	var assignedTo, customerID sql.NullInt64
	var resolvedAt sql.NullTime
	err := row.Scan(&t.ID, &t.TenantID, &t.Number, &t.Subject, &t.Category, &t.Priority,
		&t.Status, &t.OpenedBy, &assignedTo, &customerID, &t.CreatedAt, &t.UpdatedAt, &resolvedAt)
	if err != nil {
		return t, err
	}
	t.AssignedTo = nullIntPtr(assignedTo)
	t.CustomerID = nullIntPtr(customerID)
	if resolvedAt.Valid {
		r := resolvedAt.Time
		t.ResolvedAt = &r
	}
	return t, nil
}

func nullIntPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func (in *TicketInput) Validate() error {
	in.Subject = strings.TrimSpace(in.Subject)
	in.Body = strings.TrimSpace(in.Body)
	if in.Subject == "" {
		return invalidf("subject is required")
	}
	if in.Body == "" {
		return invalidf("message is required")
	}
	if in.Category == "" {
		in.Category = "general"
	}
	if in.Priority == "" {
		in.Priority = "normal"
	}
	if !lo.Contains(ticketCategories, in.Category) {
		return invalidf("unknown category %q", in.Category)
	}
	if !lo.Contains(ticketPriorities, in.Priority) {
		return invalidf("unknown priority %q", in.Priority)
	}
	return nil
}

func (s *TicketService) Create(ctx context.Context, tenantID int, author Author, in TicketInput) (*models.Ticket, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	customerID := in.CustomerID
	if !author.Staff {
		customerID = author.CustomerID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	number := s.numbers.TicketNumber()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO tickets (tenant_id, number, subject, category, priority, status, opened_by, customer_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, tenantID, number, in.Subject, in.Category, in.Priority, models.TicketOpen, author.AccountID, customerID)
	if err != nil {
		return nil, err
	}
	id, _ := result.LastInsertId()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ticket_messages (ticket_id, author_id, body, internal) VALUES (?, ?, ?, 0)
	`, id, author.AccountID, in.Body); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info("[TICKET] Opened", zap.String("number", number), zap.Int("opened_by", author.AccountID))
	s.notifications.NotifyOperators(ctx, tenantID, NotifyTicketCreated,
		fmt.Sprintf("New ticket %s", number), in.Subject, fmt.Sprintf("/tickets/%d", id))

	return s.Get(ctx, tenantID, int(id), author)
}

// Get returns the ticket with its conversation.
func (s *TicketService) Get(ctx context.Context, tenantID, id int, author Author) (*models.Ticket, error) {
	t, err := s.load(ctx, tenantID, id, author)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, ticket_id, author_id, body, COALESCE(internal, 0), created_at
		FROM ticket_messages WHERE ticket_id = ?`
	if !author.Staff {
		query += ` AND COALESCE(internal, 0) = 0`
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY created_at, id`, t.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	t.Messages = []models.TicketMessage{}
	for rows.Next() {
		var m models.TicketMessage
		var internal int
		if err := rows.Scan(&m.ID, &m.TicketID, &m.AuthorID, &m.Body, &internal, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Internal = internal == 1
		t.Messages = append(t.Messages, m)
	}
	return t, rows.Err()
}

func (s *TicketService) load(ctx context.Context, tenantID, id int, author Author) (*models.Ticket, error) {
	t, err := scanTicket(s.db.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets t WHERE t.id = ? AND t.tenant_id = ?`, id, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !author.Staff && !ownsTicket(t, author) {
		return nil, ErrNotFound
	}
	return &t, nil
}

func ownsTicket(t models.Ticket, author Author) bool {
	if t.OpenedBy == author.AccountID {
		return true
	}
	return author.CustomerID != nil && t.CustomerID != nil && *author.CustomerID == *t.CustomerID
}

var ticketSortColumns = map[string]string{
	"number":     "t.number",
	"subject":    "t.subject",
	"priority":   "t.priority",
	"status":     "t.status",
	"created_at": "t.created_at",
	"updated_at": "t.updated_at",
}

func (s *TicketService) List(ctx context.Context, tenantID int, author Author, params models.ListParams) (models.Page[models.Ticket], error) {
	params.Normalize()
	page := models.Page[models.Ticket]{Items: []models.Ticket{}, Page: params.Page, PageSize: params.PageSize}

	conditions := []string{"t.tenant_id = ?"}
	args := []any{tenantID}
	if !author.Staff {
		if author.CustomerID != nil {
			conditions = append(conditions, "(t.opened_by = ? OR t.customer_id = ?)")
			args = append(args, author.AccountID, *author.CustomerID)
		} else {
			conditions = append(conditions, "t.opened_by = ?")
			args = append(args, author.AccountID)
		}
	} else if params.CustomerID > 0 {
		conditions = append(conditions, "t.customer_id = ?")
		args = append(args, params.CustomerID)
	}
	if params.Status != "" {
		conditions = append(conditions, "t.status = ?")
		args = append(args, params.Status)
	}
	if params.Search != "" {
		like := "%" + params.Search + "%"
		conditions = append(conditions, "(t.number LIKE ? OR t.subject LIKE ?)")
		args = append(args, like, like)
	}
	where := strings.Join(conditions, " AND ")

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets t WHERE `+where, args...).Scan(&page.Total); err != nil {
		return page, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+ticketColumns+` FROM tickets t WHERE `+where+`
		ORDER BY `+params.OrderBy(ticketSortColumns, "t.updated_at")+`, t.id DESC
		LIMIT ? OFFSET ?`, append(args, params.PageSize, params.Offset())...)
	if err != nil {
		return page, err
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return page, err
		}
		page.Items = append(page.Items, t)
	}
	return page, rows.Err()
}

// AddMessage appends a reply. Only staff may write internal notes. A
// customer reply reopens a resolved ticket.
func (s *TicketService) AddMessage(ctx context.Context, tenantID, ticketID int, author Author, body string, internal bool) (*models.Ticket, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, invalidf("message is required")
	}
	if internal && !author.Staff {
		return nil, invalidf("only staff can add internal notes")
	}

	t, err := s.load(ctx, tenantID, ticketID, author)
	if err != nil {
		return nil, err
	}
	if t.Status == models.TicketClosed {
		return nil, fmt.Errorf("%w: ticket is closed", ErrInvalidTransition)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO ticket_messages (ticket_id, author_id, body, internal) VALUES (?, ?, ?, ?)
	`, t.ID, author.AccountID, body, internal); err != nil {
		return nil, err
	}

	if !author.Staff && t.Status == models.TicketResolved {
		if _, err := s.db.ExecContext(ctx, `
			UPDATE tickets SET status = ?, resolved_at = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ?
		`, models.TicketOpen, t.ID); err != nil {
			return nil, err
		}
	} else {
		if _, err := s.db.ExecContext(ctx, `UPDATE tickets SET updated_at = CURRENT_TIMESTAMP WHERE id = ?`, t.ID); err != nil {
			return nil, err
		}
	}

	link := fmt.Sprintf("/tickets/%d", t.ID)
	title := fmt.Sprintf("New reply on ticket %s", t.Number)
	if author.Staff {
		if !internal && t.OpenedBy != author.AccountID {
			s.notify(ctx, tenantID, t.OpenedBy, NotifyTicketUpdated, title, t.Subject, link)
		}
	} else if t.AssignedTo != nil {
		s.notify(ctx, tenantID, *t.AssignedTo, NotifyTicketUpdated, title, t.Subject, link)
	} else {
		s.notifications.NotifyOperators(ctx, tenantID, NotifyTicketUpdated, title, t.Subject, link)
	}

	return s.Get(ctx, tenantID, t.ID, author)
}

func (s *TicketService) UpdateStatus(ctx context.Context, tenantID, ticketID int, author Author, status string) (*models.Ticket, error) {
	if _, ok := ticketTransitions[status]; !ok {
		return nil, invalidf("unknown status %q", status)
	}
	t, err := s.load(ctx, tenantID, ticketID, author)
	if err != nil {
		return nil, err
	}
	if t.Status == status {
		return s.Get(ctx, tenantID, t.ID, author)
	}
	if !lo.Contains(ticketTransitions[t.Status], status) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, t.Status, status)
	}

	var resolvedAt any
	if status == models.TicketResolved || status == models.TicketClosed {
		resolvedAt = time.Now().UTC()
		if t.ResolvedAt != nil {
			resolvedAt = *t.ResolvedAt
		}
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE tickets SET status = ?, resolved_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, status, resolvedAt, t.ID); err != nil {
		return nil, err
	}

	if t.OpenedBy != author.AccountID {
		s.notify(ctx, tenantID, t.OpenedBy, NotifyTicketUpdated,
			fmt.Sprintf("Ticket %s is now %s", t.Number, status), t.Subject, fmt.Sprintf("/tickets/%d", t.ID))
	}
	return s.Get(ctx, tenantID, t.ID, author)
}

// Assign hands the ticket to a staff account. A nil assignee unassigns it.
func (s *TicketService) Assign(ctx context.Context, tenantID, ticketID int, author Author, assignee *int) (*models.Ticket, error) {
	t, err := s.load(ctx, tenantID, ticketID, author)
	if err != nil {
		return nil, err
	}
	if assignee != nil {
		account, err := GetAccount(ctx, s.db, tenantID, *assignee)
		if err != nil {
			return nil, err
		}
		if account.Role == "customer" || !account.IsActive {
			return nil, invalidf("tickets can only be assigned to active staff")
		}
	}

	status := t.Status
	if assignee != nil && status == models.TicketOpen {
		status = models.TicketInProgress
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE tickets SET assigned_to = ?, status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, assignee, status, t.ID); err != nil {
		return nil, err
	}

	if assignee != nil && *assignee != author.AccountID {
		s.notify(ctx, tenantID, *assignee, NotifyTicketAssigned,
			fmt.Sprintf("Ticket %s assigned to you", t.Number), t.Subject, fmt.Sprintf("/tickets/%d", t.ID))
	}
	return s.Get(ctx, tenantID, t.ID, author)
}

func (s *TicketService) notify(ctx context.Context, tenantID, accountID int, kind, title, body, link string) {
	if _, err := s.notifications.Notify(ctx, tenantID, accountID, kind, title, body, link); err != nil {
		s.logger.Warn("[TICKET] Notification failed", zap.Int("account_id", accountID), zap.Error(err))
	}
}
