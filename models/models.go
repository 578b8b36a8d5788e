package models

import "time"

const (
	InstallationGenerator = "GENERATOR"
	InstallationConsumer  = "CONSUMER"

	InvoicePending = "pending"
	InvoicePaid    = "paid"
	InvoiceOverdue = "overdue"

	InvitationPending  = "PENDING"
	InvitationAccepted = "ACCEPTED"
	InvitationRevoked  = "REVOKED"
	InvitationExpired  = "EXPIRED"

	TicketOpen       = "open"
	TicketInProgress = "in_progress"
	TicketResolved   = "resolved"
	TicketClosed     = "closed"
)

type Tenant struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Account is a platform login. Customer accounts are linked to the customer
// record whose invoices and installations they may see.
type Account struct {
	ID           int        `json:"id"`
	TenantID     int        `json:"tenant_id"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Phone        string     `json:"phone"`
	Role         string     `json:"role"`
	CustomerID   *int       `json:"customer_id"`
	Language     string     `json:"language"`
	IsActive     bool       `json:"is_active"`
	PasswordHash string     `json:"-"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type Address struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	District   string `json:"district"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type Customer struct {
	ID                     int       `json:"id"`
	TenantID               int       `json:"tenant_id"`
	Name                   string    `json:"name"`
	Document               string    `json:"document"`
	Email                  string    `json:"email"`
	Phone                  string    `json:"phone"`
	Address                Address   `json:"address"`
	DefaultCalculationType string    `json:"default_calculation_type"`
	DefaultDiscountPct     float64   `json:"default_discount_pct"`
	Language               string    `json:"language"`
	Notes                  string    `json:"notes"`
	IsActive               bool      `json:"is_active"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

type Distributor struct {
	ID          int       `json:"id"`
	TenantID    int       `json:"tenant_id"`
	Name        string    `json:"name"`
	PricePerKwh float64   `json:"price_per_kwh"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Installation struct {
	ID            int          `json:"id"`
	TenantID      int          `json:"tenant_id"`
	Code          string       `json:"code"`
	Name          string       `json:"name"`
	Type          string       `json:"type"`
	DistributorID int          `json:"distributor_id"`
	CustomerID    int          `json:"customer_id"`
	Address       Address      `json:"address"`
	IsActive      bool         `json:"is_active"`
	Distributor   *Distributor `json:"distributor,omitempty"`
	Owner         *Customer    `json:"owner,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// EnergyRecord is one distributor-reported month for an installation.
// Rows are never updated; a new period gets a new row.
type EnergyRecord struct {
	ID                    int       `json:"id"`
	InstallationID        int       `json:"installation_id"`
	Period                string    `json:"period"`
	Consumption           float64   `json:"consumption"`
	Generation            float64   `json:"generation"`
	Received              float64   `json:"received"`
	Compensation          float64   `json:"compensation"`
	Transferred           float64   `json:"transferred"`
	PreviousBalance       float64   `json:"previous_balance"`
	CurrentBalance        float64   `json:"current_balance"`
	ExpiringBalanceAmount float64   `json:"expiring_balance_amount"`
	ExpiringBalancePeriod string    `json:"expiring_balance_period"`
	Quota                 float64   `json:"quota"`
	Source                string    `json:"source"`
	CreatedAt             time.Time `json:"created_at"`
}

type Allocation struct {
	ID          int       `json:"id"`
	TenantID    int       `json:"tenant_id"`
	GeneratorID int       `json:"generator_id"`
	ConsumerID  int       `json:"consumer_id"`
	Quota       float64   `json:"quota"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Invoice struct {
	ID               int                   `json:"id"`
	TenantID         int                   `json:"tenant_id"`
	InvoiceNumber    string                `json:"invoice_number"`
	CustomerID       int                   `json:"customer_id"`
	ReferencePeriod  string                `json:"reference_period"`
	DueDate          string                `json:"due_date"`
	Tariff           float64               `json:"tariff"`
	DiscountPct      float64               `json:"discount_pct"`
	CalculationBasis string                `json:"calculation_basis"`
	KwhQuantity      float64               `json:"kwh_quantity"`
	ConsumptionKwh   float64               `json:"consumption_kwh"`
	BilledRate       float64               `json:"billed_rate"`
	TotalAmount      float64               `json:"total_amount"`
	GrossValue       float64               `json:"gross_value"`
	Savings          float64               `json:"savings"`
	SavingsPct       float64               `json:"savings_pct"`
	CO2Kg            float64               `json:"co2_kg"`
	TreesEquivalent  float64               `json:"trees_equivalent"`
	Status           string                `json:"status"`
	Warnings         []string              `json:"warnings"`
	PDFPath          string                `json:"pdf_path,omitempty"`
	CreatedBy        *int                  `json:"created_by"`
	GeneratedAt      time.Time             `json:"generated_at"`
	PaidAt           *time.Time            `json:"paid_at"`
	Installations    []InvoiceInstallation `json:"installations,omitempty"`
	Customer         *Customer             `json:"customer,omitempty"`
}

type InvoiceInstallation struct {
	InvoiceID      int     `json:"invoice_id"`
	InstallationID int     `json:"installation_id"`
	RecordID       int     `json:"record_id"`
	Code           string  `json:"code"`
	Name           string  `json:"name"`
	Consumption    float64 `json:"consumption"`
	Received       float64 `json:"received"`
	Compensation   float64 `json:"compensation"`
}

type Invitation struct {
	ID         int        `json:"id"`
	TenantID   int        `json:"tenant_id"`
	Email      string     `json:"email"`
	Role       string     `json:"role"`
	CustomerID *int       `json:"customer_id"`
	Status     string     `json:"status"`
	Token      string     `json:"-"`
	ExpiresAt  time.Time  `json:"expires_at"`
	InvitedBy  *int       `json:"invited_by"`
	AcceptedAt *time.Time `json:"accepted_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type Ticket struct {
	ID         int             `json:"id"`
	TenantID   int             `json:"tenant_id"`
	Number     string          `json:"number"`
	Subject    string          `json:"subject"`
	Category   string          `json:"category"`
	Priority   string          `json:"priority"`
	Status     string          `json:"status"`
	OpenedBy   int             `json:"opened_by"`
	AssignedTo *int            `json:"assigned_to"`
	CustomerID *int            `json:"customer_id"`
	Messages   []TicketMessage `json:"messages,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	ResolvedAt *time.Time      `json:"resolved_at"`
}

type TicketMessage struct {
	ID        int       `json:"id"`
	TicketID  int       `json:"ticket_id"`
	AuthorID  int       `json:"author_id"`
	Body      string    `json:"body"`
	Internal  bool      `json:"internal"`
	CreatedAt time.Time `json:"created_at"`
}

type Notification struct {
	ID        int        `json:"id"`
	TenantID  int        `json:"tenant_id"`
	AccountID int        `json:"account_id"`
	Kind      string     `json:"kind"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Link      string     `json:"link"`
	ReadAt    *time.Time `json:"read_at"`
	CreatedAt time.Time  `json:"created_at"`
}

type MessagingSettings struct {
	SMTPHost             string `json:"smtp_host"`
	SMTPPort             int    `json:"smtp_port"`
	SMTPUser             string `json:"smtp_user"`
	SMTPPassword         string `json:"smtp_password"`
	SMTPFrom             string `json:"smtp_from"`
	WhatsAppPhoneID      string `json:"whatsapp_phone_id"`
	WhatsAppToken        string `json:"whatsapp_token"`
	SenderName           string `json:"sender_name"`
	SenderDocument       string `json:"sender_document"`
	PixKey               string `json:"pix_key"`
	InvoiceMessageFooter string `json:"invoice_message_footer"`
}

type AdminLog struct {
	ID        int       `json:"id"`
	TenantID  int       `json:"tenant_id"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	AccountID *int      `json:"account_id"`
	IPAddress string    `json:"ip_address"`
	CreatedAt time.Time `json:"created_at"`
}

type DashboardStats struct {
	TotalCustomers     int     `json:"total_customers"`
	TotalInstallations int     `json:"total_installations"`
	GeneratorCount     int     `json:"generator_count"`
	ConsumerCount      int     `json:"consumer_count"`
	TotalDistributors  int     `json:"total_distributors"`
	PendingInvitations int     `json:"pending_invitations"`
	OpenTickets        int     `json:"open_tickets"`
	PendingAmount      float64 `json:"pending_amount"`
	PaidAmount         float64 `json:"paid_amount"`
	OverdueAmount      float64 `json:"overdue_amount"`
	InvoicedKwh        float64 `json:"invoiced_kwh"`
	TotalSavings       float64 `json:"total_savings"`
	CO2AvoidedKg       float64 `json:"co2_avoided_kg"`
	TreesEquivalent    float64 `json:"trees_equivalent"`
}
