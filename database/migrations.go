package database

import (
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultTenantSlug    = "default"
	DefaultAdminEmail    = "admin@raas.local"
	DefaultAdminPassword = "admin123"
)

func RunMigrations(db *sql.DB, logger *zap.Logger) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			slug TEXT UNIQUE NOT NULL,
			is_active INTEGER DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS customers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			document TEXT,
			email TEXT,
			phone TEXT,
			address_street TEXT,
			address_number TEXT,
			address_district TEXT,
			address_city TEXT,
			address_state TEXT,
			address_postal_code TEXT,
			address_country TEXT DEFAULT 'Brasil',
			default_calculation_type TEXT DEFAULT 'compensation',
			default_discount_pct REAL DEFAULT 0,
			language TEXT DEFAULT 'pt',
			notes TEXT,
			is_active INTEGER DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (tenant_id) REFERENCES tenants(id)
		)`,

		`CREATE TABLE IF NOT EXISTS accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER NOT NULL,
			email TEXT UNIQUE NOT NULL,
			first_name TEXT NOT NULL,
			last_name TEXT,
			phone TEXT,
			role TEXT NOT NULL,
			customer_id INTEGER,
			language TEXT DEFAULT 'pt',
			is_active INTEGER DEFAULT 1,
			password_hash TEXT NOT NULL,
			last_login_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (tenant_id) REFERENCES tenants(id),
			FOREIGN KEY (customer_id) REFERENCES customers(id)
		)`,

		`CREATE TABLE IF NOT EXISTS distributors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			price_per_kwh REAL NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (tenant_id) REFERENCES tenants(id)
		)`,

		`CREATE TABLE IF NOT EXISTS installations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER NOT NULL,
			code TEXT NOT NULL,
			name TEXT NOT NULL,
			type TEXT NOT NULL CHECK (type IN ('GENERATOR', 'CONSUMER')),
			distributor_id INTEGER NOT NULL,
			customer_id INTEGER NOT NULL,
			address_street TEXT,
			address_number TEXT,
			address_district TEXT,
			address_city TEXT,
			address_state TEXT,
			address_postal_code TEXT,
			address_country TEXT DEFAULT 'Brasil',
			is_active INTEGER DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (tenant_id, code),
			FOREIGN KEY (tenant_id) REFERENCES tenants(id),
			FOREIGN KEY (distributor_id) REFERENCES distributors(id),
			FOREIGN KEY (customer_id) REFERENCES customers(id)
		)`,

		`CREATE TABLE IF NOT EXISTS energy_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			installation_id INTEGER NOT NULL,
			period TEXT NOT NULL,
			period_key TEXT NOT NULL,
			consumption REAL NOT NULL DEFAULT 0,
			generation REAL NOT NULL DEFAULT 0,
			received REAL NOT NULL DEFAULT 0,
			compensation REAL NOT NULL DEFAULT 0,
			transferred REAL NOT NULL DEFAULT 0,
			previous_balance REAL NOT NULL DEFAULT 0,
			current_balance REAL NOT NULL DEFAULT 0,
			expiring_balance_amount REAL NOT NULL DEFAULT 0,
			expiring_balance_period TEXT,
			quota REAL NOT NULL DEFAULT 0,
			source TEXT DEFAULT 'manual',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (installation_id, period),
			FOREIGN KEY (installation_id) REFERENCES installations(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS allocations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER NOT NULL,
			generator_id INTEGER NOT NULL,
			consumer_id INTEGER NOT NULL,
			quota REAL NOT NULL CHECK (quota > 0 AND quota <= 100),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (generator_id, consumer_id),
			FOREIGN KEY (generator_id) REFERENCES installations(id) ON DELETE CASCADE,
			FOREIGN KEY (consumer_id) REFERENCES installations(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS invoices (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER NOT NULL,
			invoice_number TEXT UNIQUE NOT NULL,
			customer_id INTEGER NOT NULL,
			reference_period TEXT NOT NULL,
			due_date TEXT NOT NULL,
			tariff REAL NOT NULL,
			discount_pct REAL NOT NULL,
			calculation_basis TEXT NOT NULL,
			kwh_quantity REAL NOT NULL,
			consumption_kwh REAL NOT NULL,
			billed_rate REAL NOT NULL,
			total_amount REAL NOT NULL,
			gross_value REAL NOT NULL,
			savings REAL NOT NULL,
			savings_pct REAL NOT NULL,
			co2_kg REAL NOT NULL DEFAULT 0,
			trees_equivalent REAL NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			warnings TEXT,
			pdf_path TEXT,
			created_by INTEGER,
			generated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			paid_at DATETIME,
			FOREIGN KEY (tenant_id) REFERENCES tenants(id),
			FOREIGN KEY (customer_id) REFERENCES customers(id)
		)`,

		`CREATE TABLE IF NOT EXISTS invoice_installations (
			invoice_id INTEGER NOT NULL,
			installation_id INTEGER NOT NULL,
			record_id INTEGER NOT NULL,
			PRIMARY KEY (invoice_id, installation_id),
			FOREIGN KEY (invoice_id) REFERENCES invoices(id) ON DELETE CASCADE,
			FOREIGN KEY (installation_id) REFERENCES installations(id),
			FOREIGN KEY (record_id) REFERENCES energy_records(id)
		)`,

		`CREATE TABLE IF NOT EXISTS invitations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER NOT NULL,
			email TEXT NOT NULL,
			role TEXT NOT NULL,
			customer_id INTEGER,
			status TEXT NOT NULL DEFAULT 'PENDING',
			token TEXT UNIQUE NOT NULL,
			expires_at DATETIME NOT NULL,
			invited_by INTEGER,
			accepted_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (tenant_id) REFERENCES tenants(id)
		)`,

		`CREATE TABLE IF NOT EXISTS tickets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER NOT NULL,
			number TEXT UNIQUE NOT NULL,
			subject TEXT NOT NULL,
			category TEXT DEFAULT 'general',
			priority TEXT DEFAULT 'normal',
			status TEXT NOT NULL DEFAULT 'open',
			opened_by INTEGER NOT NULL,
			assigned_to INTEGER,
			customer_id INTEGER,
			resolved_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (tenant_id) REFERENCES tenants(id),
			FOREIGN KEY (opened_by) REFERENCES accounts(id)
		)`,

		`CREATE TABLE IF NOT EXISTS ticket_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticket_id INTEGER NOT NULL,
			author_id INTEGER NOT NULL,
			body TEXT NOT NULL,
			internal INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (ticket_id) REFERENCES tickets(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS notifications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER NOT NULL,
			account_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			title TEXT NOT NULL,
			body TEXT,
			link TEXT,
			read_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS messaging_settings (
			tenant_id INTEGER PRIMARY KEY,
			smtp_host TEXT DEFAULT '',
			smtp_port INTEGER DEFAULT 587,
			smtp_user TEXT DEFAULT '',
			smtp_password TEXT DEFAULT '',
			smtp_from TEXT DEFAULT '',
			whatsapp_phone_id TEXT DEFAULT '',
			whatsapp_token TEXT DEFAULT '',
			sender_name TEXT DEFAULT '',
			sender_document TEXT DEFAULT '',
			pix_key TEXT DEFAULT '',
			invoice_message_footer TEXT DEFAULT '',
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (tenant_id) REFERENCES tenants(id)
		)`,

		`CREATE TABLE IF NOT EXISTS admin_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER,
			action TEXT NOT NULL,
			details TEXT,
			account_id INTEGER,
			ip_address TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_energy_records_installation ON energy_records(installation_id, period_key)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_tenant_status ON invoices(tenant_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_customer ON invoices(customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_invitations_tenant ON invitations(tenant_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_account ON notifications(account_id, read_at)`,
		`CREATE INDEX IF NOT EXISTS idx_admin_logs_created ON admin_logs(created_at)`,
	}

	for i, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}

	if err := createTriggers(db, logger); err != nil {
		return err
	}

	tenantID, err := createDefaultTenant(db, logger)
	if err != nil {
		return fmt.Errorf("failed to create default tenant: %w", err)
	}

	if err := createDefaultAdmin(db, tenantID, logger); err != nil {
		return fmt.Errorf("failed to create default admin: %w", err)
	}

	logger.Info("Migrations completed successfully")
	return nil
}

func createTriggers(db *sql.DB, logger *zap.Logger) error {
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS energy_records_no_update
		BEFORE UPDATE ON energy_records
		BEGIN
			SELECT RAISE(ABORT, 'energy records are append-only');
		END`,

		`CREATE TRIGGER IF NOT EXISTS update_tickets_timestamp
		AFTER UPDATE ON tickets
		FOR EACH ROW
		WHEN NEW.updated_at = OLD.updated_at
		BEGIN
			UPDATE tickets SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
		END`,
	}

	for _, trigger := range triggers {
		if _, err := db.Exec(trigger); err != nil {
			if !strings.Contains(err.Error(), "already exists") {
				logger.Warn("Trigger warning", zap.Error(err))
			}
		}
	}
	return nil
}

func createDefaultTenant(db *sql.DB, logger *zap.Logger) (int, error) {
	var id int
	err := db.QueryRow("SELECT id FROM tenants WHERE slug = ?", DefaultTenantSlug).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	result, err := db.Exec(`INSERT INTO tenants (name, slug) VALUES (?, ?)`, "Default", DefaultTenantSlug)
	if err != nil {
		return 0, err
	}
	newID, _ := result.LastInsertId()
	logger.Info("Default tenant created", zap.Int64("tenant_id", newID))
	return int(newID), nil
}

func createDefaultAdmin(db *sql.DB, tenantID int, logger *zap.Logger) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM accounts").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(DefaultAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		INSERT INTO accounts (tenant_id, email, first_name, last_name, role, password_hash)
		VALUES (?, ?, ?, ?, ?, ?)
	`, tenantID, DefaultAdminEmail, "Admin", "", "super_admin", string(hashedPassword))
	if err != nil {
		return err
	}

	logger.Warn("Default admin account created, change the password immediately",
		zap.String("email", DefaultAdminEmail))
	return nil
}
