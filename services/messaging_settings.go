package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aj9599/raas-platform/crypto"
	"github.com/aj9599/raas-platform/models"
	"go.uber.org/zap"
)

// SecretMask replaces stored secrets in API responses. Sending it back on
// update keeps the stored value.
const SecretMask = "********"

// SettingsStore reads and writes the per-tenant messaging settings. The SMTP
// password and the WhatsApp token are stored encrypted.
type SettingsStore struct {
	db     *sql.DB
	logger *zap.Logger
	key    []byte
}

func NewSettingsStore(db *sql.DB, logger *zap.Logger, key []byte) *SettingsStore {
	return &SettingsStore{db: db, logger: logger, key: key}
}

// Load returns the settings with secrets decrypted. A tenant without a row
// gets the defaults.
func (s *SettingsStore) Load(ctx context.Context, tenantID int) (*models.MessagingSettings, error) {
	var m models.MessagingSettings
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(smtp_host, ''), COALESCE(smtp_port, 587), COALESCE(smtp_user, ''), COALESCE(smtp_password, ''),
		       COALESCE(smtp_from, ''), COALESCE(whatsapp_phone_id, ''), COALESCE(whatsapp_token, ''),
		       COALESCE(sender_name, ''), COALESCE(sender_document, ''), COALESCE(pix_key, ''),
		       COALESCE(invoice_message_footer, '')
		FROM messaging_settings WHERE tenant_id = ?
	`, tenantID).Scan(&m.SMTPHost, &m.SMTPPort, &m.SMTPUser, &m.SMTPPassword,
		&m.SMTPFrom, &m.WhatsAppPhoneID, &m.WhatsAppToken,
		&m.SenderName, &m.SenderDocument, &m.PixKey, &m.InvoiceMessageFooter)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.MessagingSettings{SMTPPort: 587}, nil
	}
	if err != nil {
		return nil, err
	}

	if m.SMTPPassword, err = crypto.Decrypt(m.SMTPPassword, s.key); err != nil {
		return nil, fmt.Errorf("decrypt smtp password: %w", err)
	}
	if m.WhatsAppToken, err = crypto.Decrypt(m.WhatsAppToken, s.key); err != nil {
		return nil, fmt.Errorf("decrypt whatsapp token: %w", err)
	}
	return &m, nil
}

// Masked is Load with the secrets hidden.
func (s *SettingsStore) Masked(ctx context.Context, tenantID int) (*models.MessagingSettings, error) {
	m, err := s.Load(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if m.SMTPPassword != "" {
		m.SMTPPassword = SecretMask
	}
	if m.WhatsAppToken != "" {
		m.WhatsAppToken = SecretMask
	}
	return m, nil
}

func (s *SettingsStore) Save(ctx context.Context, tenantID int, in models.MessagingSettings) error {
	if in.SMTPPort < 0 || in.SMTPPort > 65535 {
		return invalidf("smtp_port must be a valid port")
	}
	if in.SMTPPort == 0 {
		in.SMTPPort = 587
	}

	current, err := s.Load(ctx, tenantID)
	if err != nil {
		return err
	}
	if in.SMTPPassword == SecretMask {
		in.SMTPPassword = current.SMTPPassword
	}
	if in.WhatsAppToken == SecretMask {
		in.WhatsAppToken = current.WhatsAppToken
	}

	password, err := crypto.Encrypt(in.SMTPPassword, s.key)
	if err != nil {
		return err
	}
	token, err := crypto.Encrypt(in.WhatsAppToken, s.key)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messaging_settings (
			tenant_id, smtp_host, smtp_port, smtp_user, smtp_password, smtp_from,
			whatsapp_phone_id, whatsapp_token, sender_name, sender_document, pix_key,
			invoice_message_footer, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(tenant_id) DO UPDATE SET
			smtp_host = excluded.smtp_host,
			smtp_port = excluded.smtp_port,
			smtp_user = excluded.smtp_user,
			smtp_password = excluded.smtp_password,
			smtp_from = excluded.smtp_from,
			whatsapp_phone_id = excluded.whatsapp_phone_id,
			whatsapp_token = excluded.whatsapp_token,
			sender_name = excluded.sender_name,
			sender_document = excluded.sender_document,
			pix_key = excluded.pix_key,
			invoice_message_footer = excluded.invoice_message_footer,
			updated_at = CURRENT_TIMESTAMP
	`, tenantID, in.SMTPHost, in.SMTPPort, in.SMTPUser, password, in.SMTPFrom,
		in.WhatsAppPhoneID, token, in.SenderName, in.SenderDocument, in.PixKey,
		in.InvoiceMessageFooter)
	if err != nil {
		return err
	}

	s.logger.Info("[SETTINGS] Messaging settings updated", zap.Int("tenant_id", tenantID))
	return nil
}
