package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/aj9599/raas-platform/metrics"
	"github.com/aj9599/raas-platform/models"
	"go.uber.org/zap"
)

const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"

	DocumentPDF     = "pdf"
	DocumentPreview = "preview"
)

// DeliveryService renders invoice documents and sends them to customers.
// Render and provider failures come back wrapped in ErrDownstream and leave
// a notification for the tenant's operators.
type DeliveryService struct {
	billing       *BillingService
	settings      *SettingsStore
	pdf           *PDFGenerator
	preview       *PreviewRenderer
	mailer        *Mailer
	whatsapp      *WhatsAppClient
	notifications *NotificationService
	currency      string
	logger        *zap.Logger
}

type DeliveryDeps struct {
	Billing       *BillingService
	Settings      *SettingsStore
	PDF           *PDFGenerator
	Preview       *PreviewRenderer
	Mailer        *Mailer
	WhatsApp      *WhatsAppClient
	Notifications *NotificationService
	Currency      string
}

func NewDeliveryService(deps DeliveryDeps, logger *zap.Logger) *DeliveryService {
	return &DeliveryService{
		billing:       deps.Billing,
		settings:      deps.Settings,
		pdf:           deps.PDF,
		preview:       deps.Preview,
		mailer:        deps.Mailer,
		whatsapp:      deps.WhatsApp,
		notifications: deps.Notifications,
		currency:      deps.Currency,
		logger:        logger,
	}
}

// Document loads the invoice with its customer and the tenant's sender
// settings.
func (d *DeliveryService) Document(ctx context.Context, tenantID, invoiceID int) (InvoiceDocument, error) {
	inv, err := d.billing.GetInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		return InvoiceDocument{}, err
	}
	customer, err := d.billing.loadCustomer(ctx, tenantID, inv.CustomerID)
	if err != nil {
		return InvoiceDocument{}, err
	}
	inv.Customer = customer

	settings, err := d.settings.Load(ctx, tenantID)
	if err != nil {
		return InvoiceDocument{}, err
	}

	return InvoiceDocument{
		Invoice:  inv,
		Sender:   *settings,
		Currency: d.currency,
		Language: customer.Language,
	}, nil
}

// PDF renders the invoice, stores the file and records its path.
func (d *DeliveryService) PDF(ctx context.Context, tenantID, invoiceID int) (InvoiceDocument, []byte, error) {
	doc, err := d.Document(ctx, tenantID, invoiceID)
	if err != nil {
		return doc, nil, err
	}
	data, err := d.renderPDF(ctx, tenantID, doc)
	return doc, data, err
}

func (d *DeliveryService) renderPDF(ctx context.Context, tenantID int, doc InvoiceDocument) ([]byte, error) {
	data, err := d.pdf.RenderInvoicePDF(doc)
	if err == nil {
		var path string
		path, err = d.pdf.Store(doc, data)
		if err == nil {
			if setErr := d.billing.SetPDFPath(ctx, tenantID, doc.Invoice.ID, path); setErr != nil {
				d.logger.Warn("[DELIVERY] Could not store PDF path", zap.Int("invoice_id", doc.Invoice.ID), zap.Error(setErr))
			}
		}
	}
	metrics.DocumentRendered(DocumentPDF, err)
	if err != nil {
		return nil, d.fail(ctx, tenantID, doc.Invoice, NotifyRenderFailed, "render pdf", err)
	}
	return data, nil
}

func (d *DeliveryService) PreviewImage(ctx context.Context, tenantID, invoiceID int) ([]byte, error) {
	doc, err := d.Document(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	png, err := d.preview.RenderPNG(ctx, doc)
	metrics.DocumentRendered(DocumentPreview, err)
	if err != nil {
		return nil, d.fail(ctx, tenantID, doc.Invoice, NotifyRenderFailed, "render preview", err)
	}
	return png, nil
}

// SendEmail mails the invoice PDF. An empty address falls back to the
// customer's email.
func (d *DeliveryService) SendEmail(ctx context.Context, tenantID, invoiceID int, to string) (string, error) {
	doc, err := d.Document(ctx, tenantID, invoiceID)
	if err != nil {
		return "", err
	}
	to = strings.TrimSpace(to)
	if to == "" {
		to = doc.Invoice.Customer.Email
	}
	if to == "" {
		return "", invalidf("customer has no email address")
	}
	if _, err := NormalizeEmail(to); err != nil {
		return "", err
	}

	pdf, err := d.renderPDF(ctx, tenantID, doc)
	if err != nil {
		return "", err
	}

	t := GetTranslations(doc.Language)
	inv := doc.Invoice
	email := Email{
		To:       []string{to},
		Subject:  fmt.Sprintf(t.EmailSubject, inv.InvoiceNumber, inv.ReferencePeriod),
		HTMLBody: invoiceEmailBody(doc, t),
		Attachments: []Attachment{{
			Filename:    doc.Filename(),
			ContentType: "application/pdf",
			Data:        pdf,
		}},
	}

	err = d.mailer.Send(&doc.Sender, email)
	metrics.Delivery(ChannelEmail, err)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) || errors.Is(err, ErrInvalidInput) {
			return "", err
		}
		return "", d.fail(ctx, tenantID, inv, NotifyDeliveryFailed, "send email", err)
	}
	return to, nil
}

// SendWhatsApp sends the invoice PDF as a WhatsApp document. An empty phone
// falls back to the customer's phone.
func (d *DeliveryService) SendWhatsApp(ctx context.Context, tenantID, invoiceID int, phone string) (string, error) {
	doc, err := d.Document(ctx, tenantID, invoiceID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(phone) == "" {
		phone = doc.Invoice.Customer.Phone
	}
	if NormalizePhone(phone) == "" {
		return "", invalidf("customer has no phone number")
	}

	pdf, err := d.renderPDF(ctx, tenantID, doc)
	if err != nil {
		return "", err
	}

	t := GetTranslations(doc.Language)
	inv := doc.Invoice
	caption := fmt.Sprintf(t.WhatsAppCaption, inv.InvoiceNumber, doc.money(inv.TotalAmount), formatDueDate(inv.DueDate))

	messageID, err := d.whatsapp.SendDocument(ctx, &doc.Sender, phone, doc.Filename(), caption, pdf)
	metrics.Delivery(ChannelWhatsApp, err)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) || errors.Is(err, ErrInvalidInput) {
			return "", err
		}
		return "", d.fail(ctx, tenantID, inv, NotifyDeliveryFailed, "send whatsapp", err)
	}
	return messageID, nil
}

// SendTestEmail checks the tenant's SMTP settings.
func (d *DeliveryService) SendTestEmail(ctx context.Context, tenantID int, to string) error {
	if _, err := NormalizeEmail(to); err != nil {
		return err
	}
	settings, err := d.settings.Load(ctx, tenantID)
	if err != nil {
		return err
	}
	err = d.mailer.Send(settings, Email{
		To:       []string{to},
		Subject:  "RaaS Platform - test email",
		HTMLBody: "<p>Your SMTP settings are working.</p>",
	})
	metrics.Delivery(ChannelEmail, err)
	if err != nil && !errors.Is(err, ErrNotConfigured) {
		return downstream("send test email", err)
	}
	return err
}

func (d *DeliveryService) fail(ctx context.Context, tenantID int, inv *models.Invoice, kind, op string, err error) error {
	d.logger.Error("[DELIVERY] "+op+" failed", zap.Int("invoice_id", inv.ID), zap.Error(err))
	if d.notifications != nil {
		d.notifications.NotifyOperators(ctx, tenantID, kind,
			fmt.Sprintf("Invoice %s: %s failed", inv.InvoiceNumber, op),
			err.Error(),
			fmt.Sprintf("/invoices/%d", inv.ID))
	}
	return downstream(op, err)
}

func invoiceEmailBody(doc InvoiceDocument, t InvoiceTranslations) string {
	inv := doc.Invoice
	var b strings.Builder
	b.WriteString("<html><body style=\"font-family: Arial, sans-serif;\">")
	fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(fmt.Sprintf(t.EmailGreeting, doc.customerName())))
	fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(fmt.Sprintf(t.EmailBody,
		inv.ReferencePeriod, doc.money(inv.TotalAmount), formatDueDate(inv.DueDate))))
	if payload := doc.PixPayload(); payload != "" {
		fmt.Fprintf(&b, "<p><strong>PIX</strong><br><code>%s</code></p>", html.EscapeString(payload))
	}
	if doc.Sender.InvoiceMessageFooter != "" {
		fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(doc.Sender.InvoiceMessageFooter))
	}
	fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(t.ThankYou))
	b.WriteString("</body></html>")
	return b.String()
}
