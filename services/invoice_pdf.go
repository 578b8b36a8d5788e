package services

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aj9599/raas-platform/models"
	"github.com/aj9599/raas-platform/services/calc"
	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

// InvoiceDocument is everything the renderers need for one invoice.
type InvoiceDocument struct {
	Invoice  *models.Invoice
	Sender   models.MessagingSettings
	Currency string
	Language string
}

func (d InvoiceDocument) money(v float64) string {
	return calc.FormatCurrency(d.Currency, v)
}

func (d InvoiceDocument) customerName() string {
	if d.Invoice.Customer != nil {
		return d.Invoice.Customer.Name
	}
	return ""
}

// Filename is the name used for the stored PDF and for attachments.
func (d InvoiceDocument) Filename() string {
	return d.Invoice.InvoiceNumber + ".pdf"
}

// PixPayload returns the BR Code for the invoice or "" when no PIX key is
// configured or the invoice is already paid.
func (d InvoiceDocument) PixPayload() string {
	if d.Sender.PixKey == "" || d.Invoice.Status == models.InvoicePaid {
		return ""
	}
	payload, err := PixPayment{
		Key:    d.Sender.PixKey,
		Name:   d.Sender.SenderName,
		Amount: d.Invoice.TotalAmount,
		TxID:   d.Invoice.InvoiceNumber,
	}.Payload()
	if err != nil {
		return ""
	}
	return payload
}

type PDFGenerator struct {
	dir           string
	templateImage string
	logger        *zap.Logger
}

func NewPDFGenerator(dir, templateImage string, logger *zap.Logger) *PDFGenerator {
	return &PDFGenerator{dir: dir, templateImage: templateImage, logger: logger}
}

// Store writes rendered PDF bytes to the invoices directory.
func (pg *PDFGenerator) Store(doc InvoiceDocument, data []byte) (string, error) {
	if err := os.MkdirAll(pg.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create invoices directory: %v", err)
	}
	path := filepath.Join(pg.dir, doc.Filename())
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save PDF: %v", err)
	}

	pg.logger.Info("[PDF] Generated", zap.String("file", doc.Filename()))
	return path, nil
}

func (pg *PDFGenerator) RenderInvoicePDF(doc InvoiceDocument) ([]byte, error) {
	if doc.Invoice == nil {
		return nil, invalidf("invoice is required")
	}
	inv := doc.Invoice
	t := GetTranslations(doc.Language)

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	if pg.templateImage != "" {
		if _, err := os.Stat(pg.templateImage); err == nil {
			pdf.ImageOptions(pg.templateImage, 0, 0, 210, 297, false, gofpdf.ImageOptions{ReadDpi: true}, 0, "")
		} else {
			pg.logger.Warn("[PDF] Template image not found", zap.String("path", pg.templateImage))
		}
	}

	// Header
	pdf.SetFont("Arial", "B", 24)
	pdf.SetTextColor(22, 128, 61)
	pdf.Cell(0, 10, tr(t.Invoice))
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(100, 100, 100)
	pdf.Cell(0, 6, "#"+inv.InvoiceNumber)
	pdf.Ln(10)

	// Status badge
	switch inv.Status {
	case models.InvoicePaid:
		pdf.SetFillColor(212, 237, 218)
		pdf.SetTextColor(21, 87, 36)
	case models.InvoiceOverdue:
		pdf.SetFillColor(248, 215, 218)
		pdf.SetTextColor(114, 28, 36)
	default:
		pdf.SetFillColor(255, 243, 205)
		pdf.SetTextColor(133, 100, 4)
	}
	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(30, 6, tr(t.StatusLabel(inv.Status)), "", 0, "C", true, 0, "")
	pdf.Ln(12)

	// Sender
	pdf.SetTextColor(0, 0, 0)
	if doc.Sender.SenderName != "" {
		pdf.SetFont("Arial", "B", 10)
		pdf.Cell(0, 5, tr(doc.Sender.SenderName))
		pdf.Ln(4)
		if doc.Sender.SenderDocument != "" {
			pdf.SetFont("Arial", "", 9)
			pdf.Cell(0, 4, doc.Sender.SenderDocument)
			pdf.Ln(4)
		}
		pdf.Ln(4)
	}

	sectionTitle(pdf, tr(strings.ToUpper(t.BillTo)))
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(0, 5, tr(doc.customerName()))
	pdf.Ln(4)
	if inv.Customer != nil {
		pdf.SetFont("Arial", "", 9)
		for _, line := range []string{inv.Customer.Email, inv.Customer.Phone} {
			if line != "" {
				pdf.Cell(0, 4, tr(line))
				pdf.Ln(4)
			}
		}
	}
	pdf.Ln(4)

	sectionTitle(pdf, tr(strings.ToUpper(t.InvoiceDetails)))
	pdf.SetFont("Arial", "", 9)
	details := [][2]string{
		{t.Period, inv.ReferencePeriod},
		{t.DueDate, formatDueDate(inv.DueDate)},
		{t.Generated, inv.GeneratedAt.Format("02/01/2006")},
		{t.Billable, calc.FormatEnergy(inv.KwhQuantity) + " kWh (" + t.BasisLabel(inv.CalculationBasis) + ")"},
	}
	for _, d := range details {
		pdf.Cell(0, 4, tr(d[0]+": "+d[1]))
		pdf.Ln(4)
	}
	pdf.Ln(6)

	// Installations table
	pdf.SetFillColor(249, 249, 249)
	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(90, 8, tr(t.Installation), "B", 0, "L", true, 0, "")
	pdf.CellFormat(45, 8, tr(t.Consumption)+" (kWh)", "B", 0, "R", true, 0, "")
	pdf.CellFormat(45, 8, tr(t.Billable)+" (kWh)", "B", 0, "R", true, 0, "")
	pdf.Ln(8)

	basis, _ := calc.ParseBasis(inv.CalculationBasis)
	pdf.SetFont("Arial", "", 9)
	for _, item := range inv.Installations {
		billable := basis.Quantity(calc.Energy{
			Consumption:  item.Consumption,
			Received:     item.Received,
			Compensation: item.Compensation,
		})
		pdf.CellFormat(90, 6, tr(item.Code+" - "+item.Name), "", 0, "L", false, 0, "")
		pdf.CellFormat(45, 6, calc.FormatEnergy(item.Consumption), "", 0, "R", false, 0, "")
		pdf.CellFormat(45, 6, calc.FormatEnergy(billable), "", 0, "R", false, 0, "")
		pdf.Ln(6)
	}
	pdf.Ln(5)

	// Calculation
	pdf.SetFont("Arial", "", 9)
	lines := [][2]string{
		{t.Tariff, calc.FormatRate(inv.Tariff) + " / kWh"},
		{t.Discount, calc.FormatMoney(inv.DiscountPct) + "%"},
		{t.BilledRate, calc.FormatRate(inv.BilledRate) + " / kWh"},
		{t.GrossValue, doc.money(inv.GrossValue)},
		{t.Savings, doc.money(inv.Savings) + " (" + calc.FormatMoney(inv.SavingsPct) + "%)"},
	}
	for _, l := range lines {
		pdf.CellFormat(130, 5, tr(l[0]), "", 0, "L", false, 0, "")
		pdf.CellFormat(50, 5, tr(l[1]), "", 0, "R", false, 0, "")
		pdf.Ln(5)
	}
	pdf.Ln(3)

	pdf.SetFillColor(249, 249, 249)
	pdf.SetFont("Arial", "B", 18)
	pdf.CellFormat(0, 15, tr(t.Total+": "+doc.money(inv.TotalAmount)), "", 0, "R", true, 0, "")
	pdf.Ln(20)

	sectionTitle(pdf, tr(strings.ToUpper(t.Impact)))
	pdf.SetFont("Arial", "", 9)
	pdf.Cell(0, 4, tr(t.CO2Avoided+": "+calc.FormatMoney(inv.CO2Kg)+" kg"))
	pdf.Ln(4)
	pdf.Cell(0, 4, tr(t.Trees+": "+calc.FormatEnergy(inv.TreesEquivalent)))
	pdf.Ln(10)

	if payload := doc.PixPayload(); payload != "" {
		png, err := qrcode.Encode(payload, qrcode.Medium, 256)
		if err != nil {
			pg.logger.Warn("[PDF] Failed to generate QR code", zap.Error(err))
		} else {
			sectionTitle(pdf, tr(strings.ToUpper(t.PaymentInfo)))
			opts := gofpdf.ImageOptions{ImageType: "PNG"}
			name := "pix-" + inv.InvoiceNumber
			pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(png))
			if pdf.GetY() > 230 {
				pdf.AddPage()
			}
			y := pdf.GetY()
			pdf.ImageOptions(name, 15, y, 40, 40, false, opts, 0, "")
			pdf.SetXY(60, y+4)
			pdf.SetFont("Arial", "", 9)
			pdf.Cell(0, 4, tr(t.ScanToPay))
			pdf.SetXY(60, y+10)
			pdf.Cell(0, 4, tr(t.PixKey+": "+doc.Sender.PixKey))
			pdf.SetXY(60, y+16)
			pdf.SetFont("Arial", "", 6)
			pdf.MultiCell(135, 3, payload, "", "L", false)
			pdf.SetXY(15, y+44)
		}
	}

	pdf.SetFont("Arial", "I", 9)
	pdf.SetTextColor(100, 100, 100)
	if doc.Sender.InvoiceMessageFooter != "" {
		pdf.MultiCell(0, 4, tr(doc.Sender.InvoiceMessageFooter), "", "L", false)
		pdf.Ln(2)
	}
	pdf.Cell(0, 4, tr(t.ThankYou))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render PDF: %v", err)
	}
	return buf.Bytes(), nil
}

func sectionTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Arial", "B", 10)
	pdf.SetTextColor(100, 100, 100)
	pdf.Cell(0, 6, title)
	pdf.Ln(6)
	pdf.SetTextColor(0, 0, 0)
}

// formatDueDate turns the stored YYYY-MM-DD into DD/MM/YYYY.
func formatDueDate(date string) string {
	parts := strings.Split(date, "-")
	if len(parts) != 3 {
		return date
	}
	return parts[2] + "/" + parts[1] + "/" + parts[0]
}
