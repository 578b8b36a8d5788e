package services

// InvoiceTranslations contains all text that appears on invoices and
// delivery messages
type InvoiceTranslations struct {
	Invoice          string
	Status           string
	BillTo           string
	InvoiceDetails   string
	Period           string
	DueDate          string
	Generated        string
	Installation     string
	Consumption      string
	Billable         string
	Tariff           string
	Discount         string
	BilledRate       string
	GrossValue       string
	Savings          string
	Total            string
	Impact           string
	CO2Avoided       string
	Trees            string
	PaymentInfo      string
	PixKey           string
	ScanToPay        string
	ThankYou         string
	EmailSubject     string
	EmailGreeting    string
	EmailBody        string
	WhatsAppCaption  string
	StatusPending    string
	StatusPaid       string
	StatusOverdue    string
	BasisCompensated string
	BasisReceived    string
}

// GetTranslations returns translations for the specified language.
// Portuguese is the default.
func GetTranslations(language string) InvoiceTranslations {
	switch language {
	case "en":
		return InvoiceTranslations{
			Invoice:          "Invoice",
			Status:           "Status",
			BillTo:           "Bill to",
			InvoiceDetails:   "Invoice details",
			Period:           "Reference period",
			DueDate:          "Due date",
			Generated:        "Generated",
			Installation:     "Installation",
			Consumption:      "Consumption",
			Billable:         "Billed energy",
			Tariff:           "Distributor tariff",
			Discount:         "Discount",
			BilledRate:       "Billed rate",
			GrossValue:       "Value without discount",
			Savings:          "Your savings",
			Total:            "Total",
			Impact:           "Environmental impact",
			CO2Avoided:       "CO2 avoided",
			Trees:            "Trees planted equivalent",
			PaymentInfo:      "Payment information",
			PixKey:           "PIX key",
			ScanToPay:        "Scan the QR code to pay with PIX",
			ThankYou:         "Thank you for choosing renewable energy!",
			EmailSubject:     "Invoice %s - %s",
			EmailGreeting:    "Hello %s,",
			EmailBody:        "Your invoice for %s is attached. Amount due: %s, due on %s.",
			WhatsAppCaption:  "Invoice %s - %s - due on %s",
			StatusPending:    "Pending",
			StatusPaid:       "Paid",
			StatusOverdue:    "Overdue",
			BasisCompensated: "compensated energy",
			BasisReceived:    "received energy",
		}
	default:
		return InvoiceTranslations{
			Invoice:          "Fatura",
			Status:           "Situação",
			BillTo:           "Cliente",
			InvoiceDetails:   "Detalhes da fatura",
			Period:           "Mês de referência",
			DueDate:          "Vencimento",
			Generated:        "Emitida em",
			Installation:     "Instalação",
			Consumption:      "Consumo",
			Billable:         "Energia faturada",
			Tariff:           "Tarifa da distribuidora",
			Discount:         "Desconto",
			BilledRate:       "Tarifa com desconto",
			GrossValue:       "Valor sem desconto",
			Savings:          "Sua economia",
			Total:            "Total",
			Impact:           "Impacto ambiental",
			CO2Avoided:       "CO2 evitado",
			Trees:            "Equivalente em árvores plantadas",
			PaymentInfo:      "Informações de pagamento",
			PixKey:           "Chave PIX",
			ScanToPay:        "Escaneie o QR code para pagar com PIX",
			ThankYou:         "Obrigado por escolher energia renovável!",
			EmailSubject:     "Fatura %s - %s",
			EmailGreeting:    "Olá %s,",
			EmailBody:        "Segue em anexo a sua fatura de %s. Valor: %s, vencimento em %s.",
			WhatsAppCaption:  "Fatura %s - %s - vencimento %s",
			StatusPending:    "Pendente",
			StatusPaid:       "Paga",
			StatusOverdue:    "Vencida",
			BasisCompensated: "energia compensada",
			BasisReceived:    "energia recebida",
		}
	}
}

func (t InvoiceTranslations) StatusLabel(status string) string {
	switch status {
	case "paid":
		return t.StatusPaid
	case "overdue":
		return t.StatusOverdue
	default:
		return t.StatusPending
	}
}

func (t InvoiceTranslations) BasisLabel(basis string) string {
	if basis == "receipt" {
		return t.BasisReceived
	}
	return t.BasisCompensated
}
