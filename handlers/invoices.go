package handlers

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/aj9599/raas-platform/models"
	"github.com/aj9599/raas-platform/services"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type InvoiceHandler struct {
	billing  *services.BillingService
	delivery *services.DeliveryService
	logger   *zap.Logger
	audit    auditLog
}

func NewInvoiceHandler(db *sql.DB, billing *services.BillingService, delivery *services.DeliveryService, logger *zap.Logger) *InvoiceHandler {
	return &InvoiceHandler{billing: billing, delivery: delivery, logger: logger, audit: auditLog{db, logger}}
}

type StatusRequest struct {
	Status string `json:"status"`
}

type SendEmailRequest struct {
	To string `json:"to"`
}

type SendWhatsAppRequest struct {
	Phone string `json:"phone"`
}

type DeliveryResponse struct {
	Status    string `json:"status"`
	Channel   string `json:"channel"`
	MessageID string `json:"message_id,omitempty"`
}

// ClientData feeds the invoice form: the customer, its installations with
// their records and the tariff and basis that would apply.
func (h *InvoiceHandler) ClientData(w http.ResponseWriter, r *http.Request) {
	var req services.ClientDataRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	data, err := h.billing.ClientData(r.Context(), identity(r).TenantID, req)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (h *InvoiceHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req services.InvoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	preview, err := h.billing.Preview(r.Context(), identity(r).TenantID, req)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (h *InvoiceHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req services.InvoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	caller := identity(r)

	inv, err := h.billing.Generate(r.Context(), caller.TenantID, caller.AccountID, req)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.audit.logToDatabase(r, "Invoice Generated",
		fmt.Sprintf("%s for customer %d, %s: %.2f", inv.InvoiceNumber, inv.CustomerID, inv.ReferencePeriod, inv.TotalAmount))
	writeJSON(w, http.StatusCreated, inv)
}

func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	params, err := listParams(r)
	if err != nil {
		http.Error(w, "Invalid query", http.StatusBadRequest)
		return
	}
	page, err := h.billing.ListInvoices(r.Context(), identity(r).TenantID, params)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// visible loads an invoice the caller may read.
func (h *InvoiceHandler) visible(r *http.Request) (*models.Invoice, bool, error) {
	id, ok := pathID(r, "id")
	if !ok {
		return nil, false, nil
	}
	caller := identity(r)
	inv, err := h.billing.GetInvoice(r.Context(), caller.TenantID, id)
	if err != nil {
		return nil, true, err
	}
	if !canSeeCustomer(caller, inv.CustomerID) {
		return nil, true, services.ErrNotFound
	}
	return inv, true, nil
}

func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	inv, ok, err := h.visible(r)
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *InvoiceHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	var req StatusRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	inv, err := h.billing.UpdateStatus(r.Context(), identity(r).TenantID, id, req.Status)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.audit.logToDatabase(r, "Invoice Status Updated", fmt.Sprintf("%s -> %s", inv.InvoiceNumber, inv.Status))
	writeJSON(w, http.StatusOK, inv)
}

func (h *InvoiceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	if err := h.billing.DeleteInvoice(r.Context(), identity(r).TenantID, id); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.audit.logToDatabase(r, "Invoice Deleted", fmt.Sprintf("ID %d", id))
	w.WriteHeader(http.StatusNoContent)
}

func (h *InvoiceHandler) PDF(w http.ResponseWriter, r *http.Request) {
	inv, ok, err := h.visible(r)
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	doc, data, err := h.delivery.PDF(r.Context(), identity(r).TenantID, inv.ID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%s", doc.Filename()))
	w.Write(data)
}

func (h *InvoiceHandler) PreviewImage(w http.ResponseWriter, r *http.Request) {
	inv, ok, err := h.visible(r)
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	png, err := h.delivery.PreviewImage(r.Context(), identity(r).TenantID, inv.ID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%s.png", inv.InvoiceNumber))
	w.Write(png)
}

func (h *InvoiceHandler) SendEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	var req SendEmailRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	to, err := h.delivery.SendEmail(r.Context(), identity(r).TenantID, id, req.To)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.audit.logToDatabase(r, "Invoice Emailed", fmt.Sprintf("ID %d to %s", id, to))
	writeJSON(w, http.StatusOK, DeliveryResponse{Status: "sent", Channel: services.ChannelEmail, MessageID: to})
}

func (h *InvoiceHandler) SendWhatsApp(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	var req SendWhatsAppRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	messageID, err := h.delivery.SendWhatsApp(r.Context(), identity(r).TenantID, id, req.Phone)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.audit.logToDatabase(r, "Invoice Sent via WhatsApp", fmt.Sprintf("ID %d (%s)", id, messageID))
	writeJSON(w, http.StatusOK, DeliveryResponse{Status: "sent", Channel: services.ChannelWhatsApp, MessageID: messageID})
}

// Export downloads the filtered invoice list as a spreadsheet.
func (h *InvoiceHandler) Export(w http.ResponseWriter, r *http.Request) {
	params, err := listParams(r)
	if err != nil {
		http.Error(w, "Invalid query", http.StatusBadRequest)
		return
	}
	invoices, err := h.billing.AllInvoices(r.Context(), identity(r).TenantID, params)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	data, err := services.InvoicesXLSX(invoices)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	filename := fmt.Sprintf("invoices_%s.xlsx", time.Now().Format("20060102_150405"))
	h.audit.logToDatabase(r, "Invoices Exported", fmt.Sprintf("%d invoices", len(invoices)))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.Write(data)
}
