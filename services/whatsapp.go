package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/aj9599/raas-platform/models"
	"go.uber.org/zap"
)

// WhatsAppClient delivers documents through the WhatsApp Cloud API: the PDF
// is uploaded as media first, then sent as a document message.
type WhatsAppClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewWhatsAppClient(baseURL string, logger *zap.Logger) *WhatsAppClient {
	return &WhatsAppClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

type whatsAppError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendDocument uploads the document and sends it to the phone number.
// Returns the message id.
func (c *WhatsAppClient) SendDocument(ctx context.Context, settings *models.MessagingSettings, phone, filename, caption string, data []byte) (string, error) {
	if settings == nil || settings.WhatsAppPhoneID == "" || settings.WhatsAppToken == "" {
		return "", fmt.Errorf("%w: WhatsApp phone id and token must be configured", ErrNotConfigured)
	}
	to := NormalizePhone(phone)
	if to == "" {
		return "", invalidf("recipient phone number is missing")
	}

	mediaID, err := c.uploadMedia(ctx, settings, filename, data)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "document",
		"document": map[string]string{
			"id":       mediaID,
			"filename": filename,
			"caption":  caption,
		},
	}
	body, _ := json.Marshal(payload)

	var resp struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := c.do(ctx, settings, fmt.Sprintf("%s/%s/messages", c.baseURL, settings.WhatsAppPhoneID),
		"application/json", bytes.NewReader(body), &resp); err != nil {
		return "", err
	}
	if len(resp.Messages) == 0 {
		return "", fmt.Errorf("whatsapp: response without message id")
	}

	c.logger.Info("[WHATSAPP] Document sent", zap.String("to", to), zap.String("message_id", resp.Messages[0].ID))
	return resp.Messages[0].ID, nil
}

func (c *WhatsAppClient) uploadMedia(ctx context.Context, settings *models.MessagingSettings, filename string, data []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("messaging_product", "whatsapp")
	mw.WriteField("type", "application/pdf")
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {fmt.Sprintf(`form-data; name="file"; filename=%q`, filename)},
		"Content-Type":        {"application/pdf"},
	})
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, settings, fmt.Sprintf("%s/%s/media", c.baseURL, settings.WhatsAppPhoneID),
		mw.FormDataContentType(), &buf, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("whatsapp: media upload returned no id")
	}
	return resp.ID, nil
}

func (c *WhatsAppClient) do(ctx context.Context, settings *models.MessagingSettings, url, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+settings.WhatsAppToken)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var apiErr whatsAppError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("whatsapp: %s (code %d)", apiErr.Error.Message, apiErr.Error.Code)
		}
		return fmt.Errorf("whatsapp: unexpected status %d", resp.StatusCode)
	}
	return json.Unmarshal(raw, out)
}

// NormalizePhone keeps the digits and adds the Brazilian country code to
// national numbers (DDD + 8 or 9 digits).
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimLeft(b.String(), "0")
	if len(digits) == 10 || len(digits) == 11 {
		return "55" + digits
	}
	return digits
}
