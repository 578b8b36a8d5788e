package services

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/smtp"
	"testing"

	"github.com/aj9599/raas-platform/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBuildMessage_HTMLOnly(t *testing.T) {
	raw, err := BuildMessage("faturas@example.com", Email{
		To:       []string{"cliente@example.com"},
		Subject:  "Fatura março",
		HTMLBody: "<p>Olá</p>",
	})
	require.NoError(t, err)

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)
	subject, err := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Fatura março", subject)
	assert.Equal(t, "text/html; charset=UTF-8", msg.Header.Get("Content-Type"))

	body, err := io.ReadAll(msg.Body)
	require.NoError(t, err)
	assert.Equal(t, "<p>Olá</p>", string(body))
}

func TestBuildMessage_WithAttachment(t *testing.T) {
	pdf := bytes.Repeat([]byte("%PDF-1.3 fake content "), 20)
	raw, err := BuildMessage("faturas@example.com", Email{
		To:       []string{"a@example.com", "b@example.com"},
		Subject:  "Fatura",
		HTMLBody: "<p>Segue a fatura</p>",
		Attachments: []Attachment{
			{Filename: "FAT-1.pdf", ContentType: "application/pdf", Data: pdf},
		},
	})
	require.NoError(t, err)

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "a@example.com, b@example.com", msg.Header.Get("To"))

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/mixed", mediaType)

	reader := multipart.NewReader(msg.Body, params["boundary"])
	htmlPart, err := reader.NextPart()
	require.NoError(t, err)
	html, _ := io.ReadAll(htmlPart)
	assert.Equal(t, "<p>Segue a fatura</p>", string(html))

	attachment, err := reader.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "FAT-1.pdf", attachment.FileName())
	encoded, _ := io.ReadAll(attachment)
	decoded, err := base64.StdEncoding.DecodeString(string(encoded))
	require.NoError(t, err)
	assert.Equal(t, pdf, decoded)

	_, err = reader.NextPart()
	assert.ErrorIs(t, err, io.EOF)
}

func TestMailer_Send(t *testing.T) {
	m := NewMailer(zap.NewNop())
	var gotAddr, gotFrom string
	var gotTo []string
	var gotAuth smtp.Auth
	m.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo = addr, a, from, to
		return nil
	}

	settings := &models.MessagingSettings{SMTPHost: "smtp.example.com", SMTPPort: 587, SMTPFrom: "faturas@example.com"}
	require.NoError(t, m.Send(settings, Email{To: []string{"cliente@example.com"}, Subject: "Oi", HTMLBody: "x"}))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "faturas@example.com", gotFrom)
	assert.Equal(t, []string{"cliente@example.com"}, gotTo)
	assert.Nil(t, gotAuth)

	settings.SMTPUser = "faturas"
	settings.SMTPPassword = "pw"
	require.NoError(t, m.Send(settings, Email{To: []string{"cliente@example.com"}}))
	assert.NotNil(t, gotAuth)

	assert.ErrorIs(t, m.Send(settings, Email{}), ErrInvalidInput)
	assert.ErrorIs(t, m.Send(&models.MessagingSettings{}, Email{To: []string{"x@example.com"}}), ErrNotConfigured)
}
