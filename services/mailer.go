package services

import (
	"bytes"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/aj9599/raas-platform/models"
	"go.uber.org/zap"
)

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Email struct {
	To          []string
	Subject     string
	HTMLBody    string
	Attachments []Attachment
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends HTML mail through the tenant's SMTP server. Port 465 uses
// implicit TLS, every other port goes through smtp.SendMail (STARTTLS when
// offered).
type Mailer struct {
	logger   *zap.Logger
	sendMail sendMailFunc
}

func NewMailer(logger *zap.Logger) *Mailer {
	return &Mailer{logger: logger, sendMail: smtp.SendMail}
}

func (m *Mailer) Send(settings *models.MessagingSettings, email Email) error {
	if settings == nil || settings.SMTPHost == "" || settings.SMTPFrom == "" {
		return fmt.Errorf("%w: SMTP host and sender must be configured", ErrNotConfigured)
	}
	if len(email.To) == 0 {
		return invalidf("email needs at least one recipient")
	}

	msg, err := BuildMessage(settings.SMTPFrom, email)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", settings.SMTPHost, settings.SMTPPort)
	var auth smtp.Auth
	if settings.SMTPUser != "" {
		auth = smtp.PlainAuth("", settings.SMTPUser, settings.SMTPPassword, settings.SMTPHost)
	}

	if settings.SMTPPort == 465 {
		err = m.sendTLS(settings, addr, auth, email.To, msg)
	} else {
		err = m.sendMail(addr, auth, settings.SMTPFrom, email.To, msg)
	}
	if err != nil {
		m.logger.Error("[EMAIL] Send failed", zap.Strings("to", email.To), zap.Error(err))
		return err
	}

	m.logger.Info("[EMAIL] Sent", zap.Strings("to", email.To), zap.String("subject", email.Subject))
	return nil
}

// sendTLS handles implicit TLS connections (port 465)
func (m *Mailer) sendTLS(settings *models.MessagingSettings, addr string, auth smtp.Auth, to []string, msg []byte) error {
	conn, err := tls.DialWithDialer(&net.Dialer{Timeout: 10 * time.Second}, "tcp", addr, &tls.Config{
		ServerName: settings.SMTPHost,
	})
	if err != nil {
		return fmt.Errorf("TLS dial failed: %v", err)
	}

	client, err := smtp.NewClient(conn, settings.SMTPHost)
	if err != nil {
		conn.Close()
		return fmt.Errorf("SMTP client failed: %v", err)
	}
	defer client.Close()

	if auth != nil {
		if err = client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP auth failed: %v", err)
		}
	}
	if err = client.Mail(settings.SMTPFrom); err != nil {
		return fmt.Errorf("SMTP MAIL FROM failed: %v", err)
	}
	for _, rcpt := range to {
		if err = client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("SMTP RCPT TO failed: %v", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA failed: %v", err)
	}
	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("SMTP write failed: %v", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("SMTP close data failed: %v", err)
	}
	return client.Quit()
}

// BuildMessage renders the MIME message. Without attachments the body is a
// single text/html part.
func BuildMessage(from string, email Email) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(email.To, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", email.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")

	if len(email.Attachments) == 0 {
		buf.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		buf.WriteString(email.HTMLBody)
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", mw.Boundary())

	body, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/html; charset=UTF-8"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := body.Write([]byte(email.HTMLBody)); err != nil {
		return nil, err
	}

	for _, a := range email.Attachments {
		contentType := a.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {fmt.Sprintf("%s; name=%q", contentType, a.Filename)},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", a.Filename)},
		})
		if err != nil {
			return nil, err
		}
		if err := writeBase64Lines(part, a.Data); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeBase64Lines wraps the encoding at 76 characters per RFC 2045.
func writeBase64Lines(w interface{ Write([]byte) (int, error) }, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		if _, err := w.Write([]byte(encoded[:76] + "\r\n")); err != nil {
			return err
		}
		encoded = encoded[76:]
	}
	_, err := w.Write([]byte(encoded + "\r\n"))
	return err
}
