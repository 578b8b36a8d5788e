package services

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/sigurn/crc16"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// PixPayment describes a static PIX charge encoded as a BR Code (EMV QR).
type PixPayment struct {
	Key     string
	Name    string
	City    string
	Amount  float64
	TxID    string
	Message string
}

// Payload builds the copy-and-paste BR Code string including its CRC.
func (p PixPayment) Payload() (string, error) {
	key := strings.TrimSpace(p.Key)
	if key == "" {
		return "", fmt.Errorf("%w: PIX key is not configured", ErrNotConfigured)
	}

	account := emvField("00", "br.gov.bcb.pix") + emvField("01", key)
	if msg := pixText(p.Message, 72); msg != "" {
		account += emvField("02", msg)
	}

	txid := pixTxID(p.TxID)
	if txid == "" {
		txid = "***"
	}

	name := pixText(p.Name, 25)
	if name == "" {
		name = "RECEBEDOR"
	}
	city := pixText(p.City, 15)
	if city == "" {
		city = "BRASIL"
	}

	var b strings.Builder
	b.WriteString(emvField("00", "01"))
	b.WriteString(emvField("26", account))
	b.WriteString(emvField("52", "0000"))
	b.WriteString(emvField("53", "986"))
	if p.Amount > 0 {
		b.WriteString(emvField("54", fmt.Sprintf("%.2f", p.Amount)))
	}
	b.WriteString(emvField("58", "BR"))
	b.WriteString(emvField("59", name))
	b.WriteString(emvField("60", city))
	b.WriteString(emvField("62", emvField("05", txid)))
	b.WriteString("6304")

	payload := b.String()
	return payload + fmt.Sprintf("%04X", crc16CCITT([]byte(payload))), nil
}

func emvField(id, value string) string {
	return fmt.Sprintf("%s%02d%s", id, len(value), value)
}

var pixCRCTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

func crc16CCITT(data []byte) uint16 {
	return crc16.Checksum(data, pixCRCTable)
}

// pixText strips accents and keeps the printable ASCII subset the BR Code
// merchant fields accept.
func pixText(s string, max int) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, s)
	if err != nil {
		plain = s
	}
	var b strings.Builder
	for _, r := range plain {
		if r >= 0x20 && r < 0x7F {
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if len(out) > max {
		out = strings.TrimSpace(out[:max])
	}
	return out
}

// pixTxID keeps alphanumerics only, at most 25 characters.
func pixTxID(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > 25 {
		out = out[:25]
	}
	return out
}
