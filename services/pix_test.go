package services

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRC16CCITT(t *testing.T) {
	assert.Equal(t, uint16(0x29B1), crc16CCITT([]byte("123456789")))
}

func TestPixPayload(t *testing.T) {
	payload, err := PixPayment{
		Key:    "12345678901",
		Name:   "José da Silva Comércio de Energia Ltda",
		City:   "São Paulo",
		Amount: 768,
		TxID:   "FAT-202403-ABC",
	}.Payload()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(payload, "000201"))
	assert.Contains(t, payload, "26330014br.gov.bcb.pix011112345678901")
	assert.Contains(t, payload, "5303986")
	assert.Contains(t, payload, "5406768.00")
	assert.Contains(t, payload, "5925Jose da Silva Comercio de")
	assert.Contains(t, payload, "6009Sao Paulo")
	assert.Contains(t, payload, "62160512FAT202403ABC")

	body, crc := payload[:len(payload)-4], payload[len(payload)-4:]
	assert.True(t, strings.HasSuffix(body, "6304"))
	assert.Equal(t, fmt.Sprintf("%04X", crc16CCITT([]byte(body))), crc)
}

func TestPixPayload_Defaults(t *testing.T) {
	payload, err := PixPayment{Key: "financeiro@example.com"}.Payload()
	require.NoError(t, err)
	assert.NotContains(t, payload, "5406")
	assert.Contains(t, payload, "5909RECEBEDOR")
	assert.Contains(t, payload, "6006BRASIL")
	assert.Contains(t, payload, "62070503***")

	_, err = PixPayment{Key: "  "}.Payload()
	assert.ErrorIs(t, err, ErrNotConfigured)
}
