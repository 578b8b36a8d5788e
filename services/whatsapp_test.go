package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aj9599/raas-platform/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWhatsAppClient_SendDocument(t *testing.T) {
	var sent map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/1234/media", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whatsapp", r.FormValue("messaging_product"))
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		data, _ := io.ReadAll(file)
		assert.Equal(t, "FAT-1.pdf", header.Filename)
		assert.Equal(t, "%PDF-1.3", string(data))
		w.Write([]byte(`{"id":"media-1"}`))
	})
	mux.HandleFunc("/1234/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
		w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewWhatsAppClient(server.URL+"/", zap.NewNop())
	settings := &models.MessagingSettings{WhatsAppPhoneID: "1234", WhatsAppToken: "token"}

	id, err := client.SendDocument(context.Background(), settings, "(11) 98765-4321", "FAT-1.pdf", "Sua fatura", []byte("%PDF-1.3"))
	require.NoError(t, err)
	assert.Equal(t, "wamid.1", id)
	assert.Equal(t, "5511987654321", sent["to"])
	assert.Equal(t, "document", sent["type"])
	doc := sent["document"].(map[string]any)
	assert.Equal(t, "media-1", doc["id"])
	assert.Equal(t, "Sua fatura", doc["caption"])
}

func TestWhatsAppClient_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Invalid OAuth access token","type":"OAuthException","code":190}}`))
	}))
	defer server.Close()

	client := NewWhatsAppClient(server.URL, zap.NewNop())
	settings := &models.MessagingSettings{WhatsAppPhoneID: "1234", WhatsAppToken: "bad"}

	_, err := client.SendDocument(context.Background(), settings, "11987654321", "a.pdf", "", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid OAuth access token (code 190)")

	_, err = client.SendDocument(context.Background(), &models.MessagingSettings{}, "11987654321", "a.pdf", "", nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = client.SendDocument(context.Background(), settings, "", "a.pdf", "", nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"(11) 98765-4321":   "5511987654321",
		"+55 11 98765-4321": "5511987654321",
		"011 3456-7890":     "551134567890",
		"":                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePhone(in), in)
	}
}
