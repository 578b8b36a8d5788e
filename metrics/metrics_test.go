package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	Init()

	before := testutil.ToFloat64(invoicesGenerated.WithLabelValues(ResultError))
	InvoiceGenerated(errors.New("boom"), 0)
	assert.Equal(t, before+1, testutil.ToFloat64(invoicesGenerated.WithLabelValues(ResultError)))

	beforeAmount := testutil.ToFloat64(invoiceAmount)
	InvoiceGenerated(nil, 780.8)
	assert.InDelta(t, beforeAmount+780.8, testutil.ToFloat64(invoiceAmount), 1e-9)

	Delivery("email", nil)
	assert.GreaterOrEqual(t, testutil.ToFloat64(deliveries.WithLabelValues("email", ResultSuccess)), 1.0)

	ObserveHTTP("/api/invoices", http.MethodGet, 200, 10*time.Millisecond)
	assert.GreaterOrEqual(t, testutil.ToFloat64(httpRequests.WithLabelValues("/api/invoices", "GET", "200")), 1.0)
}

func TestHandlerExposesMetrics(t *testing.T) {
	DocumentRendered("pdf", nil)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "raas_documents_rendered_total")
}
