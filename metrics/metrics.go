package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "raas_"

	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	invoicesGenerated *prometheus.CounterVec
	invoiceAmount     prometheus.Counter
	documentsRendered *prometheus.CounterVec
	deliveries        *prometheus.CounterVec

	ingestMessages *prometheus.CounterVec
	wsConnections  prometheus.Gauge
	schedulerRuns  *prometheus.CounterVec
)

// Init registers the collectors with the default registry. Safe to call
// more than once.
func Init() {
	registerOnce.Do(func() {
		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "HTTP requests by route, method and status code",
			},
			[]string{"route", "method", "status"},
		)
		httpLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		)
		invoicesGenerated = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "invoices_generated_total",
				Help: "Invoice generation attempts by result",
			},
			[]string{"result"},
		)
		invoiceAmount = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "invoiced_amount_total",
				Help: "Sum of generated invoice totals",
			},
		)
		documentsRendered = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "documents_rendered_total",
				Help: "Rendered invoice documents by kind and result",
			},
			[]string{"kind", "result"},
		)
		deliveries = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "invoice_deliveries_total",
				Help: "Invoice deliveries by channel and result",
			},
			[]string{"channel", "result"},
		)
		ingestMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "energy_ingest_messages_total",
				Help: "Energy record messages received over MQTT by result",
			},
			[]string{"result"},
		)
		wsConnections = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "notification_stream_connections",
				Help: "Open notification websocket connections",
			},
		)
		schedulerRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "scheduler_runs_total",
				Help: "Background maintenance runs by task and result",
			},
			[]string{"task", "result"},
		)

		prometheus.MustRegister(
			httpRequests, httpLatency,
			invoicesGenerated, invoiceAmount, documentsRendered, deliveries,
			ingestMessages, wsConnections, schedulerRuns,
		)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

func ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	Init()
	httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	httpLatency.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func InvoiceGenerated(err error, amount float64) {
	Init()
	if err != nil {
		invoicesGenerated.WithLabelValues(ResultError).Inc()
		return
	}
	invoicesGenerated.WithLabelValues(ResultSuccess).Inc()
	if amount > 0 {
		invoiceAmount.Add(amount)
	}
}

func DocumentRendered(kind string, err error) {
	Init()
	documentsRendered.WithLabelValues(kind, result(err)).Inc()
}

func Delivery(channel string, err error) {
	Init()
	deliveries.WithLabelValues(channel, result(err)).Inc()
}

func IngestMessage(err error) {
	Init()
	ingestMessages.WithLabelValues(result(err)).Inc()
}

func StreamConnected() {
	Init()
	wsConnections.Inc()
}

func StreamDisconnected() {
	Init()
	wsConnections.Dec()
}

func SchedulerRun(task string, err error) {
	Init()
	schedulerRuns.WithLabelValues(task, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}
