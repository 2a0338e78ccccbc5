package metrics

import (
	"net/http"
	"time"

	"github.com/TEENet-io/splminter-go/agreement"
	"github.com/TEENet-io/splminter-go/issuancedb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "splminter"

// Metrics of one issuer service. Each instance owns its registry so
// several can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	txSubmitted  *prometheus.CounterVec
	txFinished   *prometheus.CounterVec
	confirmTime  *prometheus.HistogramVec
	httpRequests *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		txSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "submitted_total",
			Help:      "Transactions handed to the wallet and accepted by the network",
		}, []string{"kind"}),
		txFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "finished_total",
			Help:      "Transactions that stopped being monitored, by final status",
		}, []string{"kind", "status"}),
		confirmTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "confirmation_seconds",
			Help:      "Time from submission to a final status",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"kind"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, by route and status code",
		}, []string{"route", "code"}),
	}
}

func (m *Metrics) TxSubmitted(kind issuancedb.TxKind) {
	m.txSubmitted.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) TxFinished(kind issuancedb.TxKind, status agreement.TxStatus, elapsed time.Duration) {
	m.txFinished.WithLabelValues(string(kind), string(status)).Inc()
	m.confirmTime.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

func (m *Metrics) HTTPRequest(route string, code string) {
	m.httpRequests.WithLabelValues(route, code).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(m.registry, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
