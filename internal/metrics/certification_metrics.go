package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Resultados posibles de un intento de certificación
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// CertificationMetrics agrupa los contadores Prometheus del pipeline FNE
type CertificationMetrics struct {
	attempts       *prometheus.CounterVec
	failures       *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	batchRuns      *prometheus.CounterVec
	batchInvoices  *prometheus.CounterVec
	stickerBalance prometheus.Gauge
}

// New registra las métricas en registerer. Con nil usa el registro por defecto.
func New(registerer prometheus.Registerer, serviceName string) *CertificationMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	serviceName = strings.TrimSpace(serviceName)
	if serviceName == "" {
		serviceName = "fne-service"
	}
	constLabels := prometheus.Labels{"service": serviceName}

	m := &CertificationMetrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "fne_certification_attempts_total",
			Help:        "Certification attempts by environment and outcome.",
			ConstLabels: constLabels,
		}, []string{"environment", "outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "fne_certification_failures_total",
			Help:        "Failed certification attempts by error kind.",
			ConstLabels: constLabels,
		}, []string{"environment", "kind"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "fne_certification_duration_seconds",
			Help:        "Latency of calls to the remote certification service.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
			ConstLabels: constLabels,
		}, []string{"environment"}),
		batchRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "fne_batch_runs_total",
			Help:        "Batch certification runs by result.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		batchInvoices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "fne_batch_invoices_total",
			Help:        "Invoices processed by batch runs by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		stickerBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "fne_sticker_balance",
			Help:        "Last sticker balance reported by the certification service.",
			ConstLabels: constLabels,
		}),
	}

	registerer.MustRegister(
		m.attempts, m.failures, m.latency, m.batchRuns, m.batchInvoices, m.stickerBalance,
	)

	return m
}

// ObserveAttempt registra un intento de certificación
func (m *CertificationMetrics) ObserveAttempt(environment string, success bool, kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if !success {
		outcome = OutcomeFailure
		m.failures.WithLabelValues(environment, kind).Inc()
	}
	m.attempts.WithLabelValues(environment, outcome).Inc()
	m.latency.WithLabelValues(environment).Observe(elapsed.Seconds())
}

// SetStickerBalance actualiza el último saldo de timbres conocido
func (m *CertificationMetrics) SetStickerBalance(balance int) {
	if m == nil {
		return
	}
	m.stickerBalance.Set(float64(balance))
}

// ObserveBatch registra una corrida de lote
func (m *CertificationMetrics) ObserveBatch(result string, succeeded, failed int) {
	if m == nil {
		return
	}
	m.batchRuns.WithLabelValues(result).Inc()
	m.batchInvoices.WithLabelValues(OutcomeSuccess).Add(float64(succeeded))
	m.batchInvoices.WithLabelValues(OutcomeFailure).Add(float64(failed))
}
