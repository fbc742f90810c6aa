package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/credential-verifier/internal/core/domain"
)

const namespace = "cv"

// VerificationMetrics records per-document verification outcomes. It is
// shared by every process that runs the verifier.
type VerificationMetrics struct {
	service string

	total          *prometheus.CounterVec
	confidence     *prometheus.HistogramVec
	extraction     *prometheus.HistogramVec
	classification *prometheus.HistogramVec
	fallbacks      *prometheus.CounterVec
	retries        *prometheus.CounterVec
	breakerOpen    *prometheus.GaugeVec
}

func newVerificationMetrics(service string, registry *prometheus.Registry) *VerificationMetrics {
	total := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "total",
			Help:      "Verified documents by type, status and method.",
		},
		[]string{"service", "document_type", "status", "method"},
	)
	confidence := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "confidence",
			Help:      "Distribution of reported confidence.",
			Buckets:   []float64{0.1, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1},
		},
		[]string{"service", "document_type", "method"},
	)
	extraction := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "extraction_seconds",
			Help:      "Text extraction duration by source.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service", "source"},
	)
	classification := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "classification_seconds",
			Help:      "Classification duration by method.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"service", "method"},
	)
	fallbacks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "model_fallback_total",
			Help:      "Calls where the model failed and rules were used instead.",
		},
		[]string{"service", "document_type"},
	)

	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "retries_total",
			Help:      "Retried upstream calls by operation.",
		},
		[]string{"service", "operation"},
	)
	breakerOpen := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "breaker_open",
			Help:      "1 while the operation's circuit breaker is open.",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(total, confidence, extraction, classification, fallbacks, retries, breakerOpen)

	return &VerificationMetrics{
		service:        service,
		total:          total,
		confidence:     confidence,
		extraction:     extraction,
		classification: classification,
		fallbacks:      fallbacks,
		retries:        retries,
		breakerOpen:    breakerOpen,
	}
}

func (m *VerificationMetrics) ObserveVerification(result domain.VerificationResult) {
	docType := labelOrUnknown(string(result.DocumentType))
	method := labelOrUnknown(string(result.Method))
	m.total.WithLabelValues(m.service, docType, labelOrUnknown(string(result.Status)), method).Inc()
	m.confidence.WithLabelValues(m.service, docType, method).Observe(result.Confidence)
	m.extraction.WithLabelValues(m.service, labelOrUnknown(string(result.ExtractionSource))).Observe(result.ExtractionMS / 1000)
	if result.ClassificationMS > 0 {
		m.classification.WithLabelValues(m.service, method).Observe(result.ClassificationMS / 1000)
	}
}

func (m *VerificationMetrics) ObserveModelFallback(docType domain.DocumentType) {
	m.fallbacks.WithLabelValues(m.service, labelOrUnknown(string(docType))).Inc()
}

func (m *VerificationMetrics) ObserveRetry(operation string) {
	m.retries.WithLabelValues(m.service, labelOrUnknown(operation)).Inc()
}

func (m *VerificationMetrics) ObserveBreakerState(operation string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	m.breakerOpen.WithLabelValues(m.service, labelOrUnknown(operation)).Set(v)
}

func labelOrUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
