package monitoring

import (
	"strconv"
	"time"

	"probewatch/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	// Counters
	eventsTotal           *prometheus.CounterVec
	alertsTotal           *prometheus.CounterVec
	diagnosticsTotal      *prometheus.CounterVec
	dispatchFailuresTotal *prometheus.CounterVec
	streamReconnectsTotal prometheus.Counter

	// Histograms
	eventProcessingSeconds *prometheus.HistogramVec

	// Gauges
	networkPercentage *prometheus.GaugeVec
	streamConnected   prometheus.Gauge
	inventoryProbes   prometheus.Gauge
}

// NewPrometheusCollector registers every probewatch metric on reg. A nil reg
// falls back to the process-wide default registerer.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusCollector{
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "probewatch_events_total",
			Help: "Total number of events processed by the engine",
		}, []string{"type"}),

		alertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "probewatch_alerts_total",
			Help: "Total number of alerts raised",
		}, []string{"kind"}),

		diagnosticsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "probewatch_diagnostics_total",
			Help: "Total number of diagnostics emitted while processing events",
		}, []string{"code"}),

		dispatchFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "probewatch_alert_dispatch_failures_total",
			Help: "Total number of failed alert deliveries",
		}, []string{"sink"}),

		streamReconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "probewatch_stream_reconnects_total",
			Help: "Total number of reconnects to the result stream",
		}),

		eventProcessingSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "probewatch_event_processing_seconds",
			Help:    "Time spent handling a single event",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"type"}),

		networkPercentage: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "probewatch_network_connection_percentage",
			Help: "Share of connected probes per origin network (0-100)",
		}, []string{"family", "asn"}),

		streamConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "probewatch_stream_connected",
			Help: "1 while the result stream session is up",
		}),

		inventoryProbes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "probewatch_inventory_probes",
			Help: "Number of probes loaded from the inventory",
		}),
	}
}

func (p *PrometheusCollector) RecordEvent(eventType string, duration time.Duration) {
	p.eventsTotal.WithLabelValues(eventType).Inc()
	p.eventProcessingSeconds.WithLabelValues(eventType).Observe(duration.Seconds())
}

func (p *PrometheusCollector) RecordAlert(kind domain.AlertKind) {
	p.alertsTotal.WithLabelValues(string(kind)).Inc()
}

func (p *PrometheusCollector) RecordDiagnostic(code domain.DiagnosticCode) {
	p.diagnosticsTotal.WithLabelValues(string(code)).Inc()
}

func (p *PrometheusCollector) SetNetworkPercentage(key domain.NetworkKey, percentage float64) {
	p.networkPercentage.WithLabelValues(string(key.Family), strconv.Itoa(int(key.ASN))).Set(percentage)
}

func (p *PrometheusCollector) SetInventoryProbes(count int) {
	p.inventoryProbes.Set(float64(count))
}

func (p *PrometheusCollector) RecordDispatchFailure(sink string) {
	p.dispatchFailuresTotal.WithLabelValues(sink).Inc()
}

func (p *PrometheusCollector) SetStreamConnected(connected bool) {
	if connected {
		p.streamConnected.Set(1)
		return
	}
	p.streamConnected.Set(0)
}

func (p *PrometheusCollector) RecordStreamReconnect() {
	p.streamReconnectsTotal.Inc()
}
