package monitoring

import (
	"time"

	"peercore/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exposes the control-channel and RTCP-pipeline metrics
// the domain stack names: requests routed/rejected by method, RTCP packets
// processed/dropped by type, and the scheduler's chosen report interval.
type PrometheusCollector struct {
	peersActiveTotal prometheus.Gauge

	requestsRouted   *prometheus.CounterVec
	requestsRejected *prometheus.CounterVec

	rtcpPacketsProcessed *prometheus.CounterVec
	rtcpPacketsDropped   *prometheus.CounterVec

	rtcpSchedulerIntervalMs prometheus.Histogram
	rtcpCompoundBytesSent   prometheus.Histogram
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		peersActiveTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "peercore_peers_active_total",
			Help: "Total number of Peers currently attached to the SFU",
		}),

		requestsRouted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "peercore_requests_routed_total",
			Help: "Control-channel requests accepted, by method",
		}, []string{"method"}),

		requestsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "peercore_requests_rejected_total",
			Help: "Control-channel requests rejected, by method and reason",
		}, []string{"method", "reason"}),

		rtcpPacketsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "peercore_rtcp_packets_processed_total",
			Help: "Inbound RTCP packets routed to a Producer or Consumer, by type",
		}, []string{"type"}),

		rtcpPacketsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "peercore_rtcp_packets_dropped_total",
			Help: "Inbound RTCP packets dropped for an unresolved SSRC, by type",
		}, []string{"type"}),

		rtcpSchedulerIntervalMs: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "peercore_rtcp_scheduler_interval_ms",
			Help:    "Post-jitter interval chosen by the adaptive RTCP scheduler",
			Buckets: []float64{50, 100, 200, 300, 500, 750, 1000, 1500, 2000},
		}),

		rtcpCompoundBytesSent: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "peercore_rtcp_compound_bytes_sent",
			Help:    "Size of compound RTCP packets flushed to a Transport",
			Buckets: prometheus.ExponentialBuckets(32, 2, 8),
		}),
	}
}

func (p *PrometheusCollector) RecordPeerAttached() { p.peersActiveTotal.Inc() }
func (p *PrometheusCollector) RecordPeerClosed()   { p.peersActiveTotal.Dec() }

func (p *PrometheusCollector) RecordRequestRouted(method domain.Method) {
	p.requestsRouted.WithLabelValues(string(method)).Inc()
}

func (p *PrometheusCollector) RecordRequestRejected(method domain.Method, reason string) {
	p.requestsRejected.WithLabelValues(string(method), reason).Inc()
}

func (p *PrometheusCollector) RecordRtcpPacketProcessed(packetType string) {
	p.rtcpPacketsProcessed.WithLabelValues(packetType).Inc()
}

func (p *PrometheusCollector) RecordRtcpPacketDropped(packetType string) {
	p.rtcpPacketsDropped.WithLabelValues(packetType).Inc()
}

func (p *PrometheusCollector) RecordSchedulerInterval(interval time.Duration) {
	p.rtcpSchedulerIntervalMs.Observe(float64(interval.Milliseconds()))
}

func (p *PrometheusCollector) RecordCompoundBytesSent(n int) {
	p.rtcpCompoundBytesSent.Observe(float64(n))
}
