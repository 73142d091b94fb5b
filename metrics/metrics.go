// Package metrics gathers the counters of the publisher and the
// witnesses and exposes them in the Prometheus format.
//
// All methods accept a nil *Metrics and then do nothing, so the
// protocol packages can run without metrics in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

const namespace = "keywitness"

// Metrics is the set of collectors of one process.
type Metrics struct {
	registry *prometheus.Registry

	epochsPublished prometheus.Counter
	epochsCertified prometheus.Counter
	roundTimeouts   prometheus.Counter
	certifyLatency  prometheus.Histogram
	votes           *prometheus.CounterVec
	abstentions     *prometheus.CounterVec
	certsSynced     prometheus.Counter
	requests        *prometheus.CounterVec
	latestCertified prometheus.Gauge
	startTime       time.Time
	upTimeInSeconds prometheus.Gauge
}

// New returns a Metrics with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		epochsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "directory",
			Name:      "epochs_published",
			Help:      "Number of epochs finalized by the publisher.",
		}),
		epochsCertified: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "epochs_certified",
			Help:      "Number of epochs that gathered a quorum certificate.",
		}),
		roundTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "round_timeouts",
			Help:      "Number of certification attempts that timed out.",
		}),
		certifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "certify_seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			Help:      "Histogram of the time from notification to certificate.",
		}),
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "votes",
			Help:      "Number of votes received, by result.",
		}, []string{"result"}),
		abstentions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "witness",
			Name:      "abstentions",
			Help:      "Number of notifications a witness refused to vote for, by reason.",
		}, []string{"reason"}),
		certsSynced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "certificates_synced",
			Help:      "Number of certificates resent to lagging witnesses.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "requests",
			Help:      "Number of client requests, by route and status class.",
		}, []string{"route", "status"}),
		latestCertified: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "directory",
			Name:      "latest_certified_epoch",
			Help:      "The latest epoch with a certificate.",
		}),
		startTime: time.Now(),
		upTimeInSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "up_time",
			Help:      "The time the server has been up and running in seconds.",
		}),
	}
	m.registry.MustRegister(
		m.epochsPublished,
		m.epochsCertified,
		m.roundTimeouts,
		m.certifyLatency,
		m.votes,
		m.abstentions,
		m.certsSynced,
		m.requests,
		m.latestCertified,
		m.upTimeInSeconds,
	)
	return m
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// EpochPublished counts a finalized epoch.
func (m *Metrics) EpochPublished() {
	if m != nil {
		m.epochsPublished.Inc()
	}
}

// EpochCertified counts a certificate and records how long the round
// took.
func (m *Metrics) EpochCertified(epoch uint64, took time.Duration) {
	if m != nil {
		m.epochsCertified.Inc()
		m.certifyLatency.Observe(took.Seconds())
		m.latestCertified.Set(float64(epoch))
	}
}

// RoundTimeout counts an attempt that timed out.
func (m *Metrics) RoundTimeout() {
	if m != nil {
		m.roundTimeouts.Inc()
	}
}

// Vote counts a received vote. result is "accepted" or the reason it
// was rejected.
func (m *Metrics) Vote(result string) {
	if m != nil {
		m.votes.WithLabelValues(result).Inc()
	}
}

// Abstention counts a notification a witness refused.
func (m *Metrics) Abstention(reason string) {
	if m != nil {
		m.abstentions.WithLabelValues(reason).Inc()
	}
}

// CertificateSynced counts a certificate resent to a lagging witness.
func (m *Metrics) CertificateSynced() {
	if m != nil {
		m.certsSynced.Inc()
	}
}

// Request counts a gateway request.
func (m *Metrics) Request(route string, status int) {
	if m != nil {
		m.requests.WithLabelValues(route, statusClass(status)).Inc()
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	}
	return "2xx"
}

// EncodeTo writes every metric to encoder.
func (m *Metrics) EncodeTo(encoder expfmt.Encoder) error {
	m.upTimeInSeconds.Set(time.Since(m.startTime).Truncate(10 * time.Millisecond).Seconds())
	families, err := m.registry.Gather()
	if err != nil {
		return err
	}
	for _, f := range families {
		if err := encoder.Encode(f); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the metrics over HTTP.
func (m *Metrics) Handler() http.Handler {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.upTimeInSeconds.Set(time.Since(m.startTime).Truncate(10 * time.Millisecond).Seconds())
		h.ServeHTTP(w, r)
	})
}
