package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ShieldMetrics collects the redirect-protection counters. A nil
// *ShieldMetrics is valid and records nothing.
type ShieldMetrics struct {
	verdicts         *prometheus.CounterVec
	cloaked          prometheus.Counter
	redirects        *prometheus.CounterVec
	decodeFailures   prometheus.Counter
	recordFailures   prometheus.Counter
	recordsPublished prometheus.Counter
	activeSessions   prometheus.Gauge
}

// NewShieldMetrics registers the collectors on reg; nil means the default registerer.
func NewShieldMetrics(reg prometheus.Registerer) *ShieldMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &ShieldMetrics{
		verdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shield_verdicts_total",
			Help: "Static classification verdicts partitioned by verdict and link kind",
		}, []string{"verdict", "kind"}),
		cloaked: factory.NewCounter(prometheus.CounterOpts{
			Name: "shield_cloaked_total",
			Help: "Visits answered with cloaked content",
		}),
		redirects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shield_redirects_total",
			Help: "Navigations handed to visitors partitioned by method",
		}, []string{"method"}),
		decodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "shield_payload_decode_failures_total",
			Help: "Redirects aborted because the payload could not be decoded",
		}),
		recordFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "shield_action_record_failures_total",
			Help: "Action records that could not be published",
		}),
		recordsPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "shield_action_records_total",
			Help: "Action records published to the analytics stream",
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "shield_active_sessions",
			Help: "Visit sessions currently held in memory",
		}),
	}
}

func (m *ShieldMetrics) Verdict(verdict string, ultra bool) {
	if m == nil {
		return
	}
	kind := "shield"
	if ultra {
		kind = "ultra"
	}
	m.verdicts.WithLabelValues(verdict, kind).Inc()
}

func (m *ShieldMetrics) Cloaked() {
	if m == nil {
		return
	}
	m.cloaked.Inc()
}

func (m *ShieldMetrics) Redirect(method string) {
	if m == nil {
		return
	}
	m.redirects.WithLabelValues(method).Inc()
}

func (m *ShieldMetrics) DecodeFailure() {
	if m == nil {
		return
	}
	m.decodeFailures.Inc()
}

func (m *ShieldMetrics) RecordPublished() {
	if m == nil {
		return
	}
	m.recordsPublished.Inc()
}

func (m *ShieldMetrics) RecordFailure() {
	if m == nil {
		return
	}
	m.recordFailures.Inc()
}

func (m *ShieldMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}
