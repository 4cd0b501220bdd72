package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "floodd"

type metrics struct {
	readings *prometheus.CounterVec
	sms      *prometheus.CounterVec
	duration prometheus.Histogram
}

func newMetrics() *metrics {
	return &metrics{
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "dispatch",
			Name:      "readings_total",
			Help:      "Readings handled by the dispatch engine by final state and reason.",
		}, []string{"state", "reason"}),
		sms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "dispatch",
			Name:      "sms_total",
			Help:      "Per recipient SMS outcomes.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "dispatch",
			Name:      "handle_duration_seconds",
			Help:      "Time spent handling one reading.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}
}

func (m *metrics) register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.readings, m.sms, m.duration} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *metrics) unregister(r prometheus.Registerer) {
	r.Unregister(m.readings)
	r.Unregister(m.sms)
	r.Unregister(m.duration)
}

func (m *metrics) observe(r Result, seconds float64) {
	reason := string(r.Reason)
	if reason == "" {
		reason = "none"
	}
	m.readings.WithLabelValues(r.State.String(), reason).Inc()
	m.sms.WithLabelValues("accepted").Add(float64(r.FanOut.Accepted))
	m.sms.WithLabelValues("failed").Add(float64(r.FanOut.Failed()))
	m.sms.WithLabelValues("skipped").Add(float64(r.FanOut.Skipped))
	m.duration.Observe(seconds)
}
