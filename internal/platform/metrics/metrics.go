// Package metrics registers the Prometheus metrics for the notification
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	EmailsSent     *prometheus.CounterVec
	EmailFailures  *prometheus.CounterVec
	MailSendMs     prometheus.Histogram
	RealtimeEmits  prometheus.Counter
	SweepRuns      prometheus.Counter
	SweepReminders prometheus.Counter
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		EmailsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bloomence_emails_sent_total",
			Help: "Outbound emails successfully handed to the mail transport",
		}, []string{"kind"}),
		EmailFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bloomence_email_failures_total",
			Help: "Outbound emails the mail transport rejected",
		}, []string{"kind"}),
		MailSendMs: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "bloomence_mail_send_duration_ms",
			Help:    "Latency of mail transport sends in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}),
		RealtimeEmits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bloomence_realtime_emits_total",
			Help: "Realtime events fanned out to connected sessions",
		}),
		SweepRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bloomence_sweep_runs_total",
			Help: "Completed dormant-user sweep passes",
		}),
		SweepReminders: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bloomence_sweep_reminders_total",
			Help: "Dormant-user reminder emails sent by the sweep",
		}),
	}
}

// EmailSent records a successful send of the given kind.
func (m *Metrics) EmailSent(kind string) {
	if m == nil {
		return
	}
	m.EmailsSent.WithLabelValues(kind).Inc()
}

// EmailFailed records a transport failure for the given kind.
func (m *Metrics) EmailFailed(kind string) {
	if m == nil {
		return
	}
	m.EmailFailures.WithLabelValues(kind).Inc()
}
