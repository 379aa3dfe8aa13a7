// Package metrics exposes Prometheus instrumentation for the trigger
// processor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors published on /metrics.
type Metrics struct {
	TicksTotal         prometheus.Counter
	TickDuration       prometheus.Histogram
	RemindersProcessed prometheus.Counter
	RemindersCompleted prometheus.Counter
	RemindersPaused    prometheus.Counter
	SendFailures       prometheus.Counter
	IdempotencyEvicted prometheus.Counter
}

// New registers the collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TicksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "chime_ticks_total",
			Help: "Number of trigger processor ticks run.",
		}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "chime_tick_duration_seconds",
			Help:    "Duration of trigger processor ticks.",
			Buckets: prometheus.DefBuckets,
		}),
		RemindersProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "chime_reminders_processed_total",
			Help: "Number of due reminders claimed and processed.",
		}),
		RemindersCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "chime_reminders_completed_total",
			Help: "Number of reminders that reached their final occurrence.",
		}),
		RemindersPaused: factory.NewCounter(prometheus.CounterOpts{
			Name: "chime_reminders_paused_total",
			Help: "Number of reminders paused after repeated delivery failures.",
		}),
		SendFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "chime_send_failures_total",
			Help: "Number of failed delivery attempts.",
		}),
		IdempotencyEvicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "chime_idempotency_keys_evicted_total",
			Help: "Number of expired idempotency keys removed.",
		}),
	}
}
