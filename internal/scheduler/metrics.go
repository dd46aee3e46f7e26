package scheduler

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics — счётчики работы планировщика.
type Metrics struct {
	RemindersSent     *prometheus.CounterVec
	RemindersFailed   *prometheus.CounterVec
	FeedbackRequested prometheus.Counter
	FeedbackFailed    prometheus.Counter
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// NewMetrics регистрирует метрики один раз; повторные вызовы возвращают
// тот же набор (промо-регистрация паникует на дубликатах).
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			RemindersSent: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "figaro_reminders_sent_total",
				Help: "Reminders enqueued for delivery, by kind (60m/30m).",
			}, []string{"kind"}),

			RemindersFailed: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "figaro_reminders_failed_total",
				Help: "Reminders that could not be enqueued, by kind.",
			}, []string{"kind"}),

			FeedbackRequested: promauto.NewCounter(prometheus.CounterOpts{
				Name: "figaro_feedback_requests_total",
				Help: "Feedback prompts enqueued for delivery.",
			}),

			FeedbackFailed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "figaro_feedback_requests_failed_total",
				Help: "Feedback prompts that could not be enqueued.",
			}),
		}
	})
	return metrics
}
