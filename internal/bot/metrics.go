package bot

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics структура для метрик Prometheus
type Metrics struct {
	MessagesProcessed    prometheus.Counter
	ErrorsTotal          prometheus.Counter
	UpdateProcessingTime prometheus.Histogram
	BookingsCreated      *prometheus.CounterVec
	BookingsFailed       prometheus.Counter
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// NewMetrics создает новые метрики
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			MessagesProcessed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "figaro_bot_messages_total",
				Help: "Total number of chat messages processed",
			}),

			ErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "figaro_bot_errors_total",
				Help: "Total number of panics recovered in update handlers",
			}),

			UpdateProcessingTime: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "figaro_bot_update_processing_time_seconds",
				Help:    "Time spent processing updates",
				Buckets: prometheus.DefBuckets,
			}),

			BookingsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "figaro_bot_bookings_created_total",
				Help: "Total number of bookings created via chat",
			}, []string{"barber_name"}),

			BookingsFailed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "figaro_bot_bookings_failed_total",
				Help: "Total number of booking attempts rejected",
			}),
		}
	})
	return metrics
}
