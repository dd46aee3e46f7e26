package broadcast

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Delivered prometheus.Counter
	Failed    prometheus.Counter
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			Delivered: promauto.NewCounter(prometheus.CounterOpts{
				Name: "figaro_broadcast_delivered_total",
				Help: "Broadcast messages delivered.",
			}),
			Failed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "figaro_broadcast_failed_total",
				Help: "Broadcast messages that failed to send.",
			}),
		}
	})
	return metrics
}
