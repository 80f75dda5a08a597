package middleware

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bjaus/commandbus"
)

// Metrics records Prometheus metrics for every dispatch.
//
// Metric naming follows Prometheus conventions:
//   - commandbus_commands_total{command, status} counts dispatches, status
//     is "success" or "failure"
//   - commandbus_command_duration_seconds{command} observes dispatch latency
type Metrics struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		total: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commandbus_commands_total",
				Help: "Total number of dispatched commands by command type and status.",
			},
			[]string{"command", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "commandbus_command_duration_seconds",
				Help:    "Duration of command dispatches in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),
	}

	for _, c := range []prometheus.Collector{m.total, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Wrap implements commandbus.Middleware.
func (m *Metrics) Wrap(next commandbus.HandlerFunc) commandbus.HandlerFunc {
	return func(ctx context.Context, msg commandbus.Message) error {
		start := time.Now()
		err := next(ctx, msg)

		status := "success"
		if err != nil {
			status = "failure"
		}
		m.total.WithLabelValues(msg.Type, status).Inc()
		m.duration.WithLabelValues(msg.Type).Observe(time.Since(start).Seconds())
		return err
	}
}

var _ commandbus.Middleware = (*Metrics)(nil)
