package main

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bjaus/commandbus/assembly"
	"github.com/bjaus/commandbus/middleware"
	"github.com/bjaus/commandbus/retry"
)

// builtins registers the references a configuration may use without any
// application code.
func builtins(logger *slog.Logger) *assembly.Container {
	return assembly.NewContainer().
		Set("simple", retry.NewSimple(3, time.Second)).
		Set("exponential", retry.NewExponential(5, 100*time.Millisecond, 10*time.Second)).
		Set("logging", middleware.Logging(logger)).
		Set("recover", middleware.Recover()).
		Set("tracing", middleware.Tracing(nil)).
		Singleton("metrics", func() (any, error) {
			return middleware.NewMetrics(prometheus.NewRegistry())
		})
}
