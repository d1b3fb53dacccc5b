package bootstrap

import (
	"log/slog"

	"github.com/reachcapital/portal/config"
	"github.com/reachcapital/portal/internal/observability/statsd"
)

// BuildMetrics creates the StatsD client. A dial failure degrades to a
// disabled client rather than stopping the portal.
func BuildMetrics(cfg config.ObservabilityMetricsConfig, logger *slog.Logger) *statsd.Client {
	client, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.IsEnabled(),
		Address: cfg.StatsdAddress,
		Prefix:  cfg.Prefix,
		Logger:  logger,
	})
	if err != nil {
		if logger != nil {
			logger.Warn("statsd disabled", "address", cfg.StatsdAddress, "error", err)
		}
		client, _ = statsd.NewClient(statsd.Config{Logger: logger})
	}
	return client
}
