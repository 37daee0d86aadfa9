package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/food-access-cli/internal/config"
)

// Checker runs periodic alert checks in the background.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker", zap.Duration("interval", c.interval))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check collects one window and sends any alerts it triggers.
func (c *Checker) Check(ctx context.Context) []Alert {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	snap, err := c.collector.Collect(ctx)
	if err != nil {
		log.Error("monitoring: failed to collect metrics", zap.Error(err))
		return nil
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		log.Debug("monitoring: no alerts triggered", zap.Int("finished", snap.Total()))
		return nil
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
	return alerts
}
