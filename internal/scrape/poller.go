package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/fleetsentry/fleetsentry/internal/config"
	"github.com/fleetsentry/fleetsentry/internal/health"
	"github.com/fleetsentry/fleetsentry/internal/store"
)

// Gauge names expected on the scraped endpoint.
const (
	metricHealth  = "machine_health_percent"
	metricAnomaly = "machine_anomaly_score"
)

const requestTimeout = 10 * time.Second

// Poller scrapes the configured machine exporters on a fixed interval.
type Poller struct {
	cfg      config.ScrapeConfig
	readings *store.ReadingLog
	client   *http.Client

	now func() time.Time
}

// New builds a Poller.
func New(cfg config.ScrapeConfig, readings *store.ReadingLog) *Poller {
	return &Poller{
		cfg:      cfg,
		readings: readings,
		client:   &http.Client{Timeout: requestTimeout},
		now:      time.Now,
	}
}

// Run polls every configured source once per interval until ctx is canceled.
// It returns immediately when no sources are configured. Failed scrapes are
// logged and retried on the next tick.
func (p *Poller) Run(ctx context.Context) {
	if len(p.cfg.Sources) == 0 {
		return
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	slog.Info("scrape: polling started", "sources", len(p.cfg.Sources), "interval", p.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("scrape: polling stopped")
			return
		case <-ticker.C:
			for _, src := range p.cfg.Sources {
				if err := p.scrapeOne(ctx, src); err != nil {
					slog.Warn("scrape: source failed", "machine", src.MachineID, "endpoint", src.Endpoint, "err", err)
				}
			}
		}
	}
}

// scrapeOne fetches one exporter, extracts the machine gauges and appends
// the resulting reading.
func (p *Poller) scrapeOne(ctx context.Context, src config.ScrapeSource) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch: status %d", resp.StatusCode)
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return fmt.Errorf("parse exposition: %w", err)
	}

	healthVal, err := gaugeValue(families, metricHealth)
	if err != nil {
		return err
	}
	anomalyVal, err := gaugeValue(families, metricAnomaly)
	if err != nil {
		return err
	}
	if healthVal < 0 || healthVal > 100 {
		return fmt.Errorf("%s %.2f out of range", metricHealth, healthVal)
	}
	if anomalyVal < 0 || anomalyVal > 1 {
		return fmt.Errorf("%s %.3f out of range", metricAnomaly, anomalyVal)
	}

	status := health.StatusHealthy
	switch {
	case healthVal < config.DefaultHealthCriticalBelow:
		status = health.StatusCritical
	case healthVal < config.DefaultHealthWarningBelow:
		status = health.StatusWarning
	}

	p.readings.Append(store.Reading{
		MachineID:    src.MachineID,
		Timestamp:    p.now().UTC(),
		Health:       healthVal,
		AnomalyScore: anomalyVal,
		Status:       status,
	})
	return nil
}

// gaugeValue extracts the first sample of a gauge family.
func gaugeValue(families map[string]*dto.MetricFamily, name string) (float64, error) {
	fam, ok := families[name]
	if !ok {
		return 0, fmt.Errorf("metric %s not exposed", name)
	}
	for _, m := range fam.GetMetric() {
		if g := m.GetGauge(); g != nil {
			return g.GetValue(), nil
		}
		if u := m.GetUntyped(); u != nil {
			return u.GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %s has no gauge samples", name)
}
