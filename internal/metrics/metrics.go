package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type Metrics struct {
	HTTPRequests   metric.Int64Counter
	HTTPDuration   metric.Float64Histogram
	SchedulerRuns  metric.Int64Counter
	SchedulerSkips metric.Int64Counter
	ItemsPublished metric.Int64Counter
	MonitorAlerts  metric.Int64Counter
}

func Setup(serviceName string) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	m := &Metrics{}

	m.HTTPRequests, err = meter.Int64Counter(
		"ink_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPDuration, err = meter.Float64Histogram(
		"ink_http_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.SchedulerRuns, err = meter.Int64Counter(
		"ink_scheduler_runs_total",
		metric.WithDescription("Scheduled-publishing runs by trigger and outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.SchedulerSkips, err = meter.Int64Counter(
		"ink_scheduler_skips_total",
		metric.WithDescription("Passive trigger invocations skipped by the run guard"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ItemsPublished, err = meter.Int64Counter(
		"ink_items_published_total",
		metric.WithDescription("Items transitioned to published by the scheduler"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.MonitorAlerts, err = meter.Int64Counter(
		"ink_monitor_alerts_total",
		metric.WithDescription("Health monitor alerts raised by type"),
	)
	if err != nil {
		return nil, nil, err
	}

	handler := promhttp.Handler()
	return m, handler, nil
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	labels := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	)

	m.HTTPRequests.Add(ctx, 1, labels)
	m.HTTPDuration.Record(ctx, duration.Seconds(), labels)
}

func (m *Metrics) RecordSchedulerRun(ctx context.Context, trigger string, published int, failed bool) {
	m.SchedulerRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.Bool("failed", failed),
	))
	if published > 0 {
		m.ItemsPublished.Add(ctx, int64(published), metric.WithAttributes(
			attribute.String("trigger", trigger),
		))
	}
}

func (m *Metrics) RecordSchedulerSkip(ctx context.Context, reason string) {
	m.SchedulerSkips.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) RecordMonitorAlert(ctx context.Context, alertType string) {
	m.MonitorAlerts.Add(ctx, 1, metric.WithAttributes(attribute.String("type", alertType)))
}
