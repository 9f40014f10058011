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
	HTTPRequests      metric.Int64Counter
	HTTPDuration      metric.Float64Histogram
	FlushEntities     metric.Int64Counter
	FlushFailures     metric.Int64Counter
	FlushDuration     metric.Float64Histogram
	Hydrations        metric.Int64Counter
	FeedEvents        metric.Int64Counter
	ActiveConnections metric.Int64UpDownCounter
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
		"pf_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPDuration, err = meter.Float64Histogram(
		"pf_http_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.FlushEntities, err = meter.Int64Counter(
		"pf_flush_entities_total",
		metric.WithDescription("Entities written back to storage by flush passes"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.FlushFailures, err = meter.Int64Counter(
		"pf_flush_failures_total",
		metric.WithDescription("Entities that failed to write back during flush passes"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.FlushDuration, err = meter.Float64Histogram(
		"pf_flush_duration_seconds",
		metric.WithDescription("Flush pass duration in seconds"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.Hydrations, err = meter.Int64Counter(
		"pf_memory_hydrations_total",
		metric.WithDescription("Working-set hydrations, including forced reinitializations"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.FeedEvents, err = meter.Int64Counter(
		"pf_feed_events_total",
		metric.WithDescription("Live feed events published to subscribers"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ActiveConnections, err = meter.Int64UpDownCounter(
		"pf_feed_connections",
		metric.WithDescription("Active WebSocket and SSE feed subscribers"),
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

func (m *Metrics) RecordFlush(ctx context.Context, saved, failed int, duration time.Duration) {
	m.FlushEntities.Add(ctx, int64(saved))
	m.FlushFailures.Add(ctx, int64(failed))
	m.FlushDuration.Record(ctx, duration.Seconds())
}

func (m *Metrics) RecordHydration(ctx context.Context, forced bool) {
	m.Hydrations.Add(ctx, 1, metric.WithAttributes(attribute.Bool("forced", forced)))
}

func (m *Metrics) RecordFeedEvent(ctx context.Context, eventType string) {
	m.FeedEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("type", eventType)))
}

func (m *Metrics) IncrementConnections(ctx context.Context) {
	m.ActiveConnections.Add(ctx, 1)
}

func (m *Metrics) DecrementConnections(ctx context.Context) {
	m.ActiveConnections.Add(ctx, -1)
}
