package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes dashboard and rebuild instruments exported over OTLP.
type Metrics struct {
	dashboardRequests metric.Int64Counter
	resolutions       metric.Int64Counter
	rebuildRequests   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "fluxdrive"
	}
	meter := provider.Meter(name)

	dashboardRequests, err := meter.Int64Counter("fluxdrive_dashboard_metric_requests_total")
	if err != nil {
		return nil, err
	}
	resolutions, err := meter.Int64Counter("fluxdrive_dashboard_date_resolutions_total")
	if err != nil {
		return nil, err
	}
	rebuildRequests, err := meter.Int64Counter("fluxdrive_sales_fact_rebuild_requests_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		dashboardRequests: dashboardRequests,
		resolutions:       resolutions,
		rebuildRequests:   rebuildRequests,
	}, nil
}

// RecordDashboardMetric counts a computed dashboard metric and whether it failed.
func (m *Metrics) RecordDashboardMetric(ctx context.Context, name string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	attrs := FilterAttributes(
		attribute.String("metric", strings.TrimSpace(name)),
		attribute.String("status", status),
	)
	m.dashboardRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordResolution counts how a requested date key was resolved:
// "requested", "fallback" or "no_data".
func (m *Metrics) RecordResolution(ctx context.Context, fact, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("fact", strings.TrimSpace(fact)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.resolutions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRebuildRequest counts rebuild request lifecycle events.
func (m *Metrics) RecordRebuildRequest(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.rebuildRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"metric":      {},
	"fact":        {},
	"outcome":     {},
	"status":      {},
	"status_code": {},
	"source":      {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
