package metrics

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("metric", "kpis"),
		attribute.String("vin", "1HGCM82633A004352"),
		attribute.String("outcome", "fallback"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "metric" && attrs[1].Key != "metric" {
		t.Fatalf("expected metric to be retained")
	}
	if attrs[0].Key != "outcome" && attrs[1].Key != "outcome" {
		t.Fatalf("expected outcome to be retained")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordDashboardMetric(context.Background(), "kpis", errors.New("boom"))
	m.RecordResolution(context.Background(), "sales", "no_data")
	m.RecordRebuildRequest(context.Background(), "pending")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordDashboardMetric(context.Background(), "kpis", nil)
	m.RecordResolution(context.Background(), "inventory", "requested")
}
