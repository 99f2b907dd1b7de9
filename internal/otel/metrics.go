package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/dativo-io/piiscan"

var (
	candidateCounter   metric.Int64Counter
	predictionCounter  metric.Int64Counter
	degradationCounter metric.Int64Counter
	violationCounter   metric.Int64Counter
	scanDuration       metric.Float64Histogram
	metricsOnce        sync.Once
	metricsRegistered  bool
)

func initMetrics() {
	meter := otel.Meter(meterName)
	var err error
	if candidateCounter, err = meter.Int64Counter("piiscan.candidates",
		metric.WithDescription("Candidates proposed by the rule layer")); err != nil {
		return
	}
	if predictionCounter, err = meter.Int64Counter("piiscan.predictions",
		metric.WithDescription("Ensemble predictions by label")); err != nil {
		return
	}
	if degradationCounter, err = meter.Int64Counter("piiscan.provider.degraded",
		metric.WithDescription("Provider calls that failed and fell back to a neutral signal")); err != nil {
		return
	}
	if violationCounter, err = meter.Int64Counter("piiscan.redaction.violations",
		metric.WithDescription("Contexts rejected because a PII value survived redaction")); err != nil {
		return
	}
	if scanDuration, err = meter.Float64Histogram("piiscan.scan.duration",
		metric.WithDescription("Wall time of one text scan"),
		metric.WithUnit("ms")); err != nil {
		return
	}
	metricsRegistered = true
}

// RecordCandidates counts rule-layer candidates for one text.
func RecordCandidates(ctx context.Context, total, labeled int) {
	metricsOnce.Do(initMetrics)
	if !metricsRegistered {
		return
	}
	candidateCounter.Add(ctx, int64(labeled), metric.WithAttributes(attribute.Bool("labeled", true)))
	candidateCounter.Add(ctx, int64(total-labeled), metric.WithAttributes(attribute.Bool("labeled", false)))
}

// RecordPrediction counts one ensemble decision. An empty label is recorded
// as "none".
func RecordPrediction(ctx context.Context, label string) {
	metricsOnce.Do(initMetrics)
	if !metricsRegistered {
		return
	}
	if label == "" {
		label = "none"
	}
	predictionCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("label", label)))
}

// RecordDegradation counts a provider failure that was replaced by an
// empty or neutral signal.
func RecordDegradation(ctx context.Context, provider string) {
	metricsOnce.Do(initMetrics)
	if !metricsRegistered {
		return
	}
	degradationCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}

// RecordViolation counts a redaction postcondition failure.
func RecordViolation(ctx context.Context) {
	metricsOnce.Do(initMetrics)
	if !metricsRegistered {
		return
	}
	violationCounter.Add(ctx, 1)
}

// RecordScanDuration records how long one text scan took. outcome is
// "ok", "violation" or "error".
func RecordScanDuration(ctx context.Context, ms float64, outcome string) {
	metricsOnce.Do(initMetrics)
	if !metricsRegistered {
		return
	}
	scanDuration.Record(ctx, ms, metric.WithAttributes(attribute.String("outcome", outcome)))
}
