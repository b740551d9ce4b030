package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Stream outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeCancelled = "cancelled"
)

var (
	metricsOnce       sync.Once
	metricsInitErr    error
	streamCounter     metric.Int64Counter
	fragmentCounter   metric.Int64Counter
	streamDuration    metric.Float64Histogram
	auditCounter      metric.Int64Counter
	flaggedWordsCount metric.Int64Counter
)

// StreamMetrics describes one finished stream.
type StreamMetrics struct {
	Variant   string
	Outcome   string
	Fragments int
	Duration  time.Duration
}

// RecordStream emits the counters and latency for a stream.
func RecordStream(ctx context.Context, m StreamMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("stream.variant", m.Variant),
		attribute.String("stream.outcome", m.Outcome),
	)

	streamCounter.Add(ctx, 1, attrs)
	if m.Fragments > 0 {
		fragmentCounter.Add(ctx, int64(m.Fragments), attrs)
	}
	if m.Duration > 0 {
		streamDuration.Record(ctx, float64(m.Duration)/float64(time.Millisecond), attrs)
	}
}

// RecordAudit counts an audit verdict and the words it flagged.
func RecordAudit(ctx context.Context, safe bool, flagged int) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Bool("audit.safe", safe))
	auditCounter.Add(ctx, 1, attrs)
	if flagged > 0 {
		flaggedWordsCount.Add(ctx, int64(flagged))
	}
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("polis.mocks")

		streamCounter, metricsInitErr = meter.Int64Counter(
			"mock.stream.total",
			metric.WithDescription("Streams served partitioned by variant and outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		fragmentCounter, metricsInitErr = meter.Int64Counter(
			"mock.stream.fragments_total",
			metric.WithDescription("Content fragments delivered to stream consumers"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		streamDuration, metricsInitErr = meter.Float64Histogram(
			"mock.stream.duration_ms",
			metric.WithDescription("Wall time from the first stream event to the last"),
			metric.WithUnit("ms"),
		)
		if metricsInitErr != nil {
			return
		}

		auditCounter, metricsInitErr = meter.Int64Counter(
			"mock.audit.requests_total",
			metric.WithDescription("Audit requests partitioned by verdict"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		flaggedWordsCount, metricsInitErr = meter.Int64Counter(
			"mock.audit.flagged_words_total",
			metric.WithDescription("Distinct target words found across audit requests"),
			metric.WithUnit("{count}"),
		)
	})

	return metricsInitErr
}

// RecordAuditEvent attaches the audit verdict to span without the audited content.
func RecordAuditEvent(span trace.Span, safe bool, flagged int) {
	if span == nil || !span.IsRecording() {
		return
	}

	span.AddEvent("audit.verdict", trace.WithAttributes(
		attribute.Bool("audit.safe", safe),
		attribute.Int("audit.flagged.count", flagged),
	))
}
