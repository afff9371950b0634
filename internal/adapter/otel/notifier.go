package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/storeconsole/internal/domain"
)

// TracingNotifier wraps a domain.ActivationNotifier with OpenTelemetry tracing.
type TracingNotifier struct {
	next   domain.ActivationNotifier
	tracer trace.Tracer
}

// Compile-time check: TracingNotifier implements domain.ActivationNotifier.
var _ domain.ActivationNotifier = (*TracingNotifier)(nil)

// NewTracingNotifier creates a tracing decorator around the given notifier.
func NewTracingNotifier(next domain.ActivationNotifier) *TracingNotifier {
	return &TracingNotifier{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (n *TracingNotifier) Notify(ctx context.Context, job domain.ActivationJob) error {
	attrs := []attribute.KeyValue{
		attribute.String("job.id", job.ID),
		attribute.String("job.state", string(job.State)),
		attribute.Int("job.attempts", job.Attempts),
		attribute.String("tenant.id", job.Request.TenantID),
		attribute.String("theme.id", job.Request.ThemeID),
	}
	if job.Outcome != nil {
		attrs = append(attrs, attribute.String("job.outcome", job.Outcome.String()))
	}

	ctx, span := n.tracer.Start(ctx, "ActivationNotifier.Notify", trace.WithAttributes(attrs...))
	defer span.End()

	err := n.next.Notify(ctx, job)
	recordError(span, err)
	return err
}
