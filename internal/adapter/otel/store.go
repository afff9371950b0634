package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/storeconsole/internal/domain"
)

const tracerName = "github.com/neomorfeo/storeconsole/internal/adapter/otel"

// TracingCredentialStore wraps a domain.CredentialStore with OpenTelemetry
// tracing. Span attributes never include the token itself.
type TracingCredentialStore struct {
	next   domain.CredentialStore
	tracer trace.Tracer
}

// Compile-time check: TracingCredentialStore implements domain.CredentialStore.
var _ domain.CredentialStore = (*TracingCredentialStore)(nil)

// NewTracingCredentialStore creates a tracing decorator around the given store.
func NewTracingCredentialStore(next domain.CredentialStore) *TracingCredentialStore {
	return &TracingCredentialStore{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (s *TracingCredentialStore) Load(ctx context.Context) (domain.Credentials, error) {
	ctx, span := s.tracer.Start(ctx, "CredentialStore.Load")
	defer span.End()

	creds, err := s.next.Load(ctx)
	if err != nil {
		recordError(span, err)
		return creds, err
	}
	span.SetAttributes(credentialAttributes(creds)...)
	return creds, nil
}

func (s *TracingCredentialStore) Save(ctx context.Context, creds domain.Credentials) error {
	ctx, span := s.tracer.Start(ctx, "CredentialStore.Save",
		trace.WithAttributes(credentialAttributes(creds)...),
	)
	defer span.End()

	err := s.next.Save(ctx, creds)
	recordError(span, err)
	return err
}

func (s *TracingCredentialStore) Update(ctx context.Context, fn func(*domain.Credentials) bool) error {
	ctx, span := s.tracer.Start(ctx, "CredentialStore.Update")
	defer span.End()

	changed := false
	err := s.next.Update(ctx, func(c *domain.Credentials) bool {
		changed = fn(c)
		if changed {
			span.SetAttributes(credentialAttributes(*c)...)
		}
		return changed
	})
	span.SetAttributes(attribute.Bool("credentials.changed", changed))
	recordError(span, err)
	return err
}

func (s *TracingCredentialStore) Clear(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "CredentialStore.Clear")
	defer span.End()

	err := s.next.Clear(ctx)
	recordError(span, err)
	return err
}

func credentialAttributes(creds domain.Credentials) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Bool("credentials.has_token", creds.Token != ""),
	}
	if creds.Profile != nil {
		attrs = append(attrs, attribute.String("user.id", creds.Profile.UserID))
	}
	if creds.ActiveTenant != nil {
		attrs = append(attrs, attribute.String("tenant.id", creds.ActiveTenant.ID))
	}
	if creds.PendingPurchase != "" {
		attrs = append(attrs, attribute.String("tenant.pending_purchase", creds.PendingPurchase))
	}
	return attrs
}

func recordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
