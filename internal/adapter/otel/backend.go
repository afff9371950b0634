package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/storeconsole/internal/domain"
)

// Backend is the full set of store platform ports.
type Backend interface {
	domain.AuthAPI
	domain.TenantDirectory
	domain.ThemeAPI
}

// TracingBackend wraps the backend ports with OpenTelemetry tracing.
type TracingBackend struct {
	next   Backend
	tracer trace.Tracer
}

// Compile-time check: TracingBackend implements Backend.
var _ Backend = (*TracingBackend)(nil)

// NewTracingBackend creates a tracing decorator around the given backend.
func NewTracingBackend(next Backend) *TracingBackend {
	return &TracingBackend{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (b *TracingBackend) Login(ctx context.Context, email, password string) (domain.LoginResult, error) {
	ctx, span := b.tracer.Start(ctx, "Backend.Login",
		trace.WithAttributes(attribute.String("user.email", email)),
	)
	defer span.End()

	res, err := b.next.Login(ctx, email, password)
	if err != nil {
		recordError(span, err)
		return res, err
	}
	span.SetAttributes(
		attribute.String("user.id", res.Profile.UserID),
		attribute.String("user.role", string(res.Profile.Role)),
	)
	return res, nil
}

func (b *TracingBackend) Profile(ctx context.Context) (domain.Profile, error) {
	ctx, span := b.tracer.Start(ctx, "Backend.Profile")
	defer span.End()

	p, err := b.next.Profile(ctx)
	if err != nil {
		recordError(span, err)
		return p, err
	}
	span.SetAttributes(attribute.String("user.id", p.UserID))
	return p, nil
}

func (b *TracingBackend) GetByID(ctx context.Context, id string) (domain.Tenant, error) {
	ctx, span := b.tracer.Start(ctx, "Backend.GetByID",
		trace.WithAttributes(attribute.String("tenant.id", id)),
	)
	defer span.End()

	tenant, err := b.next.GetByID(ctx, id)
	recordError(span, err)
	return tenant, err
}

func (b *TracingBackend) GetBySlug(ctx context.Context, slug string) (domain.Tenant, error) {
	ctx, span := b.tracer.Start(ctx, "Backend.GetBySlug",
		trace.WithAttributes(attribute.String("tenant.slug", slug)),
	)
	defer span.End()

	tenant, err := b.next.GetBySlug(ctx, slug)
	if err != nil {
		recordError(span, err)
		return tenant, err
	}
	span.SetAttributes(attribute.String("tenant.theme_id", tenant.ThemeID))
	return tenant, nil
}

func (b *TracingBackend) ListOwned(ctx context.Context) ([]domain.Tenant, error) {
	ctx, span := b.tracer.Start(ctx, "Backend.ListOwned")
	defer span.End()

	tenants, err := b.next.ListOwned(ctx)
	if err != nil {
		recordError(span, err)
		return tenants, err
	}
	span.SetAttributes(attribute.Int("result.count", len(tenants)))
	return tenants, nil
}

func (b *TracingBackend) ApplyTheme(ctx context.Context, tenantSlug, themeSlug string) (domain.ApplyResult, error) {
	ctx, span := b.tracer.Start(ctx, "Backend.ApplyTheme",
		trace.WithAttributes(
			attribute.String("tenant.slug", tenantSlug),
			attribute.String("theme.slug", themeSlug),
		),
	)
	defer span.End()

	res, err := b.next.ApplyTheme(ctx, tenantSlug, themeSlug)
	if err != nil {
		recordError(span, err)
		return res, err
	}
	span.SetAttributes(attribute.String("apply.status", string(res.Status)))
	return res, nil
}
