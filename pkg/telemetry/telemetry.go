// Package telemetry configures OpenTelemetry tracing.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	"github.com/macropower/simplerules/pkg/version"
)

// ServiceName is reported as the service.name resource attribute.
const ServiceName = "simplerules"

// ErrNoEndpoint is returned by [NewProvider] when no endpoint is given.
var ErrNoEndpoint = errors.New("no OTLP endpoint")

// Provider wraps a tracer provider that exports spans over OTLP/gRPC.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// ProviderOpt configures a [Provider].
type ProviderOpt func(*providerOptions)

type providerOptions struct {
	exporter sdktrace.SpanExporter
	insecure bool
}

// WithInsecure disables transport security for the OTLP connection.
func WithInsecure() ProviderOpt {
	return func(o *providerOptions) {
		o.insecure = true
	}
}

// WithExporter replaces the OTLP exporter, e.g. with an in-memory one.
func WithExporter(exp sdktrace.SpanExporter) ProviderOpt {
	return func(o *providerOptions) {
		o.exporter = exp
	}
}

// NewProvider creates a [Provider] exporting to endpoint and installs it as
// the global tracer provider.
func NewProvider(ctx context.Context, endpoint string, opts ...ProviderOpt) (*Provider, error) {
	o := &providerOptions{}
	for _, opt := range opts {
		opt(o)
	}

	exp := o.exporter
	if exp == nil {
		if endpoint == "" {
			return nil, ErrNoEndpoint
		}

		grpcOpts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithTimeout(10 * time.Second),
		}
		if o.insecure {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
		}

		var err error

		exp, err = otlptracegrpc.New(ctx, grpcOpts...)
		if err != nil {
			return nil, fmt.Errorf("create OTLP trace exporter: %w", err)
		}
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(ServiceName),
		semconv.ServiceVersion(version.GetVersion()),
	))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)

	return &Provider{tp: tp}, nil
}

// ForceFlush exports all ended spans that have not been exported yet.
func (p *Provider) ForceFlush(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}

	err := p.tp.ForceFlush(ctx)
	if err != nil {
		return fmt.Errorf("flush spans: %w", err)
	}

	return nil
}

// Shutdown flushes remaining spans and stops the provider. It is safe to
// call on a nil [Provider].
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}

	err := p.tp.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("shutdown tracer provider: %w", err)
	}

	return nil
}
