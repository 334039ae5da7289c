// Package telemetry provides a trimmed OpenTelemetry RED-metrics and
// tracing provider for the plan runner: one span per step, counters for
// requests/errors, a duration histogram, and an active-lease gauge for
// the session pool. Disabled by default so tests never try to dial an
// OTLP collector.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the Provider.
type Config struct {
	ServiceName  string
	OTLPEndpoint string // e.g. "localhost:4317"
	Enabled      bool
	Insecure     bool
}

// DefaultConfig returns telemetry disabled, which is the right default
// for a library that has no business dialing a collector unless its
// caller asks for one.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:  "planrunner",
		OTLPEndpoint: "localhost:4317",
		Enabled:      false,
		Insecure:     true,
	}
}

// Provider holds the tracer/meter and the RED instruments wired into
// the runner and session pool.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	requestCounter   metric.Int64Counter
	errorCounter     metric.Int64Counter
	durationHist     metric.Float64Histogram
	activeLeaseGauge metric.Int64UpDownCounter
}

// New builds a Provider. When cfg.Enabled is false, it returns a
// no-op Provider whose methods are all safe to call and do nothing.
func New(ctx context.Context, cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	p := &Provider{config: cfg, logger: slog.Default().With("component", "telemetry")}

	if !cfg.Enabled {
		p.logger.InfoContext(ctx, "telemetry disabled")
		return p, nil
	}

	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))

	if err := p.initTraceProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("telemetry: init trace provider: %w", err)
	}
	if err := p.initMetricProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("telemetry: init metric provider: %w", err)
	}

	p.tracer = otel.Tracer("planrunner")
	p.meter = otel.Meter("planrunner")
	if err := p.initREDMetrics(); err != nil {
		return nil, fmt.Errorf("telemetry: init RED metrics: %w", err)
	}

	p.logger.InfoContext(ctx, "telemetry initialized", "service", cfg.ServiceName, "endpoint", cfg.OTLPEndpoint)
	return p, nil
}

func (p *Provider) initTraceProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint)}
	if p.config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return err
	}
	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
	)
	otel.SetTracerProvider(p.tracerProvider)
	return nil
}

func (p *Provider) initMetricProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint)}
	if p.config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return err
	}
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetMeterProvider(p.meterProvider)
	return nil
}

func (p *Provider) initREDMetrics() error {
	var err error
	if p.requestCounter, err = p.meter.Int64Counter("planrunner.steps.total",
		metric.WithDescription("Total number of steps dispatched"), metric.WithUnit("{step}")); err != nil {
		return err
	}
	if p.errorCounter, err = p.meter.Int64Counter("planrunner.steps.errors",
		metric.WithDescription("Total number of steps that failed"), metric.WithUnit("{error}")); err != nil {
		return err
	}
	if p.durationHist, err = p.meter.Float64Histogram("planrunner.step.duration",
		metric.WithDescription("Step execution duration"), metric.WithUnit("s")); err != nil {
		return err
	}
	if p.activeLeaseGauge, err = p.meter.Int64UpDownCounter("planrunner.session.active_leases",
		metric.WithDescription("Currently outstanding session leases"), metric.WithUnit("{lease}")); err != nil {
		return err
	}
	return nil
}

// Shutdown flushes and tears down the providers. Safe to call on a
// disabled Provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "shutting down trace provider", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "shutting down metric provider", "error", err)
		}
	}
	return nil
}

// StartStep starts a span for one step's execution and returns a
// completion func to call with the step's outcome.
func (p *Provider) StartStep(ctx context.Context, stepID, tool string) (context.Context, func(error)) {
	start := time.Now()
	attrs := []attribute.KeyValue{
		attribute.String("step.id", stepID),
		attribute.String("step.tool", tool),
	}

	var span trace.Span
	if p.tracer != nil {
		ctx, span = p.tracer.Start(ctx, "step."+stepID, trace.WithAttributes(attrs...))
	}
	if p.requestCounter != nil {
		p.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}

	return ctx, func(err error) {
		if p.durationHist != nil {
			p.durationHist.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
		}
		if err != nil {
			if p.errorCounter != nil {
				p.errorCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
			}
			if span != nil {
				span.RecordError(err)
			}
		}
		if span != nil {
			span.End()
		}
	}
}

// LeaseAcquired and LeaseReleased adjust the active-lease gauge for a
// backend kind; both are no-ops when telemetry is disabled.
func (p *Provider) LeaseAcquired(ctx context.Context, backend string) {
	if p.activeLeaseGauge != nil {
		p.activeLeaseGauge.Add(ctx, 1, metric.WithAttributes(attribute.String("backend", backend)))
	}
}

func (p *Provider) LeaseReleased(ctx context.Context, backend string) {
	if p.activeLeaseGauge != nil {
		p.activeLeaseGauge.Add(ctx, -1, metric.WithAttributes(attribute.String("backend", backend)))
	}
}
