package instrumentation

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	// DefaultServiceName is used when Config.ServiceName is empty
	DefaultServiceName = "tokengate"

	// DefaultServiceVersion is the default service version used when none is provided
	DefaultServiceVersion = "unknown"

	// scopePrefix prefixes every meter and tracer name
	scopePrefix = "github.com/giantswarm/tokengate/"
)

// Config holds instrumentation configuration
type Config struct {
	// ServiceName is the name of the service (e.g., "sample-api", "tokengate-cli")
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// Enabled controls whether instrumentation is active
	// When false, uses no-op providers (zero overhead)
	Enabled bool

	// OTLPEndpoint is the OTLP/HTTP trace collector URL, e.g. "http://localhost:4318".
	// When empty, traces are not exported.
	OTLPEndpoint string

	// TracerProvider overrides the tracer provider. Used by tests to record spans.
	TracerProvider trace.TracerProvider

	// MeterProvider overrides the meter provider.
	MeterProvider metric.MeterProvider

	// Resource allows custom resource attributes
	// If nil, default resource is created with service name and version
	Resource *resource.Resource
}

// Instrumentation provides OpenTelemetry instrumentation components
type Instrumentation struct {
	config   Config
	resource *resource.Resource

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider

	metrics *Metrics

	// Shutdown functions (must be registered during New() only, not thread-safe after initialization)
	shutdownFuncs []func(context.Context) error
	shutdownOnce  sync.Once
}

// New creates a new instrumentation instance
func New(config Config) (*Instrumentation, error) {
	if config.ServiceName == "" {
		config.ServiceName = DefaultServiceName
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = DefaultServiceVersion
	}

	res := config.Resource
	if res == nil {
		var err error
		res, err = resource.New(
			context.Background(),
			resource.WithAttributes(
				semconv.ServiceName(config.ServiceName),
				semconv.ServiceVersion(config.ServiceVersion),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create resource: %w", err)
		}
	}

	inst := &Instrumentation{
		config:   config,
		resource: res,
	}

	if config.Enabled {
		if err := inst.initializeProviders(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to initialize providers: %w", err)
		}
	} else {
		inst.meterProvider = noop.NewMeterProvider()
		inst.tracerProvider = tracenoop.NewTracerProvider()
	}

	var err error
	inst.metrics, err = newMetrics(inst)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return inst, nil
}

// Noop returns a disabled instance. It never fails.
func Noop() *Instrumentation {
	inst := &Instrumentation{
		config:         Config{ServiceName: DefaultServiceName, ServiceVersion: DefaultServiceVersion},
		meterProvider:  noop.NewMeterProvider(),
		tracerProvider: tracenoop.NewTracerProvider(),
	}
	// Creating instruments on a noop meter cannot fail.
	inst.metrics, _ = newMetrics(inst)
	return inst
}

// initializeProviders picks injected providers first, then an OTLP exporter when an
// endpoint is configured, and falls back to no-op providers.
func (i *Instrumentation) initializeProviders(ctx context.Context) error {
	switch {
	case i.config.TracerProvider != nil:
		i.tracerProvider = i.config.TracerProvider
	case i.config.OTLPEndpoint != "":
		exporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpointURL(i.config.OTLPEndpoint),
		)
		if err != nil {
			return fmt.Errorf("failed to create otlp exporter: %w", err)
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(i.resource),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		)
		otel.SetTextMapPropagator(propagation.TraceContext{})

		i.tracerProvider = tp
		i.shutdownFuncs = append(i.shutdownFuncs, tp.Shutdown)
	default:
		i.tracerProvider = tracenoop.NewTracerProvider()
	}

	if i.config.MeterProvider != nil {
		i.meterProvider = i.config.MeterProvider
	} else {
		i.meterProvider = noop.NewMeterProvider()
	}

	return nil
}

// Shutdown gracefully shuts down all instrumentation providers
// This should be called when the application is terminating
func (i *Instrumentation) Shutdown(ctx context.Context) error {
	var shutdownErr error

	i.shutdownOnce.Do(func() {
		for _, fn := range i.shutdownFuncs {
			if err := fn(ctx); err != nil {
				// Capture first error, but continue shutting down other components
				if shutdownErr == nil {
					shutdownErr = err
				}
			}
		}
	})

	return shutdownErr
}

// Meter returns a named meter for the given scope
// Scopes are layer names like "client", "verifier", "signing", "storage"
// The full name will be "github.com/giantswarm/tokengate/{scope}"
func (i *Instrumentation) Meter(scope string) metric.Meter {
	return i.meterProvider.Meter(scopePrefix + scope)
}

// Tracer returns a named tracer for the given scope
// The full name will be "github.com/giantswarm/tokengate/{scope}"
func (i *Instrumentation) Tracer(scope string) trace.Tracer {
	return i.tracerProvider.Tracer(scopePrefix + scope)
}

// Metrics returns the metrics holder for recording metric values
func (i *Instrumentation) Metrics() *Metrics {
	return i.metrics
}

// TracerProvider returns the underlying tracer provider
func (i *Instrumentation) TracerProvider() trace.TracerProvider {
	return i.tracerProvider
}

// MeterProvider returns the underlying meter provider
func (i *Instrumentation) MeterProvider() metric.MeterProvider {
	return i.meterProvider
}

// OrNoop returns inst, or a disabled instance when inst is nil.
func OrNoop(inst *Instrumentation) *Instrumentation {
	if inst == nil {
		return Noop()
	}
	return inst
}
