package storage

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/tokengate/instrumentation"
)

// Instrumented is a Backend that records a span and storage metrics for every call.
type Instrumented struct {
	inner   Backend
	name    string
	tracer  trace.Tracer
	metrics *instrumentation.Metrics
}

var _ Backend = (*Instrumented)(nil)

// NewInstrumented wraps inner. name labels the backend type ("memory", "sqlite", ...).
func NewInstrumented(inner Backend, inst *instrumentation.Instrumentation, name string) *Instrumented {
	inst = instrumentation.OrNoop(inst)
	return &Instrumented{
		inner:   inner,
		name:    name,
		tracer:  inst.Tracer("storage"),
		metrics: inst.Metrics(),
	}
}

func (b *Instrumented) observe(ctx context.Context, operation string, keyCount int) (context.Context, func(error)) {
	ctx, span := b.tracer.Start(ctx, "storage."+operation)
	instrumentation.AddStorageAttributes(span, operation, b.name, keyCount)
	start := time.Now()

	return ctx, func(err error) {
		result := "success"
		if err != nil {
			result = "error"
			instrumentation.RecordError(span, err)
		} else {
			instrumentation.SetSpanSuccess(span)
		}
		b.metrics.RecordStorageOperation(ctx, b.name, operation, result, float64(time.Since(start).Microseconds())/1000)
		span.End()
	}
}

// Get implements Backend.
func (b *Instrumented) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	ctx, done := b.observe(ctx, "get", len(keys))
	values, err := b.inner.Get(ctx, keys...)
	done(err)
	return values, err
}

// Set implements Backend.
func (b *Instrumented) Set(ctx context.Context, values map[string]string) error {
	ctx, done := b.observe(ctx, "set", len(values))
	err := b.inner.Set(ctx, values)
	done(err)
	return err
}

// Delete implements Backend.
func (b *Instrumented) Delete(ctx context.Context, keys ...string) error {
	ctx, done := b.observe(ctx, "delete", len(keys))
	err := b.inner.Delete(ctx, keys...)
	done(err)
	return err
}

// CompareAndSwap implements Backend.
func (b *Instrumented) CompareAndSwap(ctx context.Context, guardKey, expected string, values map[string]string) (bool, error) {
	ctx, done := b.observe(ctx, "compare_and_swap", len(values)+1)
	swapped, err := b.inner.CompareAndSwap(ctx, guardKey, expected, values)
	done(err)
	return swapped, err
}

// Close implements Backend.
func (b *Instrumented) Close() error {
	return b.inner.Close()
}
