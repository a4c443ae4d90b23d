// Package metrics holds the OpenTelemetry instruments of the order and coupon
// engine.
package metrics

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/storefront/internal/domain/apperr"
)

const instrumentationName = "github.com/xenking/storefront"

// Coupon application modes.
const (
	ModeDirect   = "direct"
	ModeDeferred = "deferred_intent"
)

// Metrics records engine events.
type Metrics struct {
	tracer trace.Tracer

	ordersCreated   metric.Int64Counter
	ordersFailed    metric.Int64Counter
	unitsReserved   metric.Int64Counter
	couponsApplied  metric.Int64Counter
	intentsRecorded metric.Int64Counter
}

// New creates the instruments from the given providers.
func New(mp metric.MeterProvider, tp trace.TracerProvider) (*Metrics, error) {
	meter := mp.Meter(instrumentationName)
	m := &Metrics{tracer: tp.Tracer(instrumentationName)}

	var err error
	if m.ordersCreated, err = meter.Int64Counter("storefront.orders.created",
		metric.WithDescription("Orders committed"),
		metric.WithUnit("{order}"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.created")
	}
	if m.ordersFailed, err = meter.Int64Counter("storefront.orders.failed",
		metric.WithDescription("Order creations rolled back, by failure kind"),
		metric.WithUnit("{order}"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.failed")
	}
	if m.unitsReserved, err = meter.Int64Counter("storefront.stock.units_reserved",
		metric.WithDescription("Stock units deducted by committed orders"),
		metric.WithUnit("{unit}"),
	); err != nil {
		return nil, errors.Wrap(err, "stock.units_reserved")
	}
	if m.couponsApplied, err = meter.Int64Counter("storefront.coupons.applied",
		metric.WithDescription("Coupons applied to orders, by mode"),
		metric.WithUnit("{coupon}"),
	); err != nil {
		return nil, errors.Wrap(err, "coupons.applied")
	}
	if m.intentsRecorded, err = meter.Int64Counter("storefront.coupons.intents_recorded",
		metric.WithDescription("Deferred coupon intents recorded"),
		metric.WithUnit("{intent}"),
	); err != nil {
		return nil, errors.Wrap(err, "coupons.intents_recorded")
	}

	return m, nil
}

// Noop returns Metrics that record nothing.
func Noop() *Metrics {
	m, err := New(metricnoop.NewMeterProvider(), tracenoop.NewTracerProvider())
	if err != nil {
		panic(err)
	}
	return m
}

// Start opens a span named name.
func (m *Metrics) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// OrderCreated records a committed order with the given number of units.
func (m *Metrics) OrderCreated(ctx context.Context, units int) {
	m.ordersCreated.Add(ctx, 1)
	m.unitsReserved.Add(ctx, int64(units))
}

// OrderFailed records an aborted order creation.
func (m *Metrics) OrderFailed(ctx context.Context, err error) {
	m.ordersFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", apperr.KindOf(err).String())))
}

// CouponApplied records a coupon discount applied in mode.
func (m *Metrics) CouponApplied(ctx context.Context, mode string) {
	m.couponsApplied.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

// IntentRecorded records a deferred coupon intent.
func (m *Metrics) IntentRecorded(ctx context.Context) {
	m.intentsRecorded.Add(ctx, 1)
}
