package profile

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RegisterOTel mirrors the profiling registry onto OpenTelemetry observable
// counters. A nil meter uses the global meter provider. The returned
// registration can be unregistered to stop exporting.
func RegisterOTel(meter metric.Meter) (metric.Registration, error) {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter("github.com/scorec/redev-go/profile")
	}
	calls, err := meter.Int64ObservableCounter("redev.function.calls")
	if err != nil {
		return nil, err
	}
	seconds, err := meter.Float64ObservableCounter("redev.function.seconds")
	if err != nil {
		return nil, err
	}
	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for name, e := range snapshot() {
			attrs := metric.WithAttributes(attribute.String("function", name))
			o.ObserveInt64(calls, int64(e.calls), attrs)
			o.ObserveFloat64(seconds, e.seconds, attrs)
		}
		return nil
	}, calls, seconds)
}
