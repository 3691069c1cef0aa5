// Package otel publishes engine counters through an OpenTelemetry Meter.
//
// [NewOTelExporter] registers one Int64ObservableCounter per counter and one
// Int64ObservableGauge per histogram bucket; a single callback reads
// [jobAuth.Engine.MetricsSnapshot] on every collection. The caller owns the
// MeterProvider.
package otel
