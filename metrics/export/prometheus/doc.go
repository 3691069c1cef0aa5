// Package prometheus renders engine counters in the Prometheus text exposition format.
//
// [NewPrometheusExporter] wraps a [jobAuth.Engine] and serves every counter as
// jobauth_*_total plus the jobauth_refresh_latency_seconds histogram. Nothing is
// registered globally; callers mount [PrometheusExporter.Handler].
package prometheus
