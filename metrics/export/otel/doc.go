// Package otel publishes sessionauth metrics through an OpenTelemetry
// Meter supplied by the caller.
//
// Every engine counter becomes an Int64ObservableCounter. Latency
// histograms are published as one cumulative gauge per bucket plus a count
// gauge, all read from a single MetricsSnapshot per collection.
package otel
