// Package otel publishes authcore metrics through OpenTelemetry observable
// instruments.
//
// Each counter family becomes one Int64ObservableCounter whose outcomes
// are distinguished by an attribute (result or scope). A latency histogram
// becomes a _bucket gauge keyed by the le attribute plus _count and _sum
// counters. One callback reads [authcore.Engine.MetricsSnapshot] per
// collection cycle.
//
// Callers own the MeterProvider and must call [OTelExporter.Close] to
// unregister the callback.
package otel
