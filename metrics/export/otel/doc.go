// Package otel publishes identity engine metrics through an OpenTelemetry
// meter. Counters become observable counters; the authenticate latency
// histogram becomes a bucket gauge with an "le" attribute plus a count
// gauge; audit drops are reported per "event_type". One snapshot is taken
// per collection.
//
// The caller owns the MeterProvider.
package otel
