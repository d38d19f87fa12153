// Package otel publishes otpgate engine counters through an OpenTelemetry meter.
//
// [New] registers one observable counter per engine counter, a bucket gauge keyed by
// an "le" attribute plus a count gauge for the validation latency histogram, and the
// audit drop counter. The caller owns the MeterProvider.
package otel
