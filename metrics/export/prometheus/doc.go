// Package prometheus renders otpgate engine counters as Prometheus text.
//
// The exporter reads one snapshot per scrape and never registers anything in a global
// registry. Counter names follow otpgate_*_total and the access-token validation
// histogram is otpgate_validate_latency_seconds.
package prometheus
