// Package prometheus renders sessionauth metrics in the Prometheus text
// exposition format.
//
// Counters are named sessionauth_*_total and latency histograms
// sessionauth_*_latency_seconds. Nothing is registered globally; mount
// Handler wherever the scrape endpoint should live.
package prometheus
