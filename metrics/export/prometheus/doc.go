// Package prometheus renders identity engine counters in the Prometheus text
// exposition format. Mount [Exporter.Handler] on a scrape endpoint; nothing
// is registered globally.
package prometheus
