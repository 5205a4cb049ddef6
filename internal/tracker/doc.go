// Package tracker associates opaque progress identifiers returned at
// submission time with observable operation records. The tracker never
// computes progress itself: status, percent, and message are supplied by the
// backend's progress reporting, applied as updates, and fanned out to
// pluggable sinks such as structured logs, Prometheus metrics, or a durable
// operation store.
package tracker
