// Package sinks provides tracker.Sink implementations: structured logging,
// Prometheus metrics, and durable persistence through an OperationStore.
package sinks
