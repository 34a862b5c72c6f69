// Package telemetry wires OpenTelemetry exporters and meters for the sigflow
// enrichment engine.
//
// It centralises trace provider setup, applies engine-specific resource
// attributes, and offers helpers that record node and run execution metrics so
// operators can correlate pipeline behaviour with signal outcomes. Prometheus
// collectors for the serving surface live here as well.
package telemetry
