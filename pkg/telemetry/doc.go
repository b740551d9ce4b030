// Package telemetry wires OpenTelemetry tracing and metric instruments for the
// mock services.
//
// It sets up the OTLP trace exporter and records stream and audit outcomes so
// test harnesses can see what the mocks actually served.
package telemetry
