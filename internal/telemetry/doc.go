// Package telemetry wraps OpenTelemetry SDK setup. When telemetry is
// disabled, no exporters are created and the global providers stay noop.
package telemetry
