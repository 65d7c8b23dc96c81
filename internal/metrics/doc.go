// Package metrics exposes Prometheus collectors for compilation, node
// execution, rendering, and intervention activity.
package metrics
