// Package types contains shared types used across the flowforge framework:
// structured errors with stable codes and the execution state container
// threaded through compiled workflow programs.
package types
