// Package server manages the HTTP listener lifecycle: non-blocking start,
// graceful shutdown, and SIGINT/SIGTERM handling.
package server
