// Package api exposes the workflow engine over HTTP: code generation,
// project persistence, intervention control, subgraph registration, and a
// WebSocket relay to the execution server.
package api
