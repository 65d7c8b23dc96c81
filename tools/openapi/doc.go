// Package openapi turns OpenAPI specifications into callable tools. Each
// operation becomes a registry entry under a caller-chosen module path, so
// graph tool nodes can reference remote APIs by module path and name.
package openapi
