// Package handlers implements the HTTP handlers of the engine API.
package handlers
