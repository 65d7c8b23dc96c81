// Package graph defines the node/edge intermediate representation produced
// by the visual editor and consumed by the compiler. A Schema is submitted
// whole, validated once, and treated as immutable for the duration of a
// compilation.
package graph
