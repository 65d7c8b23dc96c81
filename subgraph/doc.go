// Package subgraph keeps a versioned registry of reusable graphs that
// subgraph nodes reference by id. The compiler resolves references here and
// compiles the target graph recursively.
package subgraph
