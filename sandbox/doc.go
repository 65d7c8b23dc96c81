// Package sandbox evaluates user-supplied expressions against execution
// state without exposing host facilities. Expressions use HCL syntax over a
// read-only variable scope; there is no I/O, no imports and no mutation.
// Decision predicates, loop conditions and memory read filters all go
// through this package.
package sandbox
