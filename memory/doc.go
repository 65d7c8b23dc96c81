// Package memory provides the two-tier state memory used by compiled
// workflows: a short-term tier scoped to a single run and a long-term tier
// persisted across runs with optional expiry. Both tiers speak the same
// Store interface, so backends (in-process, Redis, MongoDB) are
// interchangeable.
package memory
