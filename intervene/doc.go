// Package intervene implements human-in-the-loop suspension for running
// workflows. A humanPause node suspends its run through the Coordinator and
// blocks until an operator resumes it, skips it, or the configured timeout
// fires. Resolved requests stay queryable for a grace period before they are
// evicted.
package intervene
