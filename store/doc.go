// Package store persists projects and their graph versions. Each project
// carries a draft version per tag that the editor overwrites in place, plus
// immutable published versions.
package store
