package memory

import (
	"context"
	"time"
)

// DefaultNamespace is used when a node leaves the namespace unset.
const DefaultNamespace = "default"

// WriteOptions controls how a value lands in a store.
type WriteOptions struct {
	// Overwrite replaces any existing value. When false the incoming value
	// is merged with the existing one: lists extend, maps update key-wise,
	// strings concatenate, anything else collapses into a two-element list.
	Overwrite bool
	// TTL expires the entry after the given duration. Zero means no expiry.
	// Only the long-term tier honors it.
	TTL time.Duration
}

// Store is a namespaced key-value tier.
type Store interface {
	// Read returns the value under namespace/key. The boolean reports
	// whether the key existed.
	Read(ctx context.Context, namespace, key string) (any, bool, error)
	// ReadAll returns every live entry in the namespace.
	ReadAll(ctx context.Context, namespace string) (map[string]any, error)
	// Write stores value under namespace/key per opts.
	Write(ctx context.Context, namespace, key string, value any, opts WriteOptions) error
	// Delete removes the entry if present.
	Delete(ctx context.Context, namespace, key string) error
	// Close releases backend resources.
	Close() error
}

// MergeValues combines an existing entry with an incoming value for
// non-overwriting writes.
func MergeValues(existing, incoming any) any {
	switch ex := existing.(type) {
	case []any:
		if in, ok := incoming.([]any); ok {
			return append(ex, in...)
		}
		return append(ex, incoming)
	case map[string]any:
		if in, ok := incoming.(map[string]any); ok {
			merged := make(map[string]any, len(ex)+len(in))
			for k, v := range ex {
				merged[k] = v
			}
			for k, v := range in {
				merged[k] = v
			}
			return merged
		}
	case string:
		if in, ok := incoming.(string); ok {
			return ex + in
		}
	}
	return []any{existing, incoming}
}
