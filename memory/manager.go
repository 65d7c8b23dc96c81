package memory

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/flowforge/flowforge/sandbox"
	"github.com/flowforge/flowforge/types"
)

// Tier selects which memory tier an operation targets.
type Tier string

const (
	TierShortTerm Tier = "short_term"
	TierLongTerm  Tier = "long_term"
)

// Manager routes reads and writes to the right tier and applies read
// filters. The short-term tier ignores TTLs; the long-term tier honors them.
type Manager struct {
	shortTerm Store
	longTerm  Store
	eval      *sandbox.Evaluator
	logger    *zap.Logger
}

// NewManager builds a manager over the given tiers. Nil tiers default to
// fresh in-process stores.
func NewManager(shortTerm, longTerm Store, eval *sandbox.Evaluator, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if shortTerm == nil {
		shortTerm = NewInProc()
	}
	if longTerm == nil {
		longTerm = NewInProc()
	}
	if eval == nil {
		eval = sandbox.NewEvaluator(logger)
	}
	return &Manager{
		shortTerm: shortTerm,
		longTerm:  longTerm,
		eval:      eval,
		logger:    logger.With(zap.String("component", "memory")),
	}
}

func (m *Manager) store(tier Tier) Store {
	if tier == TierLongTerm {
		return m.longTerm
	}
	return m.shortTerm
}

// Read fetches key from the tier, or the whole namespace when key is empty.
// A non-empty filter expression is evaluated with the fetched data bound as
// "memory"; when the filter fails to evaluate the unfiltered data is
// returned.
func (m *Manager) Read(ctx context.Context, tier Tier, namespace, key, filter string) (any, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	var data any
	if key == "" {
		all, err := m.store(tier).ReadAll(ctx, namespace)
		if err != nil {
			return nil, err
		}
		data = mapToAny(all)
	} else {
		value, ok, err := m.store(tier).Read(ctx, namespace, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		data = value
	}

	if filter == "" || data == nil {
		return data, nil
	}
	filtered, err := m.eval.Evaluate(filter, map[string]any{"memory": data})
	if err != nil {
		m.logger.Warn("memory filter failed, returning unfiltered data",
			zap.String("namespace", namespace),
			zap.String("key", key),
			zap.Error(err))
		return data, nil
	}
	return filtered, nil
}

// Write stores value under namespace/key in the tier. TTL only applies to
// the long-term tier.
func (m *Manager) Write(ctx context.Context, tier Tier, namespace, key string, value any, overwrite bool, ttl time.Duration) error {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if key == "" {
		return types.NewError(types.ErrMemoryBackend, "memory write requires a key")
	}
	opts := WriteOptions{Overwrite: overwrite}
	if tier == TierLongTerm {
		opts.TTL = ttl
	}
	return m.store(tier).Write(ctx, namespace, key, value, opts)
}

// Close releases both tiers.
func (m *Manager) Close() error {
	err := m.shortTerm.Close()
	if lerr := m.longTerm.Close(); err == nil {
		err = lerr
	}
	return err
}

func mapToAny(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
