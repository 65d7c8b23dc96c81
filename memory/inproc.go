package memory

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     any
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// InProc is an in-process Store. It backs the short-term tier and serves as
// the long-term fallback when no external backend is configured.
type InProc struct {
	mu   sync.RWMutex
	data map[string]map[string]entry
	now  func() time.Time
}

// NewInProc creates an empty in-process store.
func NewInProc() *InProc {
	return &InProc{
		data: make(map[string]map[string]entry),
		now:  time.Now,
	}
}

func (s *InProc) Read(_ context.Context, namespace, key string) (any, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns, ok := s.data[namespace]
	if !ok {
		return nil, false, nil
	}
	e, ok := ns[key]
	if !ok || e.expired(s.now()) {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (s *InProc) ReadAll(_ context.Context, namespace string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any)
	now := s.now()
	for key, e := range s.data[namespace] {
		if e.expired(now) {
			continue
		}
		out[key] = e.value
	}
	return out, nil
}

func (s *InProc) Write(_ context.Context, namespace, key string, value any, opts WriteOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.data[namespace]
	if !ok {
		ns = make(map[string]entry)
		s.data[namespace] = ns
	}
	if !opts.Overwrite {
		if existing, ok := ns[key]; ok && !existing.expired(s.now()) {
			value = MergeValues(existing.value, value)
		}
	}
	e := entry{value: value}
	if opts.TTL > 0 {
		e.expiresAt = s.now().Add(opts.TTL)
	}
	ns[key] = e
	return nil
}

func (s *InProc) Delete(_ context.Context, namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ns, ok := s.data[namespace]; ok {
		delete(ns, key)
	}
	return nil
}

func (s *InProc) Close() error { return nil }
