package state

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// MemoryStore is the in-process backend. It backs tests and the default
// configuration when no durable backend is selected.
type MemoryStore struct {
	mu       sync.RWMutex
	values   map[string][]byte
	watchers map[string]map[chan Event]struct{}
	closed   bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:   make(map[string][]byte),
		watchers: make(map[string]map[chan Event]struct{}),
	}
}

func (s *MemoryStore) Load(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	s.mu.Lock()
	s.values[key] = stored
	s.mu.Unlock()

	s.notify(key)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.values, key)
	s.mu.Unlock()

	s.notify(key)
	return nil
}

func (s *MemoryStore) Watch(ctx context.Context, key string) (<-chan Event, error) {
	ch := make(chan Event, 16)

	s.mu.Lock()
	if s.watchers[key] == nil {
		s.watchers[key] = make(map[chan Event]struct{})
	}
	s.watchers[key][ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		if set, ok := s.watchers[key]; ok {
			if _, live := set[ch]; live {
				delete(set, ch)
				close(ch)
			}
		}
		s.mu.Unlock()
	}()

	return ch, nil
}

func (s *MemoryStore) notify(key string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for ch := range s.watchers[key] {
		select {
		case ch <- Event{Key: key}:
		default:
			log.Warn().Str("key", key).Msg("state watcher buffer full, dropping event")
		}
	}
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	for _, set := range s.watchers {
		for ch := range set {
			close(ch)
		}
	}
	s.watchers = make(map[string]map[chan Event]struct{})
	return nil
}
