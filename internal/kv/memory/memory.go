package memory

import (
	"context"
	"sync"

	"tally/internal/kv"
)

type Store struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

var _ kv.Store = (*Store)(nil)

func New() *Store {
	return &Store{blobs: make(map[string][]byte)}
}

// NewSeeded returns a store pre-populated with seed, copying every value.
func NewSeeded(seed map[string][]byte) *Store {
	s := New()
	for k, v := range seed {
		s.blobs[k] = append([]byte(nil), v...)
	}
	return s
}

func (s *Store) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[key]
	if !ok {
		return nil, kv.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (s *Store) Save(_ context.Context, key string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = append([]byte(nil), blob...)
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

// Keys returns the number of stored keys.
func (s *Store) Keys() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

func (s *Store) Close() error { return nil }
