package store

import (
	"context"
	"sync"
)

// memoryStore implements IdentityStore with an in-process map. Used when
// Redis is disabled; identities survive only as long as the process.
type memoryStore struct {
	mu    sync.RWMutex
	names map[string]string
}

// NewMemoryStore creates an in-memory identity store.
func NewMemoryStore() IdentityStore {
	return &memoryStore{names: make(map[string]string)}
}

func memoryKey(clientUID, roomCode string) string {
	return clientUID + ":" + roomCode
}

func (s *memoryStore) Remember(_ context.Context, clientUID, roomCode, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[memoryKey(clientUID, roomCode)] = username
	return nil
}

func (s *memoryStore) Lookup(_ context.Context, clientUID, roomCode string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.names[memoryKey(clientUID, roomCode)], nil
}

func (s *memoryStore) Forget(_ context.Context, clientUID, roomCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.names, memoryKey(clientUID, roomCode))
	return nil
}

func (s *memoryStore) Close() error {
	return nil
}
