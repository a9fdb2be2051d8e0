package cache

import (
	"context"
	"sync"

	"github.com/Mutu-s/BaseFair-Miniapp/internal/game"
)

// MemoryStore keeps entries for the life of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[Key][]game.Game
	last    map[uint64]LastCreated
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[Key][]game.Game),
		last:    make(map[uint64]LastCreated),
	}
}

func (m *MemoryStore) Load(_ context.Context, key Key) ([]game.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]game.Game(nil), m.entries[key]...), nil
}

func (m *MemoryStore) Save(_ context.Context, key Key, games []game.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = append(make([]game.Game, 0, len(games)), games...)
	return nil
}

func (m *MemoryStore) Update(_ context.Context, key Key, fn func([]game.Game) []game.Game) ([]game.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	games := fn(append([]game.Game(nil), m.entries[key]...))
	m.entries[key] = append(make([]game.Game, 0, len(games)), games...)
	return games, nil
}

func (m *MemoryStore) SaveLastCreated(_ context.Context, rec LastCreated) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last[rec.ChainID] = rec
	return nil
}

func (m *MemoryStore) LastCreated(_ context.Context, chainID uint64) (LastCreated, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.last[chainID]
	return rec, ok, nil
}

func (m *MemoryStore) Close() error { return nil }
