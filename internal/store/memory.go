package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a process-local Store used when no REDIS_URL is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	games  map[string]*Game
	byPair map[string][]string
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games:  make(map[string]*Game),
		byPair: make(map[string][]string),
		now:    time.Now,
	}
}

func (m *MemoryStore) Create(_ context.Context, white, black string) (*Game, error) {
	if err := validPair(white, black); err != nil {
		return nil, err
	}
	g := newGame(uuid.NewString(), white, black, m.now())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.games[g.ID] = g
	key := pairKey(white, black)
	m.byPair[key] = append(m.byPair[key], g.ID)
	return g.Clone(), nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[strings.TrimSpace(id)]
	if !ok {
		return nil, ErrGameNotFound
	}
	return g.Clone(), nil
}

func (m *MemoryStore) FindOngoing(_ context.Context, userA, userB string) (*Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *Game
	for _, id := range m.byPair[pairKey(userA, userB)] {
		g := m.games[id]
		if g == nil || g.Status != StatusOnGoing {
			continue
		}
		if found == nil || !g.UpdatedAt.Before(found.UpdatedAt) {
			found = g
		}
	}
	return found.Clone(), nil
}

// Update mutates a copy and swaps it in only when fn succeeds.
func (m *MemoryStore) Update(_ context.Context, id string, fn func(*Game) error) (*Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.games[strings.TrimSpace(id)]
	if !ok {
		return nil, ErrGameNotFound
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = m.now()
	m.games[next.ID] = next
	return next.Clone(), nil
}

func (m *MemoryStore) Close() error { return nil }
