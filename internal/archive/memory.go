package archive

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryRepository is used when no database is configured.
type MemoryRepository struct {
	mu     sync.RWMutex
	byGame map[string]*Entry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byGame: make(map[string]*Entry)}
}

func (m *MemoryRepository) Save(_ context.Context, e *Entry) error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Moves = append([]string(nil), e.Moves...)
	m.mu.Lock()
	m.byGame[e.GameID] = &cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, gameID string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byGame[gameID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryRepository) RecentByPlayer(_ context.Context, addr string, limit int) ([]*Entry, error) {
	m.mu.RLock()
	var items []*Entry
	for _, e := range m.byGame {
		if strings.EqualFold(e.SeatOne, addr) || strings.EqualFold(e.SeatTwo, addr) {
			cp := *e
			items = append(items, &cp)
		}
	}
	m.mu.RUnlock()

	// EndedAt desc, then game id
	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndedAt.Equal(items[j].EndedAt) {
			return items[i].EndedAt.After(items[j].EndedAt)
		}
		return items[i].GameID > items[j].GameID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *MemoryRepository) Close() error { return nil }
