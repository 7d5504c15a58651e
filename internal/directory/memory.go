package directory

import (
	"context"
	"sync"

	"github.com/park285/chess-session-server/internal/domain"
)

// Memory is the single-node Directory used when no Redis is configured.
type Memory struct {
	mu       sync.RWMutex
	reserved map[string]struct{}
	listings map[string]Listing
}

func NewMemory() *Memory {
	return &Memory{reserved: make(map[string]struct{}), listings: make(map[string]Listing)}
}

func (m *Memory) Reserve(_ context.Context, roomID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reserved[roomID]; ok {
		return false, nil
	}
	m.reserved[roomID] = struct{}{}
	return true, nil
}

func (m *Memory) Publish(_ context.Context, l Listing) error {
	m.mu.Lock()
	m.listings[l.ID] = l
	m.mu.Unlock()
	return nil
}

func (m *Memory) Release(_ context.Context, roomID string) error {
	m.mu.Lock()
	delete(m.reserved, roomID)
	delete(m.listings, roomID)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, roomID string) (*Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.listings[roomID]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (m *Memory) Lobby(_ context.Context) ([]Listing, error) {
	m.mu.RLock()
	out := make([]Listing, 0, len(m.listings))
	for _, l := range m.listings {
		if l.Status == domain.StatusWaiting {
			out = append(out, l)
		}
	}
	m.mu.RUnlock()
	sortListings(out)
	return out, nil
}
