package shop

import (
	"context"
	"sync"
)

// MemoryInventory in-memory инвентарь для тестов и single-instance режима
type MemoryInventory struct {
	mu    sync.Mutex
	items map[uint64]map[string]struct{}
}

// NewMemoryInventory создаёт пустой инвентарь
func NewMemoryInventory() *MemoryInventory {
	return &MemoryInventory{items: make(map[uint64]map[string]struct{})}
}

func (m *MemoryInventory) Owned(ctx context.Context, userID uint64) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.items[userID]))
	for id := range m.items[userID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *MemoryInventory) Add(ctx context.Context, userID uint64, itemID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	owned, ok := m.items[userID]
	if !ok {
		owned = make(map[string]struct{})
		m.items[userID] = owned
	}
	if _, exists := owned[itemID]; exists {
		return false, nil
	}
	owned[itemID] = struct{}{}
	return true, nil
}

func (m *MemoryInventory) Remove(ctx context.Context, userID uint64, itemID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[userID][itemID]; !exists {
		return false, nil
	}
	delete(m.items[userID], itemID)
	return true, nil
}

func (m *MemoryInventory) Close() error {
	return nil
}
