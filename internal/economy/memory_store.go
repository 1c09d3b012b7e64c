package economy

import (
	"context"
	"sync"
)

// MemoryStore потокобезопасное in-memory хранилище балансов (тесты, single-instance)
type MemoryStore struct {
	mu       sync.Mutex
	balances map[uint64]int64
}

// NewMemoryStore создаёт пустое хранилище
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{balances: make(map[uint64]int64)}
}

func (s *MemoryStore) Balance(ctx context.Context, userID uint64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[userID], nil
}

func (s *MemoryStore) Credit(ctx context.Context, userID uint64, amount int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] += amount
	return s.balances[userID], nil
}

func (s *MemoryStore) DebitIfSufficient(ctx context.Context, userID uint64, amount int64) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	balance := s.balances[userID]
	if balance < amount {
		return balance, false, nil
	}
	s.balances[userID] = balance - amount
	return s.balances[userID], true, nil
}

func (s *MemoryStore) Close() error { return nil }
