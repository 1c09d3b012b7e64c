package storage

import (
	"context"
	"sync"

	"github.com/annel0/shard-realms/internal/apperr"
	"github.com/annel0/shard-realms/internal/world"
)

// WorldRepo определяет интерфейс хранения миров.
// Мир сохраняется целиком вместе с клетками, боями и состояниями игроков.
type WorldRepo interface {
	// NextID выдаёт новый уникальный id мира.
	NextID(ctx context.Context) (uint64, error)

	// Get возвращает копию мира; изменения копии не видны без Save.
	// Отсутствующий мир: apperr.ErrWorldNotFound.
	Get(ctx context.Context, id uint64) (*world.World, error)

	// Save создаёт или перезаписывает мир.
	Save(ctx context.Context, w *world.World) error

	// Delete удаляет мир вместе со всем, чем он владеет.
	Delete(ctx context.Context, id uint64) error

	// List краткие описания всех миров.
	List(ctx context.Context) ([]world.Summary, error)

	Close() error
}

// MemoryWorldRepo потокобезопасное in-memory хранилище миров
type MemoryWorldRepo struct {
	mu     sync.RWMutex
	worlds map[uint64]*world.World
	nextID uint64
}

// NewMemoryWorldRepo создаёт пустое хранилище; id начинаются с 1
func NewMemoryWorldRepo() *MemoryWorldRepo {
	return &MemoryWorldRepo{worlds: make(map[uint64]*world.World), nextID: 1}
}

func (r *MemoryWorldRepo) NextID(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	return id, nil
}

func (r *MemoryWorldRepo) Get(ctx context.Context, id uint64) (*world.World, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.worlds[id]
	if !ok {
		return nil, apperr.Newf(apperr.KindWorldNotFound, "world %d not found", id)
	}
	return w.Clone(), nil
}

func (r *MemoryWorldRepo) Save(ctx context.Context, w *world.World) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.worlds[w.ID] = w.Clone()
	return nil
}

func (r *MemoryWorldRepo) Delete(ctx context.Context, id uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.worlds[id]
	if !ok {
		return apperr.Newf(apperr.KindWorldNotFound, "world %d not found", id)
	}
	w.Release()
	delete(r.worlds, id)
	return nil
}

func (r *MemoryWorldRepo) List(ctx context.Context) ([]world.Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]world.Summary, 0, len(r.worlds))
	for _, w := range r.worlds {
		out = append(out, w.Summarize())
	}
	world.SortSummaries(out)
	return out, nil
}

func (r *MemoryWorldRepo) Close() error { return nil }
