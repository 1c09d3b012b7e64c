package achievement

import (
	"context"
	"sort"
	"sync"
)

type progressKey struct {
	userID        uint64
	achievementID uint64
}

// MemoryProgressRepo потокобезопасное in-memory хранилище прогресса
type MemoryProgressRepo struct {
	mu   sync.Mutex
	rows map[progressKey]*Progress
}

// NewMemoryProgressRepo создаёт пустое хранилище
func NewMemoryProgressRepo() *MemoryProgressRepo {
	return &MemoryProgressRepo{rows: make(map[progressKey]*Progress)}
}

func (r *MemoryProgressRepo) Get(ctx context.Context, userID, achievementID uint64) (Progress, error) {
	if err := ctx.Err(); err != nil {
		return Progress{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.rows[progressKey{userID, achievementID}]; ok {
		return *p, nil
	}
	return Progress{UserID: userID, AchievementID: achievementID}, nil
}

func (r *MemoryProgressRepo) List(ctx context.Context, userID uint64) ([]Progress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Progress
	for k, p := range r.rows {
		if k.userID == userID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AchievementID < out[j].AchievementID })
	return out, nil
}

func (r *MemoryProgressRepo) Increment(ctx context.Context, userID, achievementID uint64, target int) (Progress, bool, error) {
	if err := ctx.Err(); err != nil {
		return Progress{}, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.row(userID, achievementID)
	if p.Current >= target {
		return *p, false, nil
	}
	p.Current++
	return *p, true, nil
}

func (r *MemoryProgressRepo) MarkClaimed(ctx context.Context, userID, achievementID uint64, target int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[progressKey{userID, achievementID}]
	if !ok || p.Claimed || p.Current < target {
		return false, nil
	}
	p.Claimed = true
	return true, nil
}

func (r *MemoryProgressRepo) UnmarkClaimed(ctx context.Context, userID, achievementID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.rows[progressKey{userID, achievementID}]; ok {
		p.Claimed = false
	}
	return nil
}

func (r *MemoryProgressRepo) Close() error { return nil }

func (r *MemoryProgressRepo) row(userID, achievementID uint64) *Progress {
	key := progressKey{userID, achievementID}
	p, ok := r.rows[key]
	if !ok {
		p = &Progress{UserID: userID, AchievementID: achievementID}
		r.rows[key] = p
	}
	return p
}
