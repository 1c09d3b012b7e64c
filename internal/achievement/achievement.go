// Package achievement отслеживает прогресс игроков по достижениям и выдаёт награды.
package achievement

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/annel0/shard-realms/internal/apperr"
	"github.com/annel0/shard-realms/internal/economy"
	"github.com/annel0/shard-realms/internal/eventbus"
	"github.com/annel0/shard-realms/internal/logging"
)

// Имена достижений, на которые реагирует движок
const (
	FirstKill      = "First Kill"
	Slayer         = "Slayer"
	TreasureHunter = "Treasure Hunter"
)

// Achievement описание достижения
type Achievement struct {
	ID          uint64 `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Target      int    `json:"target"`
	Reward      int64  `json:"reward"`
}

// DefaultCatalog набор достижений игры
func DefaultCatalog() []Achievement {
	return []Achievement{
		{ID: 1, Name: FirstKill, Description: "Defeat your first enemy", Target: 1, Reward: 10},
		{ID: 2, Name: Slayer, Description: "Defeat 10 enemies", Target: 10, Reward: 100},
		{ID: 3, Name: TreasureHunter, Description: "Find 5 treasures", Target: 5, Reward: 25},
	}
}

// Progress прогресс пользователя по одному достижению
type Progress struct {
	UserID        uint64 `json:"user_id" bson:"user_id"`
	AchievementID uint64 `json:"achievement_id" bson:"achievement_id"`
	Current       int    `json:"current" bson:"current"`
	Claimed       bool   `json:"claimed" bson:"claimed"`
}

// ProgressRepo хранилище прогресса.
//
// Increment увеличивает счётчик на 1, только если он меньше target,
// и сообщает, было ли увеличение. MarkClaimed атомарно ставит claimed,
// только если прогресс завершён и ещё не забран.
type ProgressRepo interface {
	Get(ctx context.Context, userID, achievementID uint64) (Progress, error)
	List(ctx context.Context, userID uint64) ([]Progress, error)
	Increment(ctx context.Context, userID, achievementID uint64, target int) (Progress, bool, error)
	MarkClaimed(ctx context.Context, userID, achievementID uint64, target int) (bool, error)
	UnmarkClaimed(ctx context.Context, userID, achievementID uint64) error
	Close() error
}

// Status строка каталога с точки зрения пользователя
type Status struct {
	Achievement
	Current   int  `json:"current"`
	Completed bool `json:"completed"`
	Claimed   bool `json:"claimed"`
	Claimable bool `json:"claimable"`
}

// Completion событие завершения достижения
type Completion struct {
	UserID        uint64 `json:"user_id"`
	AchievementID uint64 `json:"achievement_id"`
	Name          string `json:"name"`
	Reward        int64  `json:"reward"`
}

// Tracker считает прогресс и выплачивает награды через ledger
type Tracker struct {
	repo    ProgressRepo
	ledger  *economy.Ledger
	bus     eventbus.EventBus
	logger  *logging.Logger
	byID    map[uint64]Achievement
	byName  map[string]Achievement
	ordered []Achievement
}

// NewTracker создаёт трекер. bus может быть nil.
func NewTracker(repo ProgressRepo, ledger *economy.Ledger, bus eventbus.EventBus, catalog []Achievement) *Tracker {
	t := &Tracker{
		repo:   repo,
		ledger: ledger,
		bus:    bus,
		logger: logging.GetComponentLogger("achievement"),
		byID:   make(map[uint64]Achievement, len(catalog)),
		byName: make(map[string]Achievement, len(catalog)),
	}
	for _, a := range catalog {
		t.byID[a.ID] = a
		t.byName[a.Name] = a
		t.ordered = append(t.ordered, a)
	}
	sort.Slice(t.ordered, func(i, j int) bool { return t.ordered[i].ID < t.ordered[j].ID })
	return t
}

// RecordProgress +1 к достижению name. completedNow истинно ровно для того
// инкремента, который довёл счётчик до цели. Награда не начисляется.
func (t *Tracker) RecordProgress(ctx context.Context, userID uint64, name string) (Progress, bool, error) {
	a, ok := t.byName[name]
	if !ok {
		return Progress{}, false, apperr.Newf(apperr.KindInvalidArgument, "unknown achievement %q", name)
	}

	p, incremented, err := t.repo.Increment(ctx, userID, a.ID, a.Target)
	if err != nil {
		return Progress{}, false, fmt.Errorf("record progress %q for user %d: %w", name, userID, err)
	}

	completedNow := incremented && p.Current >= a.Target
	if completedNow {
		t.logger.Info("🏆 User %d завершил достижение %q (награда %d)", userID, a.Name, a.Reward)
		t.publishCompletion(ctx, userID, a)
	}
	return p, completedNow, nil
}

// Claim выплачивает награду за завершённое достижение ровно один раз.
// Возвращает выплаченную награду и новый баланс.
func (t *Tracker) Claim(ctx context.Context, userID, achievementID uint64) (int64, int64, error) {
	a, ok := t.byID[achievementID]
	if !ok {
		return 0, 0, apperr.Newf(apperr.KindNotClaimable, "unknown achievement %d", achievementID)
	}

	marked, err := t.repo.MarkClaimed(ctx, userID, a.ID, a.Target)
	if err != nil {
		return 0, 0, fmt.Errorf("claim achievement %d: %w", achievementID, err)
	}
	if !marked {
		return 0, 0, apperr.Newf(apperr.KindNotClaimable, "achievement %q is not claimable", a.Name)
	}

	balance, err := t.ledger.Credit(ctx, userID, a.Reward, "achievement "+a.Name)
	if err != nil {
		if uerr := t.repo.UnmarkClaimed(ctx, userID, a.ID); uerr != nil {
			t.logger.Error("❌ Не удалось откатить claimed для user %d achievement %d: %v", userID, a.ID, uerr)
		}
		return 0, 0, err
	}

	t.logger.Info("🎁 User %d забрал награду %d за %q", userID, a.Reward, a.Name)
	return a.Reward, balance, nil
}

// List каталог достижений с прогрессом пользователя
func (t *Tracker) List(ctx context.Context, userID uint64) ([]Status, error) {
	rows, err := t.repo.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	progress := make(map[uint64]Progress, len(rows))
	for _, p := range rows {
		progress[p.AchievementID] = p
	}

	out := make([]Status, 0, len(t.ordered))
	for _, a := range t.ordered {
		p := progress[a.ID]
		completed := p.Current >= a.Target
		out = append(out, Status{
			Achievement: a,
			Current:     p.Current,
			Completed:   completed,
			Claimed:     p.Claimed,
			Claimable:   completed && !p.Claimed,
		})
	}
	return out, nil
}

// Catalog список достижений
func (t *Tracker) Catalog() []Achievement {
	out := make([]Achievement, len(t.ordered))
	copy(out, t.ordered)
	return out
}

func (t *Tracker) publishCompletion(ctx context.Context, userID uint64, a Achievement) {
	if t.bus == nil {
		return
	}
	ev, err := eventbus.NewEnvelope("achievement", eventbus.TypeAchievementCompleted,
		Completion{UserID: userID, AchievementID: a.ID, Name: a.Name, Reward: a.Reward},
		map[string]string{"user_id": strconv.FormatUint(userID, 10)})
	if err != nil {
		t.logger.Warn("⚠️ Не удалось сериализовать событие достижения: %v", err)
		return
	}
	if err := t.bus.Publish(ctx, ev); err != nil {
		t.logger.Warn("⚠️ Не удалось опубликовать событие достижения: %v", err)
	}
}
