package game

import (
	"context"
	"strconv"

	"github.com/annel0/shard-realms/internal/eventbus"
	"github.com/annel0/shard-realms/internal/vec"
)

const eventSource = "game"

// WorldEvent создание или удаление мира
type WorldEvent struct {
	WorldID   uint64 `json:"world_id"`
	CreatorID uint64 `json:"creator_id"`
	Name      string `json:"name"`
	Reason    string `json:"reason,omitempty"`
}

// TreasureEvent игрок подобрал сокровище
type TreasureEvent struct {
	WorldID uint64   `json:"world_id"`
	UserID  uint64   `json:"user_id"`
	Pos     vec.Vec2 `json:"pos"`
	Reward  int64    `json:"reward"`
}

// BattleEvent начало или завершение боя
type BattleEvent struct {
	WorldID  uint64   `json:"world_id"`
	UserID   uint64   `json:"user_id"`
	BattleID string   `json:"battle_id"`
	Pos      vec.Vec2 `json:"pos"`
	Reward   int64    `json:"reward,omitempty"`
	Manual   bool     `json:"manual,omitempty"`
}

// emit публикует игровое событие; ошибки только логируются
func (e *Engine) emit(ctx context.Context, eventType string, worldID uint64, payload any) {
	if e.bus == nil {
		return
	}
	ev, err := eventbus.NewEnvelope(eventSource, eventType, payload, map[string]string{
		eventbus.MetaWorldID: strconv.FormatUint(worldID, 10),
	})
	if err != nil {
		e.logger.Warn("⚠️ Не удалось сериализовать событие %s: %v", eventType, err)
		return
	}
	if err := e.bus.Publish(context.WithoutCancel(ctx), ev); err != nil {
		e.logger.Warn("⚠️ Событие %s мира %d не опубликовано: %v", eventType, worldID, err)
	}
}
