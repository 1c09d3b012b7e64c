package game

import (
	"context"
	"time"

	"github.com/annel0/shard-realms/internal/achievement"
	"github.com/annel0/shard-realms/internal/apperr"
	"github.com/annel0/shard-realms/internal/battle"
	"github.com/annel0/shard-realms/internal/eventbus"
	"github.com/annel0/shard-realms/internal/logging"
	"github.com/annel0/shard-realms/internal/vec"
	"github.com/annel0/shard-realms/internal/world"
)

var directions = map[string]vec.Vec2{
	"up":    {X: 0, Y: -1},
	"down":  {X: 0, Y: 1},
	"left":  {X: -1, Y: 0},
	"right": {X: 1, Y: 0},
}

// MoveResult итог перемещения
type MoveResult struct {
	From           vec.Vec2       `json:"from"`
	To             vec.Vec2       `json:"to"`
	Cost           int64          `json:"cost"`
	Balance        int64          `json:"balance"`
	TreasureFound  bool           `json:"treasure_found"`
	EnemyDisplaced bool           `json:"enemy_displaced"`
	Battle         *battle.Battle `json:"battle,omitempty"`
}

// MoveCost стоимость перемещения на расстояние d по Манхэттену
func MoveCost(d int) int64 {
	if d <= 1 {
		return 0
	}
	return int64(d) * MoveCostPerSquare
}

// MoveAdjacent шаг на соседнюю клетку (up, down, left, right) бесплатно.
// Как и перемещение за шарды, шаг запрещён до подтверждения встречи и во время боя.
func (e *Engine) MoveAdjacent(ctx context.Context, actor Actor, worldID uint64, direction string) (_ *MoveResult, err error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, "MoveAdjacent", actor, worldID)
	defer func() { e.finish(span, "move_adjacent", start, err) }()

	unlock := e.locks.lock(worldID)
	defer unlock()

	w, err := e.loadVisible(ctx, actor, worldID)
	if err != nil {
		return nil, err
	}
	from, ok := w.PositionOf(actor.UserID)
	if !ok {
		return nil, apperr.ErrPlayerNotOnGrid
	}
	delta, ok := directions[direction]
	if !ok {
		return nil, apperr.Newf(apperr.KindInvalidMove, "unknown direction %q", direction)
	}
	to := from.Add(delta)
	if !world.InBounds(to) {
		return nil, apperr.Newf(apperr.KindInvalidMove, "%s is outside the grid", to)
	}
	if err := checkFree(w, actor.UserID, from, to); err != nil {
		return nil, err
	}

	res := e.arrive(ctx, w, actor.UserID, from, to)
	if err := e.commit(ctx, w, actor.UserID); err != nil {
		return nil, err
	}
	if err := e.settleArrival(ctx, w.ID, actor.UserID, res); err != nil {
		return nil, err
	}
	if res.Balance, err = e.ledger.Balance(ctx, actor.UserID); err != nil {
		return nil, err
	}

	e.metrics.moves.WithLabelValues("adjacent").Inc()
	logging.LogPlayerMove(worldID, actor.UserID, from.X, from.Y, to.X, to.Y, 0)
	return res, nil
}

// MoveToCoordinate перемещение на произвольную клетку. Дальше соседней клетки
// перемещение стоит d×50 шардов, которые списываются после всех проверок.
func (e *Engine) MoveToCoordinate(ctx context.Context, actor Actor, worldID uint64, x, y int) (_ *MoveResult, err error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, "MoveToCoordinate", actor, worldID)
	defer func() { e.finish(span, "move_to_coordinate", start, err) }()

	unlock := e.locks.lock(worldID)
	defer unlock()

	w, err := e.loadVisible(ctx, actor, worldID)
	if err != nil {
		return nil, err
	}

	to := vec.Vec2{X: x, Y: y}
	if !world.InBounds(to) {
		return nil, apperr.Newf(apperr.KindInvalidMove, "%s is outside the grid", to)
	}
	from, ok := w.PositionOf(actor.UserID)
	if !ok {
		return nil, apperr.ErrPlayerNotOnGrid
	}
	if to == from {
		return nil, apperr.ErrAlreadyThere
	}
	if err := checkFree(w, actor.UserID, from, to); err != nil {
		return nil, err
	}

	cost := MoveCost(from.ManhattanTo(to))
	if cost > 0 {
		if _, err := e.ledger.Debit(ctx, actor.UserID, cost, "shard move"); err != nil {
			return nil, err
		}
		e.metrics.debited(cost)
	}

	res := e.arrive(ctx, w, actor.UserID, from, to)
	if err := e.commit(ctx, w, actor.UserID); err != nil {
		e.refund(ctx, actor.UserID, cost)
		return nil, err
	}
	res.Cost = cost
	if err := e.settleArrival(ctx, w.ID, actor.UserID, res); err != nil {
		return nil, err
	}
	if res.Balance, err = e.ledger.Balance(ctx, actor.UserID); err != nil {
		return nil, err
	}

	e.metrics.moves.WithLabelValues("coordinate").Inc()
	logging.LogPlayerMove(worldID, actor.UserID, from.X, from.Y, to.X, to.Y, cost)
	return res, nil
}

// refund возвращает стоимость перемещения, которое не удалось завершить
func (e *Engine) refund(ctx context.Context, userID uint64, cost int64) {
	if cost == 0 {
		return
	}
	if _, err := e.ledger.Credit(ctx, userID, cost, "shard move refund"); err != nil {
		e.logger.Error("❌ Не удалось вернуть %d шардов user %d: %v", cost, userID, err)
	}
}

// checkFree проверки перед уходом с клетки from на клетку to:
// неподтверждённая встреча, активный бой, чужой игрок на клетке назначения
func checkFree(w *world.World, userID uint64, from, to vec.Vec2) error {
	if w.Cell(from).Encounter != "" {
		return apperr.ErrPendingEncounter
	}
	if _, active := w.ActiveBattle(userID); active {
		return apperr.ErrInBattle
	}
	if holder, held := w.Cell(to).Content.Holder(); held && holder != userID {
		return apperr.ErrSquareOccupied
	}
	return nil
}

// arrive переносит игрока с from на to и разрешает содержимое клетки прибытия.
// Меняет только мир; начисления и события выполняет settleArrival после сохранения.
func (e *Engine) arrive(ctx context.Context, w *world.World, userID uint64, from, to vec.Vec2) *MoveResult {
	src, dst := w.Cell(from), w.Cell(to)
	res := &MoveResult{From: from, To: to}

	switch dst.Content.Kind() {
	case world.ContentTreasure:
		res.TreasureFound = true
		dst.Content = world.OccupiedBy(userID)

	case world.ContentEnemy:
		if _, active := w.ActiveBattle(userID); active {
			// Второй бой не создаётся: игрок вытесняет врага
			dst.Content = world.OccupiedBy(userID)
			res.EnemyDisplaced = true
			break
		}
		b := e.startBattle(ctx, w, userID, to)
		dst.Content = world.InBattle(userID)
		dst.Encounter = b.Enemy.Narration
		res.Battle = b.Clone()

	default:
		dst.Content = world.OccupiedBy(userID)
	}

	src.Content = world.Empty()
	src.Encounter = ""
	return res
}

// settleArrival начисляет сокровище и публикует события прибытия сохранённого мира
func (e *Engine) settleArrival(ctx context.Context, worldID, userID uint64, res *MoveResult) error {
	if res.TreasureFound {
		if _, err := e.ledger.Credit(ctx, userID, TreasureReward, "treasure"); err != nil {
			return err
		}
		e.metrics.credited(TreasureReward)
		e.recordProgress(ctx, userID, achievement.TreasureHunter)
		e.emit(ctx, eventbus.TypeTreasureFound, worldID, TreasureEvent{WorldID: worldID, UserID: userID, Pos: res.To, Reward: TreasureReward})
	}
	if b := res.Battle; b != nil {
		e.metrics.battles.WithLabelValues("started").Inc()
		e.emit(ctx, eventbus.TypeBattleStarted, worldID, BattleEvent{WorldID: worldID, UserID: userID, BattleID: b.ID, Pos: b.Pos})
	}
	return nil
}

// startBattle создаёт бой со сгенерированным врагом; нарратив не может сорвать создание боя
func (e *Engine) startBattle(ctx context.Context, w *world.World, userID uint64, pos vec.Vec2) *battle.Battle {
	stats := battle.NewEnemyGenerator(w.Seed).Generate(e.newRand(), pos)
	stats.Narration = e.narration.DescribeEncounter(ctx, stats)

	b := battle.New(w.ID, userID, pos, stats)
	w.Battles[userID] = b
	w.UserState(userID)

	e.logger.Info("⚔️ User %d вступил в бой %s в мире %d на %s (hp=%d atk=%d)", userID, b.ID, w.ID, pos, stats.Health, stats.Attack)
	return b
}
