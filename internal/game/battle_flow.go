package game

import (
	"context"
	"math/rand"
	"time"

	"github.com/annel0/shard-realms/internal/achievement"
	"github.com/annel0/shard-realms/internal/apperr"
	"github.com/annel0/shard-realms/internal/battle"
	"github.com/annel0/shard-realms/internal/eventbus"
	"github.com/annel0/shard-realms/internal/world"
)

// AttackResult итог хода игрока и, если враг выжил, ответного удара
type AttackResult struct {
	Outcome     battle.State `json:"outcome"`
	Damage      int          `json:"damage"`
	EnemyHealth int          `json:"enemy_health"`
	Reward      int64        `json:"reward,omitempty"`
	Balance     int64        `json:"balance"`

	EnemyDamage    int      `json:"enemy_damage,omitempty"`
	Health         int      `json:"health"`
	Defeated       []uint64 `json:"defeated,omitempty"`
	WorldDestroyed bool     `json:"world_destroyed"`
}

// ResolveResult итог ручного разрешения встречи
type ResolveResult struct {
	Outcome battle.Outcome `json:"outcome"`
	Reward  int64          `json:"reward,omitempty"`
	Balance int64          `json:"balance"`
}

// Attack ход игрока предметом itemID в его активном бою
func (e *Engine) Attack(ctx context.Context, actor Actor, worldID uint64, itemID string) (_ *AttackResult, err error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, "Attack", actor, worldID)
	defer func() { e.finish(span, "attack", start, err) }()

	unlock := e.locks.lock(worldID)
	defer unlock()

	w, err := e.loadVisible(ctx, actor, worldID)
	if err != nil {
		return nil, err
	}
	b, ok := w.ActiveBattle(actor.UserID)
	if !ok {
		return nil, apperr.ErrNoActiveBattle
	}
	if !b.Turn.IsPlayer(actor.UserID) {
		return nil, apperr.ErrNotYourTurn
	}
	item, err := battle.LookupItem(itemID)
	if err != nil {
		return nil, err
	}

	rng := e.newRand()
	hit, err := b.PlayerAttack(rng, actor.UserID, item)
	if err != nil {
		return nil, err
	}
	res := &AttackResult{Outcome: battle.StateActive, Damage: hit.Damage, EnemyHealth: hit.EnemyHealth}

	if hit.Defeated {
		reward := e.winBattle(w, b, rng)
		if err := e.commit(ctx, w, actor.UserID); err != nil {
			return nil, err
		}
		balance, err := e.settleWin(ctx, w.ID, b, reward, false)
		if err != nil {
			return nil, err
		}
		res.Outcome = battle.StateWon
		res.Reward = reward
		res.Balance = balance
		res.Health = w.UserState(actor.UserID).Health
		return res, nil
	}

	if err := e.enemyTurn(ctx, w, b, rng, actor.UserID, res); err != nil {
		return nil, err
	}
	if res.Balance, err = e.ledger.Balance(ctx, actor.UserID); err != nil {
		return nil, err
	}
	return res, nil
}

// winBattle удаляет выигранный бой и считает награду. Клетка боя переходит
// к игроку, если она всё ещё за ним. Награду выплачивает settleWin после сохранения мира.
func (e *Engine) winBattle(w *world.World, b *battle.Battle, rng *rand.Rand) int64 {
	delete(w.Battles, b.PlayerID)
	if cell := w.Cell(b.Pos); cell != nil && cell.Content == world.InBattle(b.PlayerID) {
		cell.Content = world.OccupiedBy(b.PlayerID)
		cell.Encounter = ""
	}
	return battle.Reward(rng, b.Enemy)
}

// settleWin начисляет награду и засчитывает победу
func (e *Engine) settleWin(ctx context.Context, worldID uint64, b *battle.Battle, reward int64, manual bool) (int64, error) {
	balance, err := e.ledger.Credit(ctx, b.PlayerID, reward, "battle reward")
	if err != nil {
		return 0, err
	}
	e.metrics.credited(reward)
	e.recordProgress(ctx, b.PlayerID, achievement.FirstKill, achievement.Slayer)

	result := "won"
	if manual {
		result = "resolved_win"
	}
	e.metrics.battles.WithLabelValues(result).Inc()
	e.emit(ctx, eventbus.TypeBattleWon, worldID, BattleEvent{WorldID: worldID, UserID: b.PlayerID, BattleID: b.ID, Pos: b.Pos, Reward: reward, Manual: manual})
	e.logger.Info("🏅 User %d победил в бою %s мира %d, награда %d", b.PlayerID, b.ID, worldID, reward)
	return balance, nil
}

// enemyTurn ответный удар врага. В одиночном мире бьёт владельца боя,
// в общем мире бьёт всех игроков на сетке. Мир удаляется, когда на сетке никого не осталось.
// События о павших игроках публикуются только после сохранения или удаления мира.
func (e *Engine) enemyTurn(ctx context.Context, w *world.World, b *battle.Battle, rng *rand.Rand, userID uint64, res *AttackResult) error {
	strike := b.EnemyStrike(rng)
	res.EnemyDamage = strike

	targets := w.Players()
	multiplayer := len(targets) > 1
	if !multiplayer {
		targets = []uint64{userID}
	}

	var defeated []uint64
	for _, p := range targets {
		st := w.UserState(p)
		st.Damage(strike)
		if st.Health == 0 {
			defeated = append(defeated, p)
		}
	}
	res.Health = w.UserState(userID).Health
	res.Defeated = defeated

	if err := e.persistStrike(ctx, w, b, userID, multiplayer, defeated, res); err != nil {
		return err
	}

	for _, p := range defeated {
		e.metrics.battles.WithLabelValues("lost").Inc()
		e.emit(ctx, eventbus.TypeBattleLost, w.ID, BattleEvent{WorldID: w.ID, UserID: p, BattleID: b.ID, Pos: b.Pos})
		e.logger.Info("☠️ User %d пал в мире %d", p, w.ID)
	}
	return nil
}

// persistStrike сохраняет мир после удара врага или удаляет его, если играть некому
func (e *Engine) persistStrike(ctx context.Context, w *world.World, b *battle.Battle, userID uint64, multiplayer bool, defeated []uint64, res *AttackResult) error {
	if !multiplayer && len(defeated) > 0 {
		res.Outcome = battle.StateLost
		res.WorldDestroyed = true
		return e.destroy(ctx, w, "player defeated")
	}

	for _, p := range defeated {
		w.RemovePlayer(p)
	}
	if len(w.Players()) == 0 {
		res.Outcome = battle.StateLost
		res.WorldDestroyed = true
		return e.destroy(ctx, w, "all players defeated")
	}

	if contains(defeated, userID) {
		res.Outcome = battle.StateLost
	} else {
		b.ReturnTurn()
	}
	return e.commit(ctx, w, userID)
}

// ResolveEncounter ручное разрешение активного боя исходом "win" или "lose".
// Очерёдность хода не проверяется; поражение не удаляет мир.
func (e *Engine) ResolveEncounter(ctx context.Context, actor Actor, worldID uint64, outcome string) (_ *ResolveResult, err error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, "ResolveEncounter", actor, worldID)
	defer func() { e.finish(span, "resolve_encounter", start, err) }()

	o, err := battle.ParseOutcome(outcome)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.lock(worldID)
	defer unlock()

	w, err := e.loadVisible(ctx, actor, worldID)
	if err != nil {
		return nil, err
	}
	b, ok := w.ActiveBattle(actor.UserID)
	if !ok {
		return nil, apperr.ErrNoActiveBattle
	}

	res := &ResolveResult{Outcome: o}
	switch o {
	case battle.OutcomeWin:
		res.Reward = e.winBattle(w, b, e.newRand())
	case battle.OutcomeLose:
		delete(w.Battles, actor.UserID)
		if cell := w.Cell(b.Pos); cell != nil && cell.Content == world.InBattle(actor.UserID) {
			cell.Content = world.OccupiedBy(actor.UserID)
		}
	}

	if err := e.commit(ctx, w, actor.UserID); err != nil {
		return nil, err
	}

	if o == battle.OutcomeWin {
		if res.Balance, err = e.settleWin(ctx, w.ID, b, res.Reward, true); err != nil {
			return nil, err
		}
		return res, nil
	}

	e.metrics.battles.WithLabelValues("resolved_lose").Inc()
	e.emit(ctx, eventbus.TypeBattleLost, w.ID, BattleEvent{WorldID: w.ID, UserID: actor.UserID, BattleID: b.ID, Pos: b.Pos, Manual: true})
	if res.Balance, err = e.ledger.Balance(ctx, actor.UserID); err != nil {
		return nil, err
	}
	return res, nil
}

// AcknowledgeEncounter снимает текст встречи с клетки актора
func (e *Engine) AcknowledgeEncounter(ctx context.Context, actor Actor, worldID uint64) (err error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, "AcknowledgeEncounter", actor, worldID)
	defer func() { e.finish(span, "acknowledge_encounter", start, err) }()

	unlock := e.locks.lock(worldID)
	defer unlock()

	w, err := e.loadVisible(ctx, actor, worldID)
	if err != nil {
		return err
	}
	pos, ok := w.PositionOf(actor.UserID)
	if !ok {
		return apperr.ErrPlayerNotOnGrid
	}
	w.Cell(pos).Encounter = ""
	return e.commit(ctx, w, actor.UserID)
}

func contains(ids []uint64, id uint64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
