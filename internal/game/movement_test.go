package game

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/annel0/shard-realms/internal/achievement"
	"github.com/annel0/shard-realms/internal/apperr"
	"github.com/annel0/shard-realms/internal/battle"
	"github.com/annel0/shard-realms/internal/narration"
	"github.com/annel0/shard-realms/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func progressOf(t *testing.T, h *harness, a Actor, name string) int {
	t.Helper()
	list, err := h.tracker.List(context.Background(), a.UserID)
	require.NoError(t, err)
	for _, s := range list {
		if s.Name == name {
			return s.Current
		}
	}
	t.Fatalf("достижение %q не найдено", name)
	return 0
}

func TestMoveAdjacentOffGridRejected(t *testing.T) {
	h := newStaticHarness(t)
	w := h.emptyWorld(t, false)

	_, err := h.engine.MoveAdjacent(context.Background(), alice, w.ID, "up")
	assert.True(t, errors.Is(err, apperr.ErrInvalidMove), "Выход за сетку запрещён")

	stored := h.world(t, w.ID)
	pos, ok := stored.PositionOf(alice.UserID)
	require.True(t, ok)
	assert.Equal(t, world.StartPos, pos, "Позиция не должна измениться")
	assert.Equal(t, int64(0), h.balance(t, alice))
}

func TestMoveAdjacentUnknownDirection(t *testing.T) {
	h := newStaticHarness(t)
	w := h.emptyWorld(t, false)

	_, err := h.engine.MoveAdjacent(context.Background(), alice, w.ID, "sideways")
	assert.True(t, errors.Is(err, apperr.ErrInvalidMove))
}

func TestMoveAdjacentPlayerNotOnGrid(t *testing.T) {
	h := newStaticHarness(t)
	w := h.emptyWorld(t, true)

	_, err := h.engine.MoveAdjacent(context.Background(), bob, w.ID, "down")
	assert.True(t, errors.Is(err, apperr.ErrPlayerNotOnGrid))
}

func TestMoveAdjacentTreasure(t *testing.T) {
	h := newStaticHarness(t)
	ctx := context.Background()
	w := h.emptyWorld(t, false)
	h.edit(t, w.ID, func(w *world.World) {
		w.Cell(at(1, 0)).Content = world.Treasure()
	})

	res, err := h.engine.MoveAdjacent(ctx, alice, w.ID, "right")
	require.NoError(t, err)
	assert.True(t, res.TreasureFound)
	assert.Equal(t, int64(10), res.Balance)
	assert.Equal(t, int64(0), res.Cost)

	stored := h.world(t, w.ID)
	assert.Equal(t, world.Empty(), stored.Cell(at(0, 0)).Content, "Исходная клетка освобождается")
	assert.Equal(t, world.OccupiedBy(alice.UserID), stored.Cell(at(1, 0)).Content)
	assert.Equal(t, 1, progressOf(t, h, alice, achievement.TreasureHunter))

	// Сокровище подбирается один раз
	_, err = h.engine.MoveAdjacent(ctx, alice, w.ID, "left")
	require.NoError(t, err)
	res, err = h.engine.MoveAdjacent(ctx, alice, w.ID, "right")
	require.NoError(t, err)
	assert.False(t, res.TreasureFound)
	assert.Equal(t, int64(10), h.balance(t, alice))
	assert.Equal(t, 1, progressOf(t, h, alice, achievement.TreasureHunter))
}

func TestMoveAdjacentOccupiedByOther(t *testing.T) {
	h := newStaticHarness(t)
	w := h.emptyWorld(t, true)
	h.edit(t, w.ID, func(w *world.World) {
		w.Cell(at(0, 1)).Content = world.OccupiedBy(bob.UserID)
		w.UserState(bob.UserID)
	})

	_, err := h.engine.MoveAdjacent(context.Background(), alice, w.ID, "down")
	assert.True(t, errors.Is(err, apperr.ErrSquareOccupied))
}

func TestMoveAdjacentEnemyStartsSingleBattle(t *testing.T) {
	h := newStaticHarness(t)
	ctx := context.Background()
	w := h.emptyWorld(t, false)
	h.edit(t, w.ID, func(w *world.World) {
		w.Cell(at(1, 0)).Content = world.Enemy()
		w.Cell(at(2, 0)).Content = world.Enemy()
	})

	res, err := h.engine.MoveAdjacent(ctx, alice, w.ID, "right")
	require.NoError(t, err)
	require.NotNil(t, res.Battle, "Встреча с врагом начинает бой")
	assert.True(t, res.Battle.Turn.IsPlayer(alice.UserID), "Первым ходит игрок")
	assert.Equal(t, battle.StateActive, res.Battle.State)

	stored := h.world(t, w.ID)
	cell := stored.Cell(at(1, 0))
	assert.Equal(t, world.InBattle(alice.UserID), cell.Content)
	assert.NotEmpty(t, cell.Encounter)
	assert.Len(t, stored.Battles, 1)
}

func TestMoveAdjacentCannotLeaveBattle(t *testing.T) {
	h := newStaticHarness(t)
	ctx := context.Background()
	w := h.emptyWorld(t, false)
	h.edit(t, w.ID, func(w *world.World) {
		w.Cell(at(1, 0)).Content = world.Enemy()
		w.Cell(at(2, 0)).Content = world.Enemy()
	})

	_, err := h.engine.MoveAdjacent(ctx, alice, w.ID, "right")
	require.NoError(t, err)

	_, err = h.engine.MoveAdjacent(ctx, alice, w.ID, "down")
	assert.True(t, errors.Is(err, apperr.ErrPendingEncounter), "Сначала нужно подтвердить встречу")

	require.NoError(t, h.engine.AcknowledgeEncounter(ctx, alice, w.ID))
	_, err = h.engine.MoveAdjacent(ctx, alice, w.ID, "down")
	assert.True(t, errors.Is(err, apperr.ErrInBattle), "С клетки боя не уйти")
	_, err = h.engine.MoveAdjacent(ctx, alice, w.ID, "right")
	assert.True(t, errors.Is(err, apperr.ErrInBattle))

	stored := h.world(t, w.ID)
	assert.Equal(t, world.InBattle(alice.UserID), stored.Cell(at(1, 0)).Content, "Враг остаётся на клетке боя")
	assert.Equal(t, world.Enemy(), stored.Cell(at(2, 0)).Content)
	assert.Len(t, stored.Battles, 1)
}

func TestArriveDisplacesEnemyDuringBattle(t *testing.T) {
	h := newStaticHarness(t)
	w := battleWorld(t, h, false, battle.EnemyStats{Health: 100, MaxHealth: 100, Attack: 10})

	stored := h.world(t, w.ID)
	stored.Cell(at(1, 1)).Content = world.Enemy()
	res := h.engine.arrive(context.Background(), stored, alice.UserID, at(1, 0), at(1, 1))

	assert.True(t, res.EnemyDisplaced)
	assert.Nil(t, res.Battle)
	assert.Len(t, stored.Battles, 1, "У игрока не бывает двух боёв")
	assert.Equal(t, world.OccupiedBy(alice.UserID), stored.Cell(at(1, 1)).Content)
}

func TestFailedSaveDoesNotPayTreasure(t *testing.T) {
	h := newStaticHarness(t)
	ctx := context.Background()
	w := h.emptyWorld(t, false)
	h.edit(t, w.ID, func(w *world.World) {
		w.Cell(at(1, 0)).Content = world.Treasure()
		w.Cell(at(2, 0)).Content = world.Treasure()
	})

	h.worlds.failSaves.Store(true)
	for i := 0; i < 3; i++ {
		_, err := h.engine.MoveAdjacent(ctx, alice, w.ID, "right")
		require.Error(t, err)
	}
	assert.Equal(t, int64(0), h.balance(t, alice), "Несохранённое сокровище не оплачивается")
	assert.Equal(t, world.Treasure(), h.world(t, w.ID).Cell(at(1, 0)).Content)
	assert.Equal(t, 0, progressOf(t, h, alice, achievement.TreasureHunter))

	h.fund(t, alice, 100)
	_, err := h.engine.MoveToCoordinate(ctx, alice, w.ID, 2, 0)
	require.Error(t, err)
	assert.Equal(t, int64(100), h.balance(t, alice), "Стоимость возвращена, сокровище не начислено")

	h.worlds.failSaves.Store(false)
	res, err := h.engine.MoveAdjacent(ctx, alice, w.ID, "right")
	require.NoError(t, err)
	assert.True(t, res.TreasureFound)
	assert.Equal(t, int64(110), res.Balance)
	assert.Equal(t, 1, progressOf(t, h, alice, achievement.TreasureHunter))
}

func TestMoveAdjacentNarrationFailureStillStartsBattle(t *testing.T) {
	h := newHarness(t, failingNarrator{}, failingIllustrator{})
	w := h.emptyWorld(t, false)
	h.edit(t, w.ID, func(w *world.World) {
		w.Cell(at(1, 0)).Content = world.Enemy()
	})

	res, err := h.engine.MoveAdjacent(context.Background(), alice, w.ID, "right")
	require.NoError(t, err)
	require.NotNil(t, res.Battle)
	assert.Equal(t, narration.FallbackText, res.Battle.Enemy.Narration)
	assert.Equal(t, narration.FallbackText, h.world(t, w.ID).Cell(at(1, 0)).Encounter)
}

func TestMoveToCoordinateValidationOrder(t *testing.T) {
	h := newStaticHarness(t)
	ctx := context.Background()
	w := h.emptyWorld(t, true)

	_, err := h.engine.MoveToCoordinate(ctx, alice, w.ID, world.GridSize, 0)
	assert.True(t, errors.Is(err, apperr.ErrInvalidMove), "Клетка вне сетки")

	_, err = h.engine.MoveToCoordinate(ctx, bob, w.ID, 3, 3)
	assert.True(t, errors.Is(err, apperr.ErrPlayerNotOnGrid))

	_, err = h.engine.MoveToCoordinate(ctx, alice, w.ID, 0, 0)
	assert.True(t, errors.Is(err, apperr.ErrAlreadyThere))

	h.edit(t, w.ID, func(w *world.World) {
		w.Cell(at(0, 0)).Encounter = "A goblin snarls."
		w.Battles[alice.UserID] = battle.New(w.ID, alice.UserID, at(0, 0), battle.EnemyStats{Health: 100, MaxHealth: 100, Attack: 10})
	})
	_, err = h.engine.MoveToCoordinate(ctx, alice, w.ID, 3, 3)
	assert.True(t, errors.Is(err, apperr.ErrPendingEncounter), "Неподтверждённая встреча проверяется раньше боя")

	h.edit(t, w.ID, func(w *world.World) {
		w.Cell(at(0, 0)).Encounter = ""
	})
	_, err = h.engine.MoveToCoordinate(ctx, alice, w.ID, 3, 3)
	assert.True(t, errors.Is(err, apperr.ErrInBattle))

	h.edit(t, w.ID, func(w *world.World) {
		delete(w.Battles, alice.UserID)
		w.Cell(at(3, 3)).Content = world.OccupiedBy(bob.UserID)
		w.UserState(bob.UserID)
	})
	_, err = h.engine.MoveToCoordinate(ctx, alice, w.ID, 3, 3)
	assert.True(t, errors.Is(err, apperr.ErrSquareOccupied))

	_, err = h.engine.MoveToCoordinate(ctx, alice, w.ID, 2, 0)
	assert.True(t, errors.Is(err, apperr.ErrInsufficientFunds))

	stored := h.world(t, w.ID)
	pos, _ := stored.PositionOf(alice.UserID)
	assert.Equal(t, world.StartPos, pos, "Отклонённые перемещения ничего не меняют")
	assert.Equal(t, int64(0), h.balance(t, alice))
}

func TestMoveToCoordinateChargesDistance(t *testing.T) {
	h := newStaticHarness(t)
	ctx := context.Background()
	w := h.emptyWorld(t, false)
	h.fund(t, alice, 150)

	res, err := h.engine.MoveToCoordinate(ctx, alice, w.ID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.Cost)
	assert.Equal(t, int64(50), res.Balance)
	assert.Equal(t, at(2, 0), res.To)

	res, err = h.engine.MoveToCoordinate(ctx, alice, w.ID, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Cost, "Соседняя клетка бесплатна")
	assert.Equal(t, int64(50), h.balance(t, alice))

	stored := h.world(t, w.ID)
	assert.Equal(t, world.Empty(), stored.Cell(at(0, 0)).Content)
	assert.Equal(t, world.Empty(), stored.Cell(at(2, 0)).Content)
	assert.Equal(t, world.OccupiedBy(alice.UserID), stored.Cell(at(2, 1)).Content)
}

func TestMoveCost(t *testing.T) {
	assert.Equal(t, int64(0), MoveCost(0))
	assert.Equal(t, int64(0), MoveCost(1))
	assert.Equal(t, int64(100), MoveCost(2))
	assert.Equal(t, int64(600), MoveCost(12))
}

func TestConcurrentMovesToSameSquare(t *testing.T) {
	h := newStaticHarness(t)
	ctx := context.Background()
	w := h.emptyWorld(t, true)
	h.edit(t, w.ID, func(w *world.World) {
		w.Cell(at(2, 1)).Content = world.OccupiedBy(bob.UserID)
		w.UserState(bob.UserID)
	})

	h.fund(t, alice, 100)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, a := range []Actor{alice, bob} {
		wg.Add(1)
		go func(i int, a Actor) {
			defer wg.Done()
			// alice с (0,0) и bob с (2,1) идут на (1,1): alice за 2 клетки, bob за 1
			if a == alice {
				_, errs[i] = h.engine.MoveToCoordinate(ctx, a, w.ID, 1, 1)
				return
			}
			_, errs[i] = h.engine.MoveAdjacent(ctx, a, w.ID, "left")
		}(i, a)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, apperr.ErrSquareOccupied), "Проигравший получает SquareOccupied: %v", err)
	}
	assert.Equal(t, 1, succeeded, "Клетку занимает ровно один игрок")
	assert.Equal(t, 0, h.engine.locks.size())

	stored := h.world(t, w.ID)
	holder, ok := stored.Cell(at(1, 1)).Content.Holder()
	require.True(t, ok)
	assert.Contains(t, []uint64{alice.UserID, bob.UserID}, holder)
}

func TestShardMoveThreeSquares(t *testing.T) {
	h := newStaticHarness(t)
	w := h.emptyWorld(t, false)
	h.fund(t, alice, 200)

	res, err := h.engine.MoveToCoordinate(context.Background(), alice, w.ID, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(150), res.Cost)
	assert.Equal(t, int64(50), res.Balance)

	pos, ok := h.world(t, w.ID).PositionOf(alice.UserID)
	require.True(t, ok)
	assert.Equal(t, at(3, 0), pos)
}
