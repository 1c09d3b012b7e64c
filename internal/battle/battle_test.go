package battle

import (
	"encoding/json"
	"errors"
	"math/rand"
	"testing"

	"github.com/annel0/shard-realms/internal/apperr"
	"github.com/annel0/shard-realms/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBattle(health int) *Battle {
	return New(1, 7, vec.Vec2{X: 2, Y: 3}, EnemyStats{Health: health, MaxHealth: health, Attack: 20, Defense: 5})
}

func TestNewBattleStartsWithPlayerTurn(t *testing.T) {
	b := newTestBattle(150)

	assert.NotEmpty(t, b.ID)
	assert.Equal(t, StateActive, b.State)
	assert.True(t, b.Turn.IsPlayer(7))
	assert.False(t, b.Turn.IsEnemy())
}

func TestAttackOutOfTurnChangesNothing(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	b := newTestBattle(150)
	b.Turn = EnemyTurn()

	_, err := b.PlayerAttack(rng, 7, Item{ID: "x", Damage: 50})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrNotYourTurn))
	assert.Equal(t, 150, b.Enemy.Health, "Здоровье врага не должно измениться")
	assert.True(t, b.Turn.IsEnemy(), "Ход не должен измениться")

	// Чужой игрок тоже не может бить в чужом бою
	b.Turn = PlayerTurn(7)
	_, err = b.PlayerAttack(rng, 8, Item{ID: "x", Damage: 50})
	assert.True(t, errors.Is(err, apperr.ErrNotYourTurn))
}

func TestAttackDamageWithinRange(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for i := 0; i < 200; i++ {
		b := newTestBattle(1000)
		res, err := b.PlayerAttack(rng, 7, Item{Damage: 80})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.Damage, 75)
		assert.LessOrEqual(t, res.Damage, 85)
		assert.Equal(t, 1000-res.Damage, b.Enemy.Health)
		assert.True(t, b.Turn.IsEnemy(), "После выжившего врага ход переходит врагу")
	}
}

func TestAttackKillsEnemy(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	b := newTestBattle(10)

	res, err := b.PlayerAttack(rng, 7, Item{Damage: 450})
	require.NoError(t, err)
	assert.True(t, res.Defeated)
	assert.Equal(t, 0, b.Enemy.Health)
	assert.Equal(t, StateWon, b.State)
}

func TestRollAroundFloorsAtZero(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 100; i++ {
		v := RollAround(rng, 2)
		assert.GreaterOrEqual(t, v, 0)
		assert.LessOrEqual(t, v, 7)
	}
}

func TestRewardRange(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	enemy := EnemyStats{MaxHealth: 200, Attack: 21}
	base := int64(200/10 + 21/2) // 30
	for i := 0; i < 200; i++ {
		r := Reward(rng, enemy)
		assert.GreaterOrEqual(t, r, base)
		assert.LessOrEqual(t, r, base*3/2)
	}
	assert.Equal(t, int64(0), Reward(rng, EnemyStats{}))
}

func TestTurnJSON(t *testing.T) {
	data, err := json.Marshal(PlayerTurn(42))
	require.NoError(t, err)
	assert.JSONEq(t, `{"holder":"player","player_id":42}`, string(data))

	var turn Turn
	require.NoError(t, json.Unmarshal([]byte(`{"holder":"enemy"}`), &turn))
	assert.True(t, turn.IsEnemy())
	assert.Error(t, json.Unmarshal([]byte(`{"holder":"ghost"}`), &turn))
}

func TestLookupItem(t *testing.T) {
	item, err := LookupItem("thunder_hammer")
	require.NoError(t, err)
	assert.Equal(t, 450, item.Damage)

	_, err = LookupItem("banana")
	assert.True(t, errors.Is(err, apperr.ErrInvalidItem))

	items := Items()
	require.Len(t, items, 6)
	assert.Equal(t, "basic_dagger", items[0].ID)
	assert.Equal(t, "thunder_hammer", items[len(items)-1].ID)
}

func TestEnemyGeneratorBounds(t *testing.T) {
	gen := NewEnemyGenerator(2024)
	rng := rand.New(rand.NewSource(1))
	for y := 0; y < 7; y++ {
		for x := 0; x < 7; x++ {
			stats := gen.Generate(rng, vec.Vec2{X: x, Y: y})
			assert.Equal(t, stats.Health, stats.MaxHealth)
			assert.GreaterOrEqual(t, stats.Health, minEnemyHealth)
			assert.LessOrEqual(t, stats.Health, maxEnemyHealth+10)
			assert.GreaterOrEqual(t, stats.Attack, minEnemyAttack)
			assert.LessOrEqual(t, stats.Attack, maxEnemyAttack+2)
		}
	}
}

func TestBasicDaggerNotForSale(t *testing.T) {
	item, err := LookupItem("basic_dagger")
	require.NoError(t, err)
	assert.False(t, item.ForSale, "Базовый кинжал есть у всех и не продаётся")

	for _, it := range Items() {
		if it.ID != "basic_dagger" {
			assert.True(t, it.ForSale, it.ID)
			assert.Positive(t, it.Price, it.ID)
		}
	}
}
