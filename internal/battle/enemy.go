package battle

import (
	"math/rand"

	"github.com/annel0/shard-realms/internal/util"
	"github.com/annel0/shard-realms/internal/vec"
)

// Границы параметров врага; опасность клетки интерполирует между ними
const (
	minEnemyHealth = 100
	maxEnemyHealth = 300
	minEnemyAttack = 10
	maxEnemyAttack = 30
	minEnemyDef    = 5
	maxEnemyDef    = 15
)

// EnemyGenerator выдаёт параметры врага по "полю опасности" мира.
// Клетки с высоким шумом порождают более сильных врагов.
type EnemyGenerator struct {
	danger *util.NoiseField
}

// NewEnemyGenerator создаёт генератор для мира с сидом seed
func NewEnemyGenerator(seed int64) *EnemyGenerator {
	return &EnemyGenerator{danger: util.NewNoiseField(seed, 0.35)}
}

// Danger опасность клетки (от 0 до 1)
func (g *EnemyGenerator) Danger(pos vec.Vec2) float64 {
	return g.danger.At(pos.X, pos.Y)
}

// Generate создаёт параметры врага для клетки pos без нарратива
func (g *EnemyGenerator) Generate(rng *rand.Rand, pos vec.Vec2) EnemyStats {
	danger := g.Danger(pos)

	health := lerp(minEnemyHealth, maxEnemyHealth, danger) + rng.Intn(21) - 10
	if health < minEnemyHealth {
		health = minEnemyHealth
	}
	attack := lerp(minEnemyAttack, maxEnemyAttack, danger) + rng.Intn(5) - 2
	if attack < minEnemyAttack {
		attack = minEnemyAttack
	}

	return EnemyStats{
		Health:    health,
		MaxHealth: health,
		Attack:    attack,
		Defense:   lerp(minEnemyDef, maxEnemyDef, danger),
	}
}

func lerp(lo, hi int, t float64) int {
	return lo + int(float64(hi-lo)*t)
}
