package world

import (
	"math/rand"
	"time"

	"github.com/annel0/shard-realms/internal/apperr"
	"github.com/annel0/shard-realms/internal/battle"
	"github.com/annel0/shard-realms/internal/vec"
)

// Количество сокровищ и врагов в новом мире
const (
	TreasureCount = 5
	EnemyCount    = 5
)

// WorldGenerator раскладывает содержимое клеток нового мира.
// Случайность берётся из переданного rng, поэтому один сид даёт одну раскладку.
type WorldGenerator struct {
	rng *rand.Rand
}

// NewWorldGenerator создаёт генератор поверх rng
func NewWorldGenerator(rng *rand.Rand) *WorldGenerator {
	return &WorldGenerator{rng: rng}
}

// Layout возвращает 49 клеток: создатель на StartPos, 5 сокровищ, 5 врагов, остальное пусто
func (wg *WorldGenerator) Layout(creatorID uint64) ([]Cell, error) {
	cells := make([]Cell, CellCount)
	free := make([]vec.Vec2, 0, CellCount-1)
	for y := 0; y < GridSize; y++ {
		for x := 0; x < GridSize; x++ {
			pos := vec.Vec2{X: x, Y: y}
			cells[Index(pos)] = Cell{Pos: pos, Content: Empty()}
			if pos != StartPos {
				free = append(free, pos)
			}
		}
	}

	if len(free) < TreasureCount+EnemyCount {
		return nil, apperr.ErrWorldFull
	}

	// Выборка без возвращения: первые TreasureCount позиций перестановки - сокровища,
	// следующие EnemyCount - враги
	order := wg.rng.Perm(len(free))
	for i, idx := range order[:TreasureCount+EnemyCount] {
		content := Treasure()
		if i >= TreasureCount {
			content = Enemy()
		}
		cells[Index(free[idx])].Content = content
	}

	cells[Index(StartPos)].Content = OccupiedBy(creatorID)
	return cells, nil
}

// Generate создаёт мир id для создателя creatorID со свежей раскладкой
func (wg *WorldGenerator) Generate(id, creatorID uint64, name string, isPublic bool, seed int64) (*World, error) {
	cells, err := wg.Layout(creatorID)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = DefaultName
	}

	w := &World{
		ID:        id,
		CreatorID: creatorID,
		Name:      name,
		IsPublic:  isPublic,
		Seed:      seed,
		CreatedAt: time.Now(),
		Cells:     cells,
		Battles:   make(map[uint64]*battle.Battle),
		Users:     make(map[uint64]*UserState),
	}
	w.UserState(creatorID)
	return w, nil
}
