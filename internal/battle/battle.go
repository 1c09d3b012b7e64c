// Package battle описывает пошаговый бой игрока с врагом на клетке мира.
package battle

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/annel0/shard-realms/internal/apperr"
	"github.com/annel0/shard-realms/internal/vec"
	"github.com/google/uuid"
)

// State состояние боя
type State string

const (
	StateActive State = "active"
	StateWon    State = "won"
	StateLost   State = "lost"
)

// Outcome исход ручного разрешения встречи
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLose Outcome = "lose"
)

// ParseOutcome разбирает "win"/"lose"
func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(s) {
	case OutcomeWin, OutcomeLose:
		return Outcome(s), nil
	default:
		return "", apperr.Newf(apperr.KindInvalidArgument, "unknown outcome %q", s)
	}
}

// Turn чей ход: конкретного игрока или врага
type Turn struct {
	enemy    bool
	playerID uint64
}

// PlayerTurn ход игрока playerID
func PlayerTurn(playerID uint64) Turn { return Turn{playerID: playerID} }

// EnemyTurn ход врага
func EnemyTurn() Turn { return Turn{enemy: true} }

// IsEnemy true если ходит враг
func (t Turn) IsEnemy() bool { return t.enemy }

// IsPlayer true если ходит указанный игрок
func (t Turn) IsPlayer(playerID uint64) bool { return !t.enemy && t.playerID == playerID }

func (t Turn) String() string {
	if t.enemy {
		return "enemy"
	}
	return fmt.Sprintf("player:%d", t.playerID)
}

type turnJSON struct {
	Holder   string `json:"holder"`
	PlayerID uint64 `json:"player_id,omitempty"`
}

func (t Turn) MarshalJSON() ([]byte, error) {
	if t.enemy {
		return json.Marshal(turnJSON{Holder: "enemy"})
	}
	return json.Marshal(turnJSON{Holder: "player", PlayerID: t.playerID})
}

func (t *Turn) UnmarshalJSON(data []byte) error {
	var raw turnJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Holder {
	case "enemy":
		*t = EnemyTurn()
	case "player":
		*t = PlayerTurn(raw.PlayerID)
	default:
		return fmt.Errorf("unknown turn holder %q", raw.Holder)
	}
	return nil
}

// EnemyStats параметры врага
type EnemyStats struct {
	Health    int    `json:"health"`
	MaxHealth int    `json:"max_health"`
	Attack    int    `json:"attack"`
	Defense   int    `json:"defense"`
	Narration string `json:"narration"`
}

// Battle активный бой игрока на клетке мира.
// Мир владеет боем; WorldID и Pos лишь ссылки.
type Battle struct {
	ID        string     `json:"id"`
	WorldID   uint64     `json:"world_id"`
	Pos       vec.Vec2   `json:"pos"`
	PlayerID  uint64     `json:"player_id"`
	Enemy     EnemyStats `json:"enemy"`
	State     State      `json:"state"`
	Turn      Turn       `json:"turn"`
	CreatedAt time.Time  `json:"created_at"`
}

// New создаёт активный бой, первым ходит игрок
func New(worldID, playerID uint64, pos vec.Vec2, enemy EnemyStats) *Battle {
	return &Battle{
		ID:        uuid.NewString(),
		WorldID:   worldID,
		Pos:       pos,
		PlayerID:  playerID,
		Enemy:     enemy,
		State:     StateActive,
		Turn:      PlayerTurn(playerID),
		CreatedAt: time.Now(),
	}
}

// Clone копия боя
func (b *Battle) Clone() *Battle {
	c := *b
	return &c
}

// AttackResult итог удара игрока
type AttackResult struct {
	Damage      int
	EnemyHealth int
	Defeated    bool
}

// PlayerAttack применяет удар игрока предметом item.
// Вне своего хода возвращает ErrNotYourTurn и ничего не меняет.
// Если враг выжил, ход переходит врагу.
func (b *Battle) PlayerAttack(rng *rand.Rand, playerID uint64, item Item) (AttackResult, error) {
	if b.State != StateActive {
		return AttackResult{}, apperr.ErrNoActiveBattle
	}
	if !b.Turn.IsPlayer(playerID) {
		return AttackResult{}, apperr.ErrNotYourTurn
	}

	damage := RollAround(rng, item.Damage)
	b.Enemy.Health = floorZero(b.Enemy.Health - damage)

	if b.Enemy.Health == 0 {
		b.State = StateWon
		return AttackResult{Damage: damage, Defeated: true}, nil
	}

	b.Turn = EnemyTurn()
	return AttackResult{Damage: damage, EnemyHealth: b.Enemy.Health}, nil
}

// EnemyStrike урон ответного удара врага; применяет его вызывающий
func (b *Battle) EnemyStrike(rng *rand.Rand) int {
	return RollAround(rng, b.Enemy.Attack)
}

// ReturnTurn возвращает ход владельцу боя
func (b *Battle) ReturnTurn() {
	b.Turn = PlayerTurn(b.PlayerID)
}

// Reward награда за победу над врагом: целое из [base, ⌊1.5·base⌋],
// base = ⌊maxHealth/10⌋ + ⌊attack/2⌋
func Reward(rng *rand.Rand, enemy EnemyStats) int64 {
	base := enemy.MaxHealth/10 + enemy.Attack/2
	upper := base * 3 / 2
	if upper <= base {
		return int64(base)
	}
	return int64(base + rng.Intn(upper-base+1))
}

// RollAround равномерное целое из [value-5, value+5], не меньше 0
func RollAround(rng *rand.Rand, value int) int {
	return floorZero(value - 5 + rng.Intn(11))
}

func floorZero(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
