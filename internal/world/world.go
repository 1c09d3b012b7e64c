package world

import (
	"sort"
	"time"

	"github.com/annel0/shard-realms/internal/battle"
	"github.com/annel0/shard-realms/internal/vec"
)

const (
	// GridSize сторона квадратной сетки мира
	GridSize = 7
	// CellCount количество клеток в мире
	CellCount = GridSize * GridSize
	// DefaultHealth здоровье игрока при первом входе в мир
	DefaultHealth = 100
	// DefaultName имя мира, если игрок его не задал
	DefaultName = "New World"
)

// StartPos стартовая клетка создателя мира
var StartPos = vec.Vec2{X: 0, Y: 0}

// Cell клетка сетки. Encounter непуст, пока игрок не подтвердил встречу.
type Cell struct {
	Pos       vec.Vec2 `json:"pos"`
	Content   Content  `json:"content"`
	Encounter string   `json:"encounter,omitempty"`
}

// UserState состояние игрока в конкретном мире
type UserState struct {
	UserID uint64 `json:"user_id"`
	Health int    `json:"health"`
}

// Damage уменьшает здоровье, не опуская его ниже нуля
func (s *UserState) Damage(amount int) {
	s.Health -= amount
	if s.Health < 0 {
		s.Health = 0
	}
}

// World мир игрока. Мир владеет клетками, боями и состояниями игроков:
// удаление мира освобождает их все (см. Release).
type World struct {
	ID                 uint64    `json:"id"`
	CreatorID          uint64    `json:"creator_id"`
	Name               string    `json:"name"`
	IsPublic           bool      `json:"is_public"`
	IsHosted           bool      `json:"is_hosted"`
	HostAddress        string    `json:"host_address,omitempty"`
	Lore               string    `json:"lore"`
	BackgroundImageURL string    `json:"background_image_url"`
	Seed               int64     `json:"seed"`
	CreatedAt          time.Time `json:"created_at"`

	// Cells упорядочены по строкам: индекс = y*GridSize + x
	Cells   []Cell                    `json:"cells"`
	Battles map[uint64]*battle.Battle `json:"battles"`
	Users   map[uint64]*UserState     `json:"users"`
}

// Index индекс клетки в Cells
func Index(pos vec.Vec2) int {
	return pos.Y*GridSize + pos.X
}

// InBounds проверяет, что позиция внутри сетки
func InBounds(pos vec.Vec2) bool {
	return pos.InSquare(GridSize)
}

// Cell возвращает клетку по позиции или nil вне сетки
func (w *World) Cell(pos vec.Vec2) *Cell {
	if !InBounds(pos) || len(w.Cells) != CellCount {
		return nil
	}
	return &w.Cells[Index(pos)]
}

// PositionOf ищет клетку, которую держит игрок
func (w *World) PositionOf(playerID uint64) (vec.Vec2, bool) {
	for i := range w.Cells {
		if w.Cells[i].Content.HeldBy(playerID) {
			return w.Cells[i].Pos, true
		}
	}
	return vec.Vec2{}, false
}

// HasPlayer проверяет, что игрок стоит на сетке
func (w *World) HasPlayer(playerID uint64) bool {
	_, ok := w.PositionOf(playerID)
	return ok
}

// Players игроки на сетке в порядке клеток
func (w *World) Players() []uint64 {
	var players []uint64
	for i := range w.Cells {
		if id, ok := w.Cells[i].Content.Holder(); ok {
			players = append(players, id)
		}
	}
	return players
}

// EmptyCells позиции пустых клеток
func (w *World) EmptyCells() []vec.Vec2 {
	var out []vec.Vec2
	for i := range w.Cells {
		if w.Cells[i].Content.Kind() == ContentEmpty {
			out = append(out, w.Cells[i].Pos)
		}
	}
	return out
}

// CanView может ли пользователь видеть мир и действовать в нём:
// создатель, игрок на сетке или любой пользователь публичного мира
func (w *World) CanView(userID uint64) bool {
	return w.CreatorID == userID || w.IsPublic || w.HasPlayer(userID)
}

// ActiveBattle активный бой игрока в этом мире
func (w *World) ActiveBattle(playerID uint64) (*battle.Battle, bool) {
	b, ok := w.Battles[playerID]
	if !ok || b.State != battle.StateActive {
		return nil, false
	}
	return b, true
}

// UserState возвращает состояние игрока, создавая его при первом обращении
func (w *World) UserState(userID uint64) *UserState {
	if w.Users == nil {
		w.Users = make(map[uint64]*UserState)
	}
	st, ok := w.Users[userID]
	if !ok {
		st = &UserState{UserID: userID, Health: DefaultHealth}
		w.Users[userID] = st
	}
	return st
}

// RemovePlayer убирает игрока из мира: его бой (клетка боя снова Enemy),
// клетку на сетке и состояние.
func (w *World) RemovePlayer(playerID uint64) {
	if b, ok := w.Battles[playerID]; ok {
		if cell := w.Cell(b.Pos); cell != nil && cell.Content == InBattle(playerID) {
			cell.Content = Enemy()
			cell.Encounter = ""
		}
		delete(w.Battles, playerID)
	}
	for i := range w.Cells {
		if w.Cells[i].Content.HeldBy(playerID) {
			w.Cells[i].Content = Empty()
			w.Cells[i].Encounter = ""
		}
	}
	delete(w.Users, playerID)
}

// Release освобождает всё, чем владеет мир: бои, затем состояния игроков, затем клетки.
// Возвращает количество освобождённых сущностей каждого вида.
func (w *World) Release() (battles, users, cells int) {
	battles = len(w.Battles)
	for id := range w.Battles {
		delete(w.Battles, id)
	}
	users = len(w.Users)
	for id := range w.Users {
		delete(w.Users, id)
	}
	cells = len(w.Cells)
	w.Cells = nil
	return battles, users, cells
}

// Clone глубокая копия мира. Движок изменяет копию и сохраняет её
// только при успехе операции.
func (w *World) Clone() *World {
	c := *w
	c.Cells = make([]Cell, len(w.Cells))
	copy(c.Cells, w.Cells)
	c.Battles = make(map[uint64]*battle.Battle, len(w.Battles))
	for id, b := range w.Battles {
		c.Battles[id] = b.Clone()
	}
	c.Users = make(map[uint64]*UserState, len(w.Users))
	for id, st := range w.Users {
		s := *st
		c.Users[id] = &s
	}
	return &c
}

// Summary краткое описание мира для списков
type Summary struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	CreatorID uint64    `json:"creator_id"`
	IsPublic  bool      `json:"is_public"`
	IsHosted  bool      `json:"is_hosted"`
	Players   int       `json:"players"`
	CreatedAt time.Time `json:"created_at"`
}

// Summarize краткое описание мира
func (w *World) Summarize() Summary {
	return Summary{
		ID:        w.ID,
		Name:      w.Name,
		CreatorID: w.CreatorID,
		IsPublic:  w.IsPublic,
		IsHosted:  w.IsHosted,
		Players:   len(w.Players()),
		CreatedAt: w.CreatedAt,
	}
}

// SortSummaries сортирует по id для стабильной выдачи
func SortSummaries(list []Summary) {
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
}
