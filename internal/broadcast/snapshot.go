// Package broadcast рассылает снапшоты сетки мира всем его зрителям.
package broadcast

import (
	"time"

	"github.com/annel0/shard-realms/internal/world"
)

// CellView клетка в снапшоте. Mine считается с точки зрения зрителя.
type CellView struct {
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Content   string `json:"content"`
	PlayerID  uint64 `json:"player_id,omitempty"`
	Mine      bool   `json:"mine"`
	Encounter string `json:"encounter,omitempty"`
}

// GridSnapshot сериализуемый вид мира: 49 клеток по строкам, затем по столбцам
type GridSnapshot struct {
	WorldID            uint64     `json:"world_id"`
	Name               string     `json:"name"`
	CreatorID          uint64     `json:"creator_id"`
	IsPublic           bool       `json:"is_public"`
	IsHosted           bool       `json:"is_hosted"`
	HostAddress        string     `json:"host_address,omitempty"`
	Lore               string     `json:"lore"`
	BackgroundImageURL string     `json:"background_image_url"`
	ViewerID           uint64     `json:"viewer_id"`
	Cells              []CellView `json:"cells"`
	GeneratedAt        time.Time  `json:"generated_at"`
}

// BuildSnapshot снимает сетку мира для зрителя viewer (0: без зрителя)
func BuildSnapshot(w *world.World, viewer uint64) GridSnapshot {
	s := GridSnapshot{
		WorldID:            w.ID,
		Name:               w.Name,
		CreatorID:          w.CreatorID,
		IsPublic:           w.IsPublic,
		IsHosted:           w.IsHosted,
		HostAddress:        w.HostAddress,
		Lore:               w.Lore,
		BackgroundImageURL: w.BackgroundImageURL,
		Cells:              make([]CellView, 0, world.CellCount),
		GeneratedAt:        time.Now().UTC(),
	}
	// Cells уже упорядочены по индексу y*GridSize+x
	for _, c := range w.Cells {
		v := CellView{X: c.Pos.X, Y: c.Pos.Y, Content: c.Content.Kind().String(), Encounter: c.Encounter}
		if holder, ok := c.Content.Holder(); ok {
			v.PlayerID = holder
		}
		s.Cells = append(s.Cells, v)
	}
	return s.ForViewer(viewer)
}

// ForViewer копия снапшота с пометками Mine для другого зрителя
func (s GridSnapshot) ForViewer(viewer uint64) GridSnapshot {
	out := s
	out.ViewerID = viewer
	out.Cells = make([]CellView, len(s.Cells))
	for i, c := range s.Cells {
		c.Mine = viewer != 0 && c.PlayerID == viewer
		out.Cells[i] = c
	}
	return out
}
