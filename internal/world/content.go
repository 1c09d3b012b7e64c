package world

import (
	"fmt"
	"strconv"
	"strings"
)

// ContentKind тип содержимого клетки
type ContentKind uint8

const (
	ContentEmpty ContentKind = iota
	ContentTreasure
	ContentEnemy
	ContentInBattle
	ContentOccupied
)

func (k ContentKind) String() string {
	switch k {
	case ContentEmpty:
		return "empty"
	case ContentTreasure:
		return "treasure"
	case ContentEnemy:
		return "enemy"
	case ContentInBattle:
		return "in_battle"
	case ContentOccupied:
		return "occupied"
	default:
		return "unknown"
	}
}

// Content закрытый вариант содержимого клетки.
// PlayerID значим только для ContentInBattle и ContentOccupied.
// Значения создаются только конструкторами ниже.
type Content struct {
	kind     ContentKind
	playerID uint64
}

func Empty() Content { return Content{kind: ContentEmpty} }
func Treasure() Content { return Content{kind: ContentTreasure} }
func Enemy() Content { return Content{kind: ContentEnemy} }
func InBattle(playerID uint64) Content { return Content{kind: ContentInBattle, playerID: playerID} }
func OccupiedBy(playerID uint64) Content { return Content{kind: ContentOccupied, playerID: playerID} }

// Kind возвращает тип содержимого
func (c Content) Kind() ContentKind { return c.kind }

// Holder возвращает игрока, стоящего на клетке (в бою или просто занявшего её)
func (c Content) Holder() (uint64, bool) {
	switch c.kind {
	case ContentInBattle, ContentOccupied:
		return c.playerID, true
	default:
		return 0, false
	}
}

// HeldBy проверяет, что клетку держит указанный игрок
func (c Content) HeldBy(playerID uint64) bool {
	holder, ok := c.Holder()
	return ok && holder == playerID
}

// String: "empty", "treasure", "enemy", "in_battle:<id>", "occupied:<id>"
func (c Content) String() string {
	if holder, ok := c.Holder(); ok {
		return fmt.Sprintf("%s:%d", c.kind, holder)
	}
	return c.kind.String()
}

// ParseContent обратная операция к String
func ParseContent(s string) (Content, error) {
	name, rawID, hasID := strings.Cut(s, ":")
	switch name {
	case "empty":
		return Empty(), nil
	case "treasure":
		return Treasure(), nil
	case "enemy":
		return Enemy(), nil
	case "in_battle", "occupied":
		if !hasID {
			return Content{}, fmt.Errorf("content %q: missing player id", s)
		}
		id, err := strconv.ParseUint(rawID, 10, 64)
		if err != nil {
			return Content{}, fmt.Errorf("content %q: %w", s, err)
		}
		if name == "in_battle" {
			return InBattle(id), nil
		}
		return OccupiedBy(id), nil
	default:
		return Content{}, fmt.Errorf("unknown cell content %q", s)
	}
}

// MarshalText сериализует содержимое в строку (JSON, снапшоты)
func (c Content) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText разбирает строку из MarshalText
func (c *Content) UnmarshalText(data []byte) error {
	parsed, err := ParseContent(string(data))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
