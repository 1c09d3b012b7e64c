package battle

import (
	"sort"

	"github.com/annel0/shard-realms/internal/apperr"
)

// Item оружие, которым игрок бьёт врага.
// Price цена в магазине; предметы без ForSale купить нельзя.
type Item struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Damage  int    `json:"damage"`
	Price   int64  `json:"price"`
	ForSale bool   `json:"for_sale"`
}

var catalog = map[string]Item{
	"flaming_axe":    {ID: "flaming_axe", Name: "Flaming Axe", Damage: 100, Price: 150, ForSale: true},
	"ice_dagger":     {ID: "ice_dagger", Name: "Ice Dagger", Damage: 250, Price: 180, ForSale: true},
	"thunder_hammer": {ID: "thunder_hammer", Name: "Thunder Hammer", Damage: 450, Price: 200, ForSale: true},
	"poisonous_bow":  {ID: "poisonous_bow", Name: "Poisonous Bow", Damage: 100, Price: 130, ForSale: true},
	"steel_sword":    {ID: "steel_sword", Name: "Steel Sword", Damage: 80, Price: 90, ForSale: true},
	"basic_dagger":   {ID: "basic_dagger", Name: "Basic Dagger", Damage: 20, Price: 99999},
}

// LookupItem ищет предмет по id; неизвестный id даёт ErrInvalidItem
func LookupItem(id string) (Item, error) {
	item, ok := catalog[id]
	if !ok {
		return Item{}, apperr.Newf(apperr.KindInvalidItem, "unknown item %q", id)
	}
	return item, nil
}

// Items список предметов, отсортированный по урону
func Items() []Item {
	items := make([]Item, 0, len(catalog))
	for _, it := range catalog {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Damage == items[j].Damage {
			return items[i].ID < items[j].ID
		}
		return items[i].Damage < items[j].Damage
	})
	return items
}
