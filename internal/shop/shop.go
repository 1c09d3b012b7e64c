// Package shop продаёт оружие за шарды и выкупает его обратно.
package shop

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/annel0/shard-realms/internal/apperr"
	"github.com/annel0/shard-realms/internal/battle"
	"github.com/annel0/shard-realms/internal/economy"
	"github.com/annel0/shard-realms/internal/logging"
)

// RefundPercent доля цены, возвращаемая при продаже предмета
const RefundPercent = 75

// ErrUnknownBackend неизвестный тип хранилища инвентаря
var ErrUnknownBackend = errors.New("unknown inventory backend")

// Inventory набор предметов каждого пользователя.
// Add и Remove атомарны: added/removed=false значит, что состояние уже было таким.
type Inventory interface {
	Owned(ctx context.Context, userID uint64) ([]string, error)
	Add(ctx context.Context, userID uint64, itemID string) (added bool, err error)
	Remove(ctx context.Context, userID uint64, itemID string) (removed bool, err error)
	Close() error
}

// Offer позиция витрины
type Offer struct {
	battle.Item
	Owned  bool  `json:"owned"`
	Refund int64 `json:"refund"`
}

// Trade итог покупки или продажи
type Trade struct {
	ItemID  string `json:"item_id"`
	Amount  int64  `json:"amount"`
	Balance int64  `json:"balance"`
}

// Shop витрина предметов поверх ledger и инвентаря
type Shop struct {
	ledger    *economy.Ledger
	inventory Inventory
	logger    *logging.Logger
}

// New создаёт магазин
func New(ledger *economy.Ledger, inventory Inventory) *Shop {
	return &Shop{ledger: ledger, inventory: inventory, logger: logging.GetComponentLogger("shop")}
}

// RefundFor сумма возврата за предмет ценой price, округлённая до ближайшего целого
func RefundFor(price int64) int64 {
	return (price*RefundPercent + 50) / 100
}

// Catalog предметы на продажу с отметкой, какие уже есть у пользователя
func (s *Shop) Catalog(ctx context.Context, userID uint64) ([]Offer, error) {
	owned, err := s.ownedSet(ctx, userID)
	if err != nil {
		return nil, err
	}

	var offers []Offer
	for _, item := range battle.Items() {
		if !item.ForSale {
			continue
		}
		offers = append(offers, Offer{Item: item, Owned: owned[item.ID], Refund: RefundFor(item.Price)})
	}
	sort.SliceStable(offers, func(i, j int) bool { return offers[i].Price < offers[j].Price })
	return offers, nil
}

// Owned предметы пользователя в порядке id
func (s *Shop) Owned(ctx context.Context, userID uint64) ([]battle.Item, error) {
	ids, err := s.inventory.Owned(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("inventory of user %d: %w", userID, err)
	}
	sort.Strings(ids)

	items := make([]battle.Item, 0, len(ids))
	for _, id := range ids {
		item, err := battle.LookupItem(id)
		if err != nil {
			s.logger.Warn("⚠️ В инвентаре user %d неизвестный предмет %q", userID, id)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// Buy списывает цену и кладёт предмет в инвентарь.
// Если предмет уже появился в инвентаре параллельным запросом, цена возвращается.
func (s *Shop) Buy(ctx context.Context, userID uint64, itemID string) (*Trade, error) {
	item, err := s.lookupForSale(itemID)
	if err != nil {
		return nil, err
	}

	owned, err := s.ownedSet(ctx, userID)
	if err != nil {
		return nil, err
	}
	if owned[item.ID] {
		return nil, apperr.Newf(apperr.KindAlreadyOwned, "%s is already owned", item.Name)
	}

	balance, err := s.ledger.Debit(ctx, userID, item.Price, "buy "+item.ID)
	if err != nil {
		return nil, err
	}

	added, err := s.inventory.Add(ctx, userID, item.ID)
	if err != nil || !added {
		if _, cerr := s.ledger.Credit(ctx, userID, item.Price, "buy "+item.ID+" rollback"); cerr != nil {
			s.logger.Error("❌ Не удалось вернуть %d шардов user %d: %v", item.Price, userID, cerr)
		}
		if err != nil {
			return nil, fmt.Errorf("add %s to inventory: %w", item.ID, err)
		}
		return nil, apperr.Newf(apperr.KindAlreadyOwned, "%s is already owned", item.Name)
	}

	s.logger.Info("🛒 User %d купил %s за %d", userID, item.Name, item.Price)
	return &Trade{ItemID: item.ID, Amount: item.Price, Balance: balance}, nil
}

// Sell убирает предмет из инвентаря и возвращает RefundPercent его цены
func (s *Shop) Sell(ctx context.Context, userID uint64, itemID string) (*Trade, error) {
	item, err := s.lookupForSale(itemID)
	if err != nil {
		return nil, err
	}

	removed, err := s.inventory.Remove(ctx, userID, item.ID)
	if err != nil {
		return nil, fmt.Errorf("remove %s from inventory: %w", item.ID, err)
	}
	if !removed {
		return nil, apperr.Newf(apperr.KindNotOwned, "%s is not owned", item.Name)
	}

	refund := RefundFor(item.Price)
	balance, err := s.ledger.Credit(ctx, userID, refund, "sell "+item.ID)
	if err != nil {
		if _, aerr := s.inventory.Add(ctx, userID, item.ID); aerr != nil {
			s.logger.Error("❌ Не удалось вернуть %s в инвентарь user %d: %v", item.ID, userID, aerr)
		}
		return nil, err
	}

	s.logger.Info("💰 User %d продал %s за %d", userID, item.Name, refund)
	return &Trade{ItemID: item.ID, Amount: refund, Balance: balance}, nil
}

// Close закрывает инвентарь
func (s *Shop) Close() error {
	return s.inventory.Close()
}

func (s *Shop) lookupForSale(itemID string) (battle.Item, error) {
	item, err := battle.LookupItem(itemID)
	if err != nil {
		return battle.Item{}, err
	}
	if !item.ForSale {
		return battle.Item{}, apperr.Newf(apperr.KindInvalidItem, "%s is not for sale", item.Name)
	}
	return item, nil
}

func (s *Shop) ownedSet(ctx context.Context, userID uint64) (map[string]bool, error) {
	ids, err := s.inventory.Owned(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("inventory of user %d: %w", userID, err)
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}
