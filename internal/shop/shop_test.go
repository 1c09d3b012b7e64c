package shop

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/annel0/shard-realms/internal/apperr"
	"github.com/annel0/shard-realms/internal/economy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const buyer uint64 = 42

// shops магазин на memory и на sqlite
func shops(t *testing.T) map[string]*Shop {
	t.Helper()
	ctx := context.Background()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	store, err := economy.NewSQLStore(economy.DialectSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	inventory, err := OpenSQLInventory(ctx, store.DB(), store.Dialect())
	require.NoError(t, err)

	return map[string]*Shop{
		"memory": New(economy.NewLedger(economy.NewMemoryStore()), NewMemoryInventory()),
		"sqlite": New(economy.NewLedger(store), inventory),
	}
}

func TestRefundFor(t *testing.T) {
	assert.Equal(t, int64(113), RefundFor(150), "112.5 округляется вверх")
	assert.Equal(t, int64(150), RefundFor(200))
	assert.Equal(t, int64(68), RefundFor(90))
	assert.Equal(t, int64(0), RefundFor(0))
}

func TestCatalogSkipsItemsNotForSale(t *testing.T) {
	s := New(economy.NewLedger(economy.NewMemoryStore()), NewMemoryInventory())

	offers, err := s.Catalog(context.Background(), buyer)
	require.NoError(t, err)
	require.Len(t, offers, 5)
	assert.Equal(t, "steel_sword", offers[0].ID, "Витрина отсортирована по цене")
	for _, o := range offers {
		assert.NotEqual(t, "basic_dagger", o.ID)
		assert.False(t, o.Owned)
		assert.Equal(t, RefundFor(o.Price), o.Refund)
	}
}

func TestBuyAndSell(t *testing.T) {
	for name, s := range shops(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Buy(ctx, buyer, "thunder_hammer")
			assert.True(t, errors.Is(err, apperr.ErrInsufficientFunds))
			owned, err := s.Owned(ctx, buyer)
			require.NoError(t, err)
			assert.Empty(t, owned, "Неудачная покупка ничего не выдаёт")

			_, err = s.ledger.Credit(ctx, buyer, 300, "test")
			require.NoError(t, err)

			trade, err := s.Buy(ctx, buyer, "thunder_hammer")
			require.NoError(t, err)
			assert.Equal(t, int64(200), trade.Amount)
			assert.Equal(t, int64(100), trade.Balance)

			_, err = s.Buy(ctx, buyer, "thunder_hammer")
			assert.True(t, errors.Is(err, apperr.ErrAlreadyOwned))
			balance, err := s.ledger.Balance(ctx, buyer)
			require.NoError(t, err)
			assert.Equal(t, int64(100), balance, "Повторная покупка не списывает шарды")

			offers, err := s.Catalog(ctx, buyer)
			require.NoError(t, err)
			for _, o := range offers {
				assert.Equal(t, o.ID == "thunder_hammer", o.Owned, o.ID)
			}

			trade, err = s.Sell(ctx, buyer, "thunder_hammer")
			require.NoError(t, err)
			assert.Equal(t, int64(150), trade.Amount)
			assert.Equal(t, int64(250), trade.Balance)

			_, err = s.Sell(ctx, buyer, "thunder_hammer")
			assert.True(t, errors.Is(err, apperr.ErrNotOwned))

			owned, err = s.Owned(ctx, buyer)
			require.NoError(t, err)
			assert.Empty(t, owned)
		})
	}
}

func TestBuyRejectsItemsNotForSale(t *testing.T) {
	s := New(economy.NewLedger(economy.NewMemoryStore()), NewMemoryInventory())
	ctx := context.Background()

	_, err := s.Buy(ctx, buyer, "basic_dagger")
	assert.True(t, errors.Is(err, apperr.ErrInvalidItem))

	_, err = s.Buy(ctx, buyer, "banana")
	assert.True(t, errors.Is(err, apperr.ErrInvalidItem))

	_, err = s.Sell(ctx, buyer, "basic_dagger")
	assert.True(t, errors.Is(err, apperr.ErrInvalidItem))
}

func TestOpenSQLInventoryUnknownDialect(t *testing.T) {
	_, err := OpenSQLInventory(context.Background(), nil, economy.Dialect("oracle"))
	assert.True(t, errors.Is(err, ErrUnknownBackend))
}
