package economy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/annel0/shard-realms/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stores возвращает все реализации Store, доступные без внешних сервисов
func stores(t *testing.T) map[string]Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	sqlite, err := NewSQLStore(DialectSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestLedgerCreditDebit(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ledger := NewLedger(store)

			balance, err := ledger.Balance(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, int64(0), balance, "Новый пользователь начинает с нулевым балансом")

			balance, err = ledger.Credit(ctx, 1, 200, "test")
			require.NoError(t, err)
			assert.Equal(t, int64(200), balance)

			balance, err = ledger.Debit(ctx, 1, 150, "teleport")
			require.NoError(t, err)
			assert.Equal(t, int64(50), balance)

			balance, err = ledger.Debit(ctx, 1, 0, "free move")
			require.NoError(t, err)
			assert.Equal(t, int64(50), balance)
		})
	}
}

func TestLedgerDebitNeverNegative(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ledger := NewLedger(store)

			_, err := ledger.Credit(ctx, 2, 40, "test")
			require.NoError(t, err)

			_, err = ledger.Debit(ctx, 2, 41, "teleport")
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrInsufficientFunds))

			balance, err := ledger.Balance(ctx, 2)
			require.NoError(t, err)
			assert.Equal(t, int64(40), balance, "Неудачное списание не меняет баланс")

			// Пользователь без записи
			_, err = ledger.Debit(ctx, 3, 1, "teleport")
			assert.True(t, errors.Is(err, apperr.ErrInsufficientFunds))
		})
	}
}

func TestLedgerRejectsNegativeAmounts(t *testing.T) {
	ledger := NewLedger(NewMemoryStore())
	ctx := context.Background()

	_, err := ledger.Credit(ctx, 1, -5, "test")
	assert.True(t, errors.Is(err, apperr.ErrInvalidArgument))
	_, err = ledger.Debit(ctx, 1, -5, "test")
	assert.True(t, errors.Is(err, apperr.ErrInvalidArgument))
}

func TestLedgerConcurrentDebits(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ledger := NewLedger(store)
			_, err := ledger.Credit(ctx, 9, 500, "test")
			require.NoError(t, err)

			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				succeeded int
			)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := ledger.Debit(ctx, 9, 50, "race"); err == nil {
						mu.Lock()
						succeeded++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, 10, succeeded, "Успешных списаний ровно столько, сколько позволяет баланс")
			balance, err := ledger.Balance(ctx, 9)
			require.NoError(t, err)
			assert.Equal(t, int64(0), balance)
		})
	}
}

func TestNewSQLStoreUnknownDialect(t *testing.T) {
	_, err := NewSQLStore(Dialect("oracle"), "")
	assert.True(t, errors.Is(err, ErrUnknownBackend))
}
