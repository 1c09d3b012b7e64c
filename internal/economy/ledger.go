// Package economy хранит балансы шардов и выполняет атомарные списания и начисления.
package economy

import (
	"context"
	"errors"
	"fmt"

	"github.com/annel0/shard-realms/internal/apperr"
	"github.com/annel0/shard-realms/internal/logging"
)

// ErrUnknownBackend неизвестный тип хранилища в конфигурации
var ErrUnknownBackend = errors.New("unknown ledger backend")

// Store атомарное хранилище балансов.
// DebitIfSufficient списывает amount только если баланс не меньше amount,
// иначе возвращает ok=false и ничего не меняет.
type Store interface {
	Balance(ctx context.Context, userID uint64) (int64, error)
	Credit(ctx context.Context, userID uint64, amount int64) (int64, error)
	DebitIfSufficient(ctx context.Context, userID uint64, amount int64) (balance int64, ok bool, err error)
	Close() error
}

// Ledger единственная точка изменения балансов игроков.
type Ledger struct {
	store  Store
	logger *logging.Logger
}

// NewLedger создаёт ledger поверх хранилища
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store, logger: logging.GetEconomyLogger()}
}

// Balance текущий баланс пользователя (0, если записей ещё не было)
func (l *Ledger) Balance(ctx context.Context, userID uint64) (int64, error) {
	return l.store.Balance(ctx, userID)
}

// Credit начисляет amount >= 0 шардов и возвращает новый баланс
func (l *Ledger) Credit(ctx context.Context, userID uint64, amount int64, reason string) (int64, error) {
	if amount < 0 {
		return 0, apperr.Newf(apperr.KindInvalidArgument, "credit amount %d is negative", amount)
	}
	balance, err := l.store.Credit(ctx, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("credit user %d: %w", userID, err)
	}
	logging.LogBalanceChange(userID, amount, balance, reason)
	return balance, nil
}

// Debit списывает amount >= 0 шардов. При нехватке средств возвращает
// ErrInsufficientFunds и баланс не меняется.
func (l *Ledger) Debit(ctx context.Context, userID uint64, amount int64, reason string) (int64, error) {
	if amount < 0 {
		return 0, apperr.Newf(apperr.KindInvalidArgument, "debit amount %d is negative", amount)
	}
	balance, ok, err := l.store.DebitIfSufficient(ctx, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("debit user %d: %w", userID, err)
	}
	if !ok {
		l.logger.Debug("💸 User %d: недостаточно шардов (%d < %d) для %s", userID, balance, amount, reason)
		return balance, apperr.Newf(apperr.KindInsufficientFunds, "need %d shards, have %d", amount, balance)
	}
	logging.LogBalanceChange(userID, -amount, balance, reason)
	return balance, nil
}

// Close закрывает хранилище
func (l *Ledger) Close() error {
	return l.store.Close()
}
